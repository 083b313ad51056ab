package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletEntry is a credit to a user balance. Claims write exactly one entry
// per purchase; the unique index backs that up at the storage layer.
type WalletEntry struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	UserID     string `gorm:"type:varchar(100);not null;index"`
	PurchaseID uint64 `gorm:"not null;uniqueIndex:idx_wallet_entries_purchase_kind"`
	Kind       string `gorm:"type:varchar(20);not null;uniqueIndex:idx_wallet_entries_purchase_kind"` // claim

	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WalletEntry) TableName() string {
	return "wallet_entries"
}
