package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HedgeOrder is one exchange order emitted for a non-zero hedge decision.
// A failed order does not roll back its siblings; the executor records the
// outcome per order and reports successful/total.
type HedgeOrder struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	PurchaseID uint64 `gorm:"not null;index"`
	LegNumber  int    `gorm:"not null"`

	Ticker          string          `gorm:"type:varchar(100);not null"`
	Side            string          `gorm:"type:varchar(5);not null"`
	Contracts       int64           `gorm:"not null"`
	LimitPriceCents int64           `gorm:"not null"`
	CostBasis       decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status        string `gorm:"type:varchar(10);not null;default:'pending';index"` // pending|placed|failed
	ClientOrderID string `gorm:"type:varchar(64);uniqueIndex"`
	ExternalID    string `gorm:"type:varchar(100)"`
	FailureReason string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (HedgeOrder) TableName() string {
	return "hedge_orders"
}
