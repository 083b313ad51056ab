package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Parlay status values. Terminal states are won and lost; claimed is tracked
// separately via ClaimedAt so a won purchase stays re-checkable until paid out.
const (
	PurchaseStatusPending = "pending"
	PurchaseStatusWon     = "won"
	PurchaseStatusLost    = "lost"
)

// Purchase is a paid parlay: the leg list frozen at quote time plus the
// payout promised by the accepted quote.
type Purchase struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	QuoteID string `gorm:"type:varchar(64);index"`
	UserID  string `gorm:"type:varchar(100);not null;index"`

	// Environment tags test vs real markets. A purchase never mixes legs
	// across environments; recording enforces this.
	Environment string `gorm:"type:varchar(10);not null;default:'live'"`

	Stake  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Payout decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status          string          `gorm:"type:varchar(10);not null;default:'pending';index"`
	ClaimableAmount decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ClaimedAt       *time.Time      `gorm:"type:timestamptz"`

	Legs          datatypes.JSON `gorm:"type:jsonb;not null"`
	HedgeStrategy datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}
