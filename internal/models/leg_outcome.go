package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Per-leg settlement outcomes.
const (
	LegOutcomePending = "pending"
	LegOutcomeWin     = "win"
	LegOutcomeLoss    = "loss"
)

// Market lifecycle as reported by the exchange.
const (
	MarketStatusOpen    = "open"
	MarketStatusSettled = "settled"
)

// LegOutcome is the settlement record for one leg of a purchase, upserted by
// (purchase_id, leg_number) on every sweep until the market settles. Once
// MarketStatus is settled with a price the row is never rewritten.
type LegOutcome struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	PurchaseID uint64 `gorm:"not null;uniqueIndex:idx_leg_outcomes_purchase_leg"`
	LegNumber  int    `gorm:"not null;uniqueIndex:idx_leg_outcomes_purchase_leg"` // 1-based

	Ticker       string `gorm:"type:varchar(100);index"`
	MarketStatus string `gorm:"type:varchar(10);not null;default:'open'"`
	Outcome      string `gorm:"type:varchar(10);not null;default:'pending'"`

	SettlementPrice *decimal.Decimal `gorm:"type:numeric(10,4)"`

	// CheckError records a data-quality fault (e.g. a leg with no ticker)
	// that leaves the leg permanently pending. Transient lookup failures are
	// not recorded here.
	CheckError string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (LegOutcome) TableName() string {
	return "leg_outcomes"
}

// Settled reports whether this leg has reached a terminal outcome.
func (o LegOutcome) Settled() bool {
	return o.MarketStatus == MarketStatusSettled && o.Outcome != LegOutcomePending && o.SettlementPrice != nil
}
