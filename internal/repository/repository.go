package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"parlay/internal/models"
)

// Repository is the storage boundary shared by the hedging executor and the
// settlement engine. The claim transition is a conditional update at this
// layer (claim only while claimed_at is null); the engines rely on that for
// at-most-once crediting instead of holding locks.
type Repository interface {
	// Purchases
	InsertPurchase(ctx context.Context, item *models.Purchase) error
	GetPurchaseByID(ctx context.Context, id uint64) (*models.Purchase, error)
	ListPurchases(ctx context.Context, params ListPurchasesParams) ([]models.Purchase, error)
	ListPurchasesByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Purchase, error)
	UpdatePurchaseSettlement(ctx context.Context, id uint64, status string, claimable decimal.Decimal) error

	// ClaimPurchase sets claimed_at iff it is currently null and the
	// purchase is won. Returns false when the conditional write matched no
	// row, i.e. a concurrent claim already happened or the purchase is not
	// claimable.
	ClaimPurchase(ctx context.Context, id uint64, claimedAt time.Time) (bool, error)

	// Leg outcomes (create-or-replace keyed by purchase_id + leg_number)
	UpsertLegOutcome(ctx context.Context, item *models.LegOutcome) error
	ListLegOutcomesByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.LegOutcome, error)

	// Hedge orders
	InsertHedgeOrder(ctx context.Context, item *models.HedgeOrder) error
	UpdateHedgeOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error
	ListHedgeOrdersByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.HedgeOrder, error)

	// Wallet
	InsertWalletEntry(ctx context.Context, item *models.WalletEntry) error
}

type ListPurchasesParams struct {
	Limit       int
	Offset      int
	UserID      *string
	Status      *string
	Environment *string
	OrderBy     string
	Asc         *bool
}
