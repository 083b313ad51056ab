package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parlay/internal/models"
	"parlay/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Purchases ---------------------------------------------------------------

func (s *Store) InsertPurchase(ctx context.Context, item *models.Purchase) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPurchaseByID(ctx context.Context, id uint64) (*models.Purchase, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Purchase
	err := s.db.WithContext(ctx).Model(&models.Purchase{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPurchases(ctx context.Context, params repository.ListPurchasesParams) ([]models.Purchase, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Purchase{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Environment != nil && strings.TrimSpace(*params.Environment) != "" {
		query = query.Where("environment = ?", strings.TrimSpace(*params.Environment))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Purchase
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPurchasesByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Purchase, error) {
	if s == nil || s.db == nil || len(statuses) == 0 {
		return nil, nil
	}
	var items []models.Purchase
	err := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("status IN ?", statuses).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdatePurchaseSettlement(ctx context.Context, id uint64, status string, claimable decimal.Decimal) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           status,
			"claimable_amount": claimable,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (s *Store) ClaimPurchase(ctx context.Context, id uint64, claimedAt time.Time) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Where("status = ?", models.PurchaseStatusWon).
		Where("claimed_at IS NULL").
		Updates(map[string]any{
			"claimed_at": claimedAt,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// --- Leg outcomes ------------------------------------------------------------

func (s *Store) UpsertLegOutcome(ctx context.Context, item *models.LegOutcome) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "purchase_id"}, {Name: "leg_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ticker",
			"market_status",
			"outcome",
			"settlement_price",
			"check_error",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListLegOutcomesByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.LegOutcome, error) {
	if s == nil || s.db == nil || purchaseID == 0 {
		return nil, nil
	}
	var items []models.LegOutcome
	err := s.db.WithContext(ctx).
		Model(&models.LegOutcome{}).
		Where("purchase_id = ?", purchaseID).
		Order("leg_number asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Hedge orders ------------------------------------------------------------

func (s *Store) InsertHedgeOrder(ctx context.Context, item *models.HedgeOrder) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateHedgeOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = status
	updates["updated_at"] = time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&models.HedgeOrder{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) ListHedgeOrdersByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.HedgeOrder, error) {
	if s == nil || s.db == nil || purchaseID == 0 {
		return nil, nil
	}
	var items []models.HedgeOrder
	err := s.db.WithContext(ctx).
		Model(&models.HedgeOrder{}).
		Where("purchase_id = ?", purchaseID).
		Order("leg_number asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Wallet ------------------------------------------------------------------

func (s *Store) InsertWalletEntry(ctx context.Context, item *models.WalletEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	switch col {
	case "created_at", "updated_at", "status", "stake", "payout":
	default:
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
