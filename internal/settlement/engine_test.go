package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"parlay/internal/config"
	"parlay/internal/models"
	"parlay/internal/repository"
)

type stubRepo struct {
	mu        sync.Mutex
	purchases map[uint64]*models.Purchase
	outcomes  map[uint64]map[int]models.LegOutcome
	wallet    []models.WalletEntry
	failGet   map[uint64]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		purchases: map[uint64]*models.Purchase{},
		outcomes:  map[uint64]map[int]models.LegOutcome{},
		failGet:   map[uint64]bool{},
	}
}

func (s *stubRepo) InsertPurchase(ctx context.Context, item *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = uint64(len(s.purchases) + 1)
	}
	s.purchases[item.ID] = item
	return nil
}

func (s *stubRepo) GetPurchaseByID(ctx context.Context, id uint64) (*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet[id] {
		return nil, errors.New("storage unavailable")
	}
	p, ok := s.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) ListPurchases(ctx context.Context, params repository.ListPurchasesParams) ([]models.Purchase, error) {
	return nil, nil
}

func (s *stubRepo) ListPurchasesByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Purchase
	for _, p := range s.purchases {
		for _, st := range statuses {
			if p.Status == st {
				out = append(out, *p)
				break
			}
		}
	}
	return out, nil
}

func (s *stubRepo) UpdatePurchaseSettlement(ctx context.Context, id uint64, status string, claimable decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return errors.New("not found")
	}
	p.Status = status
	p.ClaimableAmount = claimable
	return nil
}

func (s *stubRepo) ClaimPurchase(ctx context.Context, id uint64, claimedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok || p.Status != models.PurchaseStatusWon || p.ClaimedAt != nil {
		return false, nil
	}
	t := claimedAt
	p.ClaimedAt = &t
	return true, nil
}

func (s *stubRepo) UpsertLegOutcome(ctx context.Context, item *models.LegOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byLeg, ok := s.outcomes[item.PurchaseID]
	if !ok {
		byLeg = map[int]models.LegOutcome{}
		s.outcomes[item.PurchaseID] = byLeg
	}
	byLeg[item.LegNumber] = *item
	return nil
}

func (s *stubRepo) ListLegOutcomesByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.LegOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LegOutcome
	for _, o := range s.outcomes[purchaseID] {
		out = append(out, o)
	}
	return out, nil
}

func (s *stubRepo) InsertHedgeOrder(ctx context.Context, item *models.HedgeOrder) error { return nil }
func (s *stubRepo) UpdateHedgeOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	return nil
}
func (s *stubRepo) ListHedgeOrdersByPurchaseID(ctx context.Context, purchaseID uint64) ([]models.HedgeOrder, error) {
	return nil, nil
}

func (s *stubRepo) InsertWalletEntry(ctx context.Context, item *models.WalletEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = append(s.wallet, *item)
	return nil
}

type stubMarket struct {
	mu          sync.Mutex
	settlements map[string]Settlement
	errs        map[string]error
	calls       map[string]int
}

func newStubMarket() *stubMarket {
	return &stubMarket{
		settlements: map[string]Settlement{},
		errs:        map[string]error{},
		calls:       map[string]int{},
	}
}

func (s *stubMarket) GetSettlement(ctx context.Context, ticker string) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ticker]++
	if err := s.errs[ticker]; err != nil {
		return Settlement{}, err
	}
	return s.settlements[ticker], nil
}

func settled(price float64) Settlement {
	d := decimal.NewFromFloat(price)
	return Settlement{Status: models.MarketStatusSettled, SettlementPrice: &d}
}

func mkPurchase(t *testing.T, repo *stubRepo, tickers ...string) *models.Purchase {
	t.Helper()
	legs := make([]models.Leg, 0, len(tickers))
	for _, ticker := range tickers {
		legs = append(legs, models.Leg{
			MarketID:           "mkt-" + ticker,
			Ticker:             ticker,
			ProbabilityPercent: 60,
			Side:               "yes",
		})
	}
	raw, err := models.MarshalLegs(legs)
	if err != nil {
		t.Fatalf("marshal legs: %v", err)
	}
	p := &models.Purchase{
		UserID: "user-1",
		Stake:  decimal.NewFromInt(100),
		Payout: decimal.NewFromFloat(214.29),
		Status: models.PurchaseStatusPending,
		Legs:   raw,
	}
	if err := repo.InsertPurchase(context.Background(), p); err != nil {
		t.Fatalf("insert purchase: %v", err)
	}
	return p
}

func TestCheckParlayStatus_LossOnZeroPrice(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = settled(37.5)
	market.settlements["B"] = settled(0)
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusLost {
		t.Fatalf("status=%s want lost", res.Status)
	}
	if !res.ClaimableAmount.IsZero() {
		t.Fatalf("claimable=%s want 0", res.ClaimableAmount)
	}
	outcomes, _ := repo.ListLegOutcomesByPurchaseID(context.Background(), p.ID)
	byLeg := map[int]models.LegOutcome{}
	for _, o := range outcomes {
		byLeg[o.LegNumber] = o
	}
	if byLeg[1].Outcome != models.LegOutcomeWin {
		t.Fatalf("leg1 outcome=%s want win (positive settlement price)", byLeg[1].Outcome)
	}
	if byLeg[2].Outcome != models.LegOutcomeLoss {
		t.Fatalf("leg2 outcome=%s want loss", byLeg[2].Outcome)
	}
}

func TestCheckParlayStatus_AllWin(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = settled(100)
	market.settlements["B"] = settled(62.5)
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusWon {
		t.Fatalf("status=%s want won", res.Status)
	}
	if got := res.ClaimableAmount.StringFixed(2); got != "214.29" {
		t.Fatalf("claimable=%s want payout 214.29", got)
	}
	stored, _ := repo.GetPurchaseByID(context.Background(), p.ID)
	if stored.Status != models.PurchaseStatusWon {
		t.Fatalf("stored status=%s want won", stored.Status)
	}
}

func TestCheckParlayStatus_ResultLabels(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = Settlement{Status: models.MarketStatusSettled, Result: "yes"}
	market.settlements["B"] = Settlement{Status: models.MarketStatusSettled, Result: "no"}
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusLost {
		t.Fatalf("status=%s want lost", res.Status)
	}
	outcomes, _ := repo.ListLegOutcomesByPurchaseID(context.Background(), p.ID)
	for _, o := range outcomes {
		if o.LegNumber == 1 {
			if o.Outcome != models.LegOutcomeWin || o.SettlementPrice == nil || !o.SettlementPrice.Equal(decimal.NewFromInt(100)) {
				t.Fatalf("leg1=%+v want win at price 100", o)
			}
		}
		if o.LegNumber == 2 {
			if o.Outcome != models.LegOutcomeLoss || o.SettlementPrice == nil || !o.SettlementPrice.IsZero() {
				t.Fatalf("leg2=%+v want loss at price 0", o)
			}
		}
	}
}

func TestCheckParlayStatus_OpenMarketStaysPending(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = settled(100)
	market.settlements["B"] = Settlement{Status: models.MarketStatusOpen}
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusPending {
		t.Fatalf("status=%s want pending", res.Status)
	}
	if res.SettledLegs != 1 {
		t.Fatalf("settledLegs=%d want 1", res.SettledLegs)
	}
}

func TestCheckParlayStatus_LostLegWithOpenSibling(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = settled(0)
	market.settlements["B"] = Settlement{Status: models.MarketStatusOpen}
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusPending {
		t.Fatalf("status=%s want pending until every leg settles", res.Status)
	}
	if res.SettledLegs != 1 {
		t.Fatalf("settledLegs=%d want 1", res.SettledLegs)
	}

	market.mu.Lock()
	market.settlements["B"] = settled(100)
	market.mu.Unlock()
	res, err = e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusLost {
		t.Fatalf("status=%s want lost once all legs settled", res.Status)
	}
}

func TestCheckParlayStatus_MissingTicker(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusPending {
		t.Fatalf("status=%s want pending", res.Status)
	}
	outcomes, _ := repo.ListLegOutcomesByPurchaseID(context.Background(), p.ID)
	if len(outcomes) != 1 || outcomes[0].CheckError == "" {
		t.Fatalf("outcomes=%+v want one row with check error", outcomes)
	}
	if len(market.calls) != 0 {
		t.Fatalf("market called for tickerless leg")
	}
}

func TestCheckParlayStatus_TransientLookupFailure(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.errs["A"] = errors.New("rate limited")
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A")

	res, err := e.CheckParlayStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Status != models.PurchaseStatusPending {
		t.Fatalf("status=%s want pending", res.Status)
	}
	outcomes, _ := repo.ListLegOutcomesByPurchaseID(context.Background(), p.ID)
	if len(outcomes) != 1 || outcomes[0].CheckError != "" {
		t.Fatalf("outcomes=%+v want pending row without check error", outcomes)
	}
}

func TestCheckParlayStatus_SettledLegsNotRefetched(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	market.settlements["A"] = settled(100)
	market.settlements["B"] = Settlement{Status: models.MarketStatusOpen}
	e := &Engine{Repo: repo, Market: market}
	p := mkPurchase(t, repo, "A", "B")

	for i := 0; i < 3; i++ {
		if _, err := e.CheckParlayStatus(context.Background(), p.ID); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
	if market.calls["A"] != 1 {
		t.Fatalf("settled leg fetched %d times, want 1", market.calls["A"])
	}
	if market.calls["B"] != 3 {
		t.Fatalf("open leg fetched %d times, want 3", market.calls["B"])
	}
}

func TestCheckParlayStatus_NotFound(t *testing.T) {
	e := &Engine{Repo: newStubRepo(), Market: newStubMarket()}
	_, err := e.CheckParlayStatus(context.Background(), 999)
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("err=%v want ErrPurchaseNotFound", err)
	}
}

func TestClaimWinnings_AtMostOnce(t *testing.T) {
	repo := newStubRepo()
	e := &Engine{Repo: repo, Market: newStubMarket()}
	p := mkPurchase(t, repo, "A")
	_ = repo.UpdatePurchaseSettlement(context.Background(), p.ID, models.PurchaseStatusWon, decimal.NewFromFloat(214.29))

	res, err := e.ClaimWinnings(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := res.Amount.StringFixed(2); got != "214.29" {
		t.Fatalf("amount=%s want 214.29", got)
	}
	if len(repo.wallet) != 1 {
		t.Fatalf("wallet entries=%d want 1", len(repo.wallet))
	}

	if _, err := e.ClaimWinnings(context.Background(), p.ID); !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("second claim err=%v want ErrClaimConflict", err)
	}
	if len(repo.wallet) != 1 {
		t.Fatalf("wallet entries=%d after double claim, want 1", len(repo.wallet))
	}
}

func TestClaimWinnings_ConcurrentClaims(t *testing.T) {
	repo := newStubRepo()
	e := &Engine{Repo: repo, Market: newStubMarket()}
	p := mkPurchase(t, repo, "A")
	_ = repo.UpdatePurchaseSettlement(context.Background(), p.ID, models.PurchaseStatusWon, decimal.NewFromInt(200))

	const attempts = 8
	var wg sync.WaitGroup
	errsCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ClaimWinnings(context.Background(), p.ID)
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	succeeded := 0
	for err := range errsCh {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrClaimConflict) {
			t.Fatalf("unexpected err=%v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("succeeded=%d want exactly 1", succeeded)
	}
	if len(repo.wallet) != 1 {
		t.Fatalf("wallet entries=%d want 1", len(repo.wallet))
	}
}

func TestClaimWinnings_NotClaimable(t *testing.T) {
	repo := newStubRepo()
	e := &Engine{Repo: repo, Market: newStubMarket()}
	p := mkPurchase(t, repo, "A")

	if _, err := e.ClaimWinnings(context.Background(), p.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("pending claim err=%v want ErrNotClaimable", err)
	}
	_ = repo.UpdatePurchaseSettlement(context.Background(), p.ID, models.PurchaseStatusLost, decimal.Zero)
	if _, err := e.ClaimWinnings(context.Background(), p.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("lost claim err=%v want ErrNotClaimable", err)
	}
}

func TestCheckAllActive_FailureIsolation(t *testing.T) {
	repo := newStubRepo()
	market := newStubMarket()
	e := &Engine{Repo: repo, Market: market, Config: config.SettlementConfig{Concurrency: 2}}

	var ids []uint64
	for i := 0; i < 4; i++ {
		p := mkPurchase(t, repo, fmt.Sprintf("T%d", i))
		market.settlements[fmt.Sprintf("T%d", i)] = settled(100)
		ids = append(ids, p.ID)
	}
	repo.failGet[ids[1]] = true

	res, err := e.CheckAllActive(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Checked != 4 {
		t.Fatalf("checked=%d want 4", res.Checked)
	}
	if res.Failed != 1 {
		t.Fatalf("failed=%d want 1", res.Failed)
	}
	for _, id := range ids {
		if id == ids[1] {
			continue
		}
		p, _ := repo.GetPurchaseByID(context.Background(), id)
		if p.Status != models.PurchaseStatusWon {
			t.Fatalf("purchase %d status=%s want won", id, p.Status)
		}
	}
}
