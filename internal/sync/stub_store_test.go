package sync

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"oraclex/internal/models"
	"oraclex/internal/repository"
)

// stubStore is an in-memory repository.Store for projector and backfill
// tests. InTx snapshots all tables and restores them when fn fails, so the
// one-event-one-transaction property is observable without a database.
type stubStore struct {
	users       []models.User
	markets     []models.Market
	outcomes    []models.Outcome
	predictions []models.Prediction
	resolutions []models.Resolution
	states      map[string]models.SyncState
	nextID      uint64

	failMarketIncrement bool
}

func newStubStore() *stubStore {
	return &stubStore{states: map[string]models.SyncState{}}
}

func (s *stubStore) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *stubStore) snapshot() *stubStore {
	cp := &stubStore{nextID: s.nextID}
	cp.users = append(cp.users, s.users...)
	cp.markets = append(cp.markets, s.markets...)
	cp.outcomes = append(cp.outcomes, s.outcomes...)
	cp.predictions = append(cp.predictions, s.predictions...)
	cp.resolutions = append(cp.resolutions, s.resolutions...)
	return cp
}

func (s *stubStore) restore(from *stubStore) {
	s.users = from.users
	s.markets = from.markets
	s.outcomes = from.outcomes
	s.predictions = from.predictions
	s.resolutions = from.resolutions
	s.nextID = from.nextID
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	saved := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

func (s *stubStore) FindOrCreateUserTx(ctx context.Context, tx *gorm.DB, address string) (*models.User, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	for i := range s.users {
		if s.users[i].Address == addr {
			u := s.users[i]
			return &u, nil
		}
	}
	u := models.User{ID: s.id(), Address: addr, CreatedAt: time.Now().UTC()}
	s.users = append(s.users, u)
	return &u, nil
}

func (s *stubStore) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	for i := range s.users {
		if s.users[i].Address == addr {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (s *stubStore) UserSummary(ctx context.Context, userID uint64) (repository.UserSummary, error) {
	out := repository.UserSummary{TotalStaked: decimal.Zero, PotentialPayout: decimal.Zero}
	for i := range s.predictions {
		if s.predictions[i].UserID == userID {
			out.Predictions++
			out.TotalStaked = out.TotalStaked.Add(s.predictions[i].Amount)
			out.PotentialPayout = out.PotentialPayout.Add(s.predictions[i].PotentialPayout)
		}
	}
	return out, nil
}

func (s *stubStore) CreateMarketTx(ctx context.Context, tx *gorm.DB, item *models.Market) error {
	for i := range s.markets {
		if s.markets[i].ExternalID == item.ExternalID {
			return repository.ErrDuplicate
		}
	}
	item.ID = s.id()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.markets = append(s.markets, *item)
	return nil
}

func (s *stubStore) GetMarketByExternalID(ctx context.Context, externalID string) (*models.Market, error) {
	for i := range s.markets {
		if s.markets[i].ExternalID == externalID {
			m := s.markets[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *stubStore) IncrementMarketTotalsTx(ctx context.Context, tx *gorm.DB, marketID uint64, amount decimal.Decimal) error {
	if s.failMarketIncrement {
		return errInduced
	}
	for i := range s.markets {
		if s.markets[i].ID == marketID {
			s.markets[i].TotalStaked = s.markets[i].TotalStaked.Add(amount)
			s.markets[i].TotalVolume = s.markets[i].TotalVolume.Add(amount)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubStore) MarkMarketResolvedTx(ctx context.Context, tx *gorm.DB, marketID uint64, winningOutcome string, resolvedAt time.Time) error {
	for i := range s.markets {
		if s.markets[i].ID == marketID {
			s.markets[i].Status = models.MarketStatusResolved
			s.markets[i].WinningOutcome = &winningOutcome
			s.markets[i].ResolvedAt = &resolvedAt
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubStore) EarliestMarketCreatedAt(ctx context.Context) (*time.Time, error) {
	var earliest *time.Time
	for i := range s.markets {
		ts := s.markets[i].CreatedAt
		if earliest == nil || ts.Before(*earliest) {
			earliest = &ts
		}
	}
	return earliest, nil
}

func (s *stubStore) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	out := append([]models.Market(nil), s.markets...)
	return out, nil
}

func (s *stubStore) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	return int64(len(s.markets)), nil
}

func (s *stubStore) CreateOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error {
	for _, item := range items {
		item.ID = s.id()
		s.outcomes = append(s.outcomes, item)
	}
	return nil
}

func (s *stubStore) ListOutcomesByMarketID(ctx context.Context, marketID uint64) ([]models.Outcome, error) {
	var out []models.Outcome
	for i := range s.outcomes {
		if s.outcomes[i].MarketID == marketID {
			out = append(out, s.outcomes[i])
		}
	}
	return out, nil
}

func (s *stubStore) IncrementOutcomeStakedTx(ctx context.Context, tx *gorm.DB, outcomeID uint64, amount decimal.Decimal) error {
	for i := range s.outcomes {
		if s.outcomes[i].ID == outcomeID {
			s.outcomes[i].TotalStaked = s.outcomes[i].TotalStaked.Add(amount)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubStore) RefreshOutcomeProbabilitiesTx(ctx context.Context, tx *gorm.DB, marketID uint64) error {
	var market *models.Market
	for i := range s.markets {
		if s.markets[i].ID == marketID {
			market = &s.markets[i]
			break
		}
	}
	if market == nil || !market.TotalStaked.IsPositive() {
		return nil
	}
	for i := range s.outcomes {
		if s.outcomes[i].MarketID == marketID {
			s.outcomes[i].Probability = s.outcomes[i].TotalStaked.Div(market.TotalStaked)
		}
	}
	return nil
}

func (s *stubStore) MarkOutcomeWinningTx(ctx context.Context, tx *gorm.DB, outcomeID uint64) error {
	for i := range s.outcomes {
		if s.outcomes[i].ID == outcomeID {
			s.outcomes[i].IsWinning = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubStore) CreatePredictionTx(ctx context.Context, tx *gorm.DB, item *models.Prediction) error {
	for i := range s.predictions {
		if s.predictions[i].TxHash == item.TxHash {
			return repository.ErrDuplicate
		}
	}
	item.ID = s.id()
	s.predictions = append(s.predictions, *item)
	return nil
}

func (s *stubStore) PredictionExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	for i := range s.predictions {
		if s.predictions[i].TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.Prediction, error) {
	out := append([]models.Prediction(nil), s.predictions...)
	return out, nil
}

func (s *stubStore) CountPredictions(ctx context.Context, params repository.ListPredictionsParams) (int64, error) {
	return int64(len(s.predictions)), nil
}

func (s *stubStore) CreateResolutionTx(ctx context.Context, tx *gorm.DB, item *models.Resolution) error {
	for i := range s.resolutions {
		if s.resolutions[i].MarketID == item.MarketID {
			return repository.ErrDuplicate
		}
	}
	item.ID = s.id()
	s.resolutions = append(s.resolutions, *item)
	return nil
}

func (s *stubStore) ListResolutions(ctx context.Context, params repository.ListResolutionsParams) ([]models.Resolution, error) {
	out := append([]models.Resolution(nil), s.resolutions...)
	return out, nil
}

func (s *stubStore) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardRow, error) {
	return nil, nil
}

func (s *stubStore) MirrorCounts(ctx context.Context) (repository.MirrorCounts, error) {
	return repository.MirrorCounts{
		Users:       int64(len(s.users)),
		Markets:     int64(len(s.markets)),
		Predictions: int64(len(s.predictions)),
		Resolutions: int64(len(s.resolutions)),
	}, nil
}

func (s *stubStore) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if st, ok := s.states[scope]; ok {
		cp := st
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	s.states[state.Scope] = *state
	return nil
}
