package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"oraclex/internal/models"
	"oraclex/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users ------------------------------------------------------------------

func (s *Store) FindOrCreateUserTx(ctx context.Context, tx *gorm.DB, address string) (*models.User, error) {
	if s == nil || tx == nil {
		return nil, nil
	}
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, errors.New("empty address")
	}

	var item models.User
	err := tx.WithContext(ctx).Where("address = ?", address).First(&item).Error
	if err == nil {
		return &item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Two handlers may race on the same fresh address; the unique index plus
	// DoNothing-and-refetch collapses both attempts onto one row.
	item = models.User{Address: address}
	err = tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		if err := tx.WithContext(ctx).Where("address = ?", address).First(&item).Error; err != nil {
			return nil, err
		}
	}
	return &item, nil
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UserSummary(ctx context.Context, userID uint64) (repository.UserSummary, error) {
	var out repository.UserSummary
	if s == nil || s.db == nil {
		return out, nil
	}
	row := struct {
		Predictions     int64
		TotalStaked     decimal.Decimal
		PotentialPayout decimal.Decimal
	}{}
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Select(`
			COUNT(*) AS predictions,
			COALESCE(SUM(amount),0) AS total_staked,
			COALESCE(SUM(potential_payout),0) AS potential_payout
		`).
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return out, err
	}
	out.Predictions = row.Predictions
	out.TotalStaked = row.TotalStaked
	out.PotentialPayout = row.PotentialPayout
	return out, nil
}

// --- Markets ----------------------------------------------------------------

func (s *Store) CreateMarketTx(ctx context.Context, tx *gorm.DB, item *models.Market) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

func (s *Store) GetMarketByExternalID(ctx context.Context, externalID string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) IncrementMarketTotalsTx(ctx context.Context, tx *gorm.DB, marketID uint64, amount decimal.Decimal) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ?", marketID).
		Updates(map[string]any{
			"total_staked": gorm.Expr("total_staked + ?", amount),
			"total_volume": gorm.Expr("total_volume + ?", amount),
		}).Error
}

func (s *Store) MarkMarketResolvedTx(ctx context.Context, tx *gorm.DB, marketID uint64, winningOutcome string, resolvedAt time.Time) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ?", marketID).
		Updates(map[string]any{
			"status":          models.MarketStatusResolved,
			"winning_outcome": winningOutcome,
			"resolved_at":     resolvedAt,
		}).Error
}

func (s *Store) EarliestMarketCreatedAt(ctx context.Context) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).Order("created_at asc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := item.CreatedAt
	return &t, nil
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyMarketFilters(s.db.WithContext(ctx).Model(&models.Market{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Market
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	query := s.applyMarketFilters(s.db.WithContext(ctx).Model(&models.Market{}), params)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) applyMarketFilters(query *gorm.DB, params repository.ListMarketsParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.Question != nil && strings.TrimSpace(*params.Question) != "" {
		query = query.Where("question ILIKE ?", "%"+strings.TrimSpace(*params.Question)+"%")
	}
	return query
}

// --- Outcomes ---------------------------------------------------------------

func (s *Store) CreateOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error {
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

func (s *Store) ListOutcomesByMarketID(ctx context.Context, marketID uint64) ([]models.Outcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Outcome
	if err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("idx asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) IncrementOutcomeStakedTx(ctx context.Context, tx *gorm.DB, outcomeID uint64, amount decimal.Decimal) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("id = ?", outcomeID).
		Update("total_staked", gorm.Expr("total_staked + ?", amount)).Error
}

func (s *Store) RefreshOutcomeProbabilitiesTx(ctx context.Context, tx *gorm.DB, marketID uint64) error {
	if s == nil || tx == nil {
		return nil
	}
	var market models.Market
	if err := tx.WithContext(ctx).Where("id = ?", marketID).First(&market).Error; err != nil {
		return err
	}
	if !market.TotalStaked.IsPositive() {
		return nil
	}
	var outcomes []models.Outcome
	if err := tx.WithContext(ctx).Where("market_id = ?", marketID).Find(&outcomes).Error; err != nil {
		return err
	}
	for _, o := range outcomes {
		prob := o.TotalStaked.Div(market.TotalStaked)
		if err := tx.WithContext(ctx).
			Model(&models.Outcome{}).
			Where("id = ?", o.ID).
			Update("probability", prob).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) MarkOutcomeWinningTx(ctx context.Context, tx *gorm.DB, outcomeID uint64) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("id = ?", outcomeID).
		Update("is_winning", true).Error
}

// --- Predictions ------------------------------------------------------------

func (s *Store) CreatePredictionTx(ctx context.Context, tx *gorm.DB, item *models.Prediction) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

func (s *Store) PredictionExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.Prediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPredictionFilters(s.db.WithContext(ctx).Model(&models.Prediction{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Prediction
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPredictions(ctx context.Context, params repository.ListPredictionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	query := applyPredictionFilters(s.db.WithContext(ctx).Model(&models.Prediction{}), params)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyPredictionFilters(query *gorm.DB, params repository.ListPredictionsParams) *gorm.DB {
	if params.MarketID != nil {
		query = query.Where("market_id = ?", *params.MarketID)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	return query
}

// --- Resolutions ------------------------------------------------------------

func (s *Store) CreateResolutionTx(ctx context.Context, tx *gorm.DB, item *models.Resolution) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

func (s *Store) ListResolutions(ctx context.Context, params repository.ListResolutionsParams) ([]models.Resolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Resolution{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("resolved_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Resolution
	if err := query.Order("resolved_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Aggregates -------------------------------------------------------------

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 20)
	var rows []repository.LeaderboardRow
	err := s.db.WithContext(ctx).
		Table("predictions AS p").
		Select(`
			u.address AS address,
			COUNT(*) AS predictions,
			COALESCE(SUM(p.amount),0) AS total_staked,
			COALESCE(SUM(p.potential_payout),0) AS potential_payout
		`).
		Joins("JOIN users AS u ON u.id = p.user_id").
		Group("u.address").
		Order("total_staked desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) MirrorCounts(ctx context.Context) (repository.MirrorCounts, error) {
	var out repository.MirrorCounts
	if s == nil || s.db == nil {
		return out, nil
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&out.Users).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Market{}).Count(&out.Markets).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Market{}).Where("status = ?", models.MarketStatusActive).Count(&out.ActiveMarkets).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Market{}).Where("status = ?", models.MarketStatusResolved).Count(&out.ResolvedMarkets).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Prediction{}).Count(&out.Predictions).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Resolution{}).Count(&out.Resolutions).Error; err != nil {
		return out, err
	}
	return out, nil
}

// --- Sync watermark ---------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SyncState
	err := s.db.WithContext(ctx).Where("scope = ?", scope).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_block",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

// --- Helpers ----------------------------------------------------------------

func wrapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicate
	}
	return err
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
