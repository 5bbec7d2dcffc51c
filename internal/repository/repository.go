package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"oraclex/internal/models"
)

// ErrDuplicate is returned when a unique constraint rejects a write, e.g. a
// prediction whose transaction hash was already mirrored.
var ErrDuplicate = errors.New("repository: duplicate row")

// Store is the persistence surface of the mirror. Methods with a Tx suffix
// take the transaction handle from InTx so one projected event maps to one
// atomic multi-statement transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users.
	FindOrCreateUserTx(ctx context.Context, tx *gorm.DB, address string) (*models.User, error)
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	UserSummary(ctx context.Context, userID uint64) (UserSummary, error)

	// Markets.
	CreateMarketTx(ctx context.Context, tx *gorm.DB, item *models.Market) error
	GetMarketByExternalID(ctx context.Context, externalID string) (*models.Market, error)
	IncrementMarketTotalsTx(ctx context.Context, tx *gorm.DB, marketID uint64, amount decimal.Decimal) error
	MarkMarketResolvedTx(ctx context.Context, tx *gorm.DB, marketID uint64, winningOutcome string, resolvedAt time.Time) error
	EarliestMarketCreatedAt(ctx context.Context) (*time.Time, error)
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	CountMarkets(ctx context.Context, params ListMarketsParams) (int64, error)

	// Outcomes.
	CreateOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error
	ListOutcomesByMarketID(ctx context.Context, marketID uint64) ([]models.Outcome, error)
	IncrementOutcomeStakedTx(ctx context.Context, tx *gorm.DB, outcomeID uint64, amount decimal.Decimal) error
	RefreshOutcomeProbabilitiesTx(ctx context.Context, tx *gorm.DB, marketID uint64) error
	MarkOutcomeWinningTx(ctx context.Context, tx *gorm.DB, outcomeID uint64) error

	// Predictions.
	CreatePredictionTx(ctx context.Context, tx *gorm.DB, item *models.Prediction) error
	PredictionExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	ListPredictions(ctx context.Context, params ListPredictionsParams) ([]models.Prediction, error)
	CountPredictions(ctx context.Context, params ListPredictionsParams) (int64, error)

	// Resolutions.
	CreateResolutionTx(ctx context.Context, tx *gorm.DB, item *models.Resolution) error
	ListResolutions(ctx context.Context, params ListResolutionsParams) ([]models.Resolution, error)

	// Aggregates for the read API.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
	MirrorCounts(ctx context.Context) (MirrorCounts, error)

	// Sync watermark.
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
}

type ListMarketsParams struct {
	Limit    int
	Offset   int
	Status   *string
	Category *string
	Question *string
	OrderBy  string
	Asc      *bool
}

type ListPredictionsParams struct {
	Limit    int
	Offset   int
	MarketID *uint64
	UserID   *uint64
	OrderBy  string
	Asc      *bool
}

type ListResolutionsParams struct {
	Limit  int
	Offset int
	Since  *time.Time
}

type UserSummary struct {
	Predictions     int64
	TotalStaked     decimal.Decimal
	PotentialPayout decimal.Decimal
}

type LeaderboardRow struct {
	Address         string
	Predictions     int64
	TotalStaked     decimal.Decimal
	PotentialPayout decimal.Decimal
}

type MirrorCounts struct {
	Users           int64
	Markets         int64
	ActiveMarkets   int64
	ResolvedMarkets int64
	Predictions     int64
	Resolutions     int64
}
