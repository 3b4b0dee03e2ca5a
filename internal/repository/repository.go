package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

// Repository is the persistence surface for the trade lifecycle. The gorm
// store implements it; tests use an in-memory stub.
type Repository interface {
	// Trades. CreateTradeIfAbsent is the idempotent first write: it reports
	// created=false when a record for the composite key already exists.
	CreateTradeIfAbsent(ctx context.Context, item *models.TradeRecord) (bool, error)
	// SaveTradeMinimal is the degraded second-tier write: symbol and alert
	// metadata only, so no alert disappears when full enrichment save fails.
	SaveTradeMinimal(ctx context.Context, item *models.TradeRecord) error
	GetTradeByID(ctx context.Context, id uint64) (*models.TradeRecord, error)
	GetTradeByKey(ctx context.Context, symbol, slot string, direction models.Direction, tradeDate string) (*models.TradeRecord, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.TradeRecord, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListOpenTrades(ctx context.Context, tradeDate string) ([]models.TradeRecord, error)
	ListOpenSymbols(ctx context.Context, tradeDate string) ([]string, error)
	UpdateTradeQuotes(ctx context.Context, id uint64, updates map[string]any) error
	UpdateStockLTPBySymbol(ctx context.Context, tradeDate, symbol string, ltp decimal.Decimal, observedAt time.Time) error
	// CloseTrade applies the single allowed bought→sold transition. It
	// reports closed=false when the record was not in a closable state, so a
	// second close attempt is a no-op.
	CloseTrade(ctx context.Context, id uint64, sellPrice, pnl decimal.Decimal, reason string, sellAt time.Time) (bool, error)
	SumRealizedPnL(ctx context.Context, tradeDate string) (decimal.Decimal, error)

	// Index trend audit.
	InsertIndexTrendSnapshot(ctx context.Context, item *models.IndexTrendSnapshot) error
	ListIndexTrendSnapshots(ctx context.Context, tradeDate string, limit int) ([]models.IndexTrendSnapshot, error)

	// Feature switches.
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
}

type ListTradesParams struct {
	Limit     int
	Offset    int
	TradeDate *string
	Status    *string
	Direction *models.Direction
	Symbol    *string
	OrderBy   string
	Asc       *bool
}
