package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Trade lifecycle states. alert_received is the entry state; no_entry and
// enrichment_failed are terminal without a position; bought transitions to
// sold exactly once.
const (
	StatusAlertReceived    = "alert_received"
	StatusNoEntry          = "no_entry"
	StatusEnrichmentFailed = "enrichment_failed"
	StatusBought           = "bought"
	StatusSold             = "sold"
)

// Exit reasons, in the evaluator's precedence order.
const (
	ExitTimeBased      = "time_based"
	ExitStopLoss       = "stop_loss"
	ExitStockVWAPCross = "stock_vwap_cross"
	ExitProfitTarget   = "profit_target"
	ExitManual         = "manual"
)

// TradeRecord is one screener alert and the option trade proposed for it.
// The composite unique index makes duplicate webhook deliveries no-ops.
type TradeRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol    string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_trade_key" json:"symbol"`
	Slot      string    `gorm:"type:varchar(5);not null;uniqueIndex:idx_trade_key" json:"slot"`
	Direction Direction `gorm:"type:varchar(10);not null;uniqueIndex:idx_trade_key" json:"direction"`
	TradeDate string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_trade_key;index" json:"trade_date"`

	TriggerPrice decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"trigger_price"`
	AlertAt      time.Time       `gorm:"type:timestamptz;not null" json:"alert_at"`
	ScanName     string          `gorm:"type:varchar(200)" json:"scan_name"`
	ScanURL      string          `gorm:"type:varchar(500)" json:"scan_url,omitempty"`

	StockLTP       *decimal.Decimal `gorm:"type:numeric(20,4)" json:"stock_ltp,omitempty"`
	StockVWAP      *decimal.Decimal `gorm:"type:numeric(20,4)" json:"stock_vwap,omitempty"`
	VWAPObservedAt *time.Time       `gorm:"type:timestamptz" json:"vwap_observed_at,omitempty"`

	OptionSymbol  *string          `gorm:"type:varchar(100)" json:"option_symbol,omitempty"`
	OptionType    *OptionType      `gorm:"type:varchar(2)" json:"option_type,omitempty"`
	InstrumentKey *string          `gorm:"type:varchar(100);index" json:"instrument_key,omitempty"`
	LotSize       int              `gorm:"not null;default:0" json:"lot_size"`
	Quantity      int              `gorm:"not null;default:0" json:"quantity"`
	OptionLTP     *decimal.Decimal `gorm:"type:numeric(20,4)" json:"option_ltp,omitempty"`
	OptionCandles datatypes.JSON   `gorm:"type:jsonb" json:"option_candles,omitempty"`

	BuyPrice  *decimal.Decimal `gorm:"type:numeric(20,4)" json:"buy_price,omitempty"`
	StopLoss  *decimal.Decimal `gorm:"type:numeric(20,4)" json:"stop_loss,omitempty"`
	SellPrice *decimal.Decimal `gorm:"type:numeric(20,4)" json:"sell_price,omitempty"`
	PnL       *decimal.Decimal `gorm:"column:pnl;type:numeric(20,4)" json:"pnl,omitempty"`

	Status     string     `gorm:"type:varchar(20);not null;default:'alert_received';index" json:"status"`
	ExitReason *string    `gorm:"type:varchar(20)" json:"exit_reason,omitempty"`
	SellTime   *time.Time `gorm:"type:timestamptz" json:"sell_time,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// Open reports whether the record still has a live position.
func (t *TradeRecord) Open() bool {
	return t.Status == StatusBought
}

// Closed reports whether the terminal sell fields are set.
func (t *TradeRecord) Closed() bool {
	return t.Status == StatusSold && t.SellPrice != nil && t.ExitReason != nil && t.SellTime != nil
}

// CandleSet is the optional option-LTP history blob: current and previous
// one-hour candle plus the previous hour's VWAP. Stored as jsonb, consumed
// only by dashboard views.
type CandleSet struct {
	Current  Candle           `json:"current"`
	Previous Candle           `json:"previous"`
	PrevVWAP *decimal.Decimal `json:"prev_vwap,omitempty"`
}

type Candle struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
	At    time.Time       `json:"at"`
}
