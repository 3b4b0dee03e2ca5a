package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

// ErrNoContract is returned by FindOTMOption when the option chain has no
// strike matching the request.
var ErrNoContract = errors.New("no matching option contract")

// Quote is a spot observation: last traded price and the current-hour VWAP.
type Quote struct {
	Symbol     string          `json:"symbol"`
	LTP        decimal.Decimal `json:"ltp"`
	VWAP       decimal.Decimal `json:"vwap"`
	ObservedAt time.Time       `json:"observed_at"`
}

// OptionContract identifies a tradable option instrument.
type OptionContract struct {
	Symbol        string          `json:"symbol"`
	InstrumentKey string          `json:"instrument_key"`
	Strike        decimal.Decimal `json:"strike"`
	Expiry        string          `json:"expiry"`
	LotSize       int             `json:"lot_size"`
}

// Gateway is the market-data contract this service consumes. The broker
// client implements it; tests substitute an in-memory stub.
type Gateway interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	FindOTMOption(ctx context.Context, underlying string, optType models.OptionType, steps int) (OptionContract, error)
	OptionLTP(ctx context.Context, instrumentKey string) (decimal.Decimal, error)
	OptionCandles(ctx context.Context, instrumentKey string) (models.CandleSet, error)
}
