package exiteval

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"optiondesk/internal/clock"
	"optiondesk/internal/market"
	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

// Switches exposes the runtime feature flags the evaluator consults.
type Switches interface {
	ExitEvaluator(ctx context.Context) bool
	PriceRefresh(ctx context.Context) bool
}

type Options struct {
	EODExitTime          string
	VWAPCrossGraceTime   string
	ProfitTargetMultiple decimal.Decimal
	Interval             time.Duration
}

// Evaluator walks the day's open positions and applies the exit rules in
// strict precedence: time_based, then stop_loss, then stock_vwap_cross,
// then profit_target. A position that matches none has its prices
// refreshed and stays open.
type Evaluator struct {
	Repo     repository.Repository
	Gateway  market.Gateway
	Clock    clock.Clock
	Logger   *zap.Logger
	Switches Switches
	Opts     Options
}

// Run executes RunOnce on the configured interval until ctx is done. The
// cron schedule is the primary driver; Run is the fallback loop for
// deployments without the scheduler.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration) {
	if e == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every open position for today exactly once. A failure
// on one record never blocks the rest.
func (e *Evaluator) RunOnce(ctx context.Context) {
	if e == nil || e.Repo == nil {
		return
	}
	if e.Switches != nil && !e.Switches.ExitEvaluator(ctx) {
		e.Logger.Debug("exit evaluator disabled by switch")
		return
	}
	now := e.Clock.Now()
	tradeDate := clock.TradingDay(now)

	records, err := e.Repo.ListOpenTrades(ctx, tradeDate)
	if err != nil {
		e.Logger.Error("failed to list open trades", zap.Error(err))
		return
	}
	for i := range records {
		if err := e.evaluate(ctx, &records[i], now); err != nil {
			e.Logger.Error("exit evaluation failed",
				zap.Uint64("id", records[i].ID),
				zap.String("symbol", records[i].Symbol),
				zap.Error(err))
		}
	}
}

func (e *Evaluator) evaluate(ctx context.Context, rec *models.TradeRecord, now time.Time) error {
	if !rec.Open() || rec.BuyPrice == nil {
		return nil
	}

	optionLTP, haveOption := e.optionLTP(ctx, rec)
	stockLTP, stockVWAP, haveStock := e.stockQuote(ctx, rec)

	// time_based outranks everything and must fire even on a dead feed, so
	// it falls back to the last stored option price.
	if clock.AtOrAfter(now, e.Opts.EODExitTime) {
		price := optionLTP
		if !haveOption {
			price = e.lastKnownPrice(rec)
		}
		return e.close(ctx, rec, price, models.ExitTimeBased, now)
	}

	if !haveOption {
		// remaining rules all need a live option price
		return nil
	}

	if rec.StopLoss != nil && optionLTP.LessThanOrEqual(*rec.StopLoss) {
		return e.close(ctx, rec, optionLTP, models.ExitStopLoss, now)
	}

	if haveStock && clock.AtOrAfter(now, e.Opts.VWAPCrossGraceTime) &&
		rec.Direction.ThesisInvalidated(stockLTP, stockVWAP) {
		return e.close(ctx, rec, optionLTP, models.ExitStockVWAPCross, now)
	}

	target := rec.BuyPrice.Mul(e.Opts.ProfitTargetMultiple)
	if optionLTP.GreaterThanOrEqual(target) {
		return e.close(ctx, rec, optionLTP, models.ExitProfitTarget, now)
	}

	return e.refresh(ctx, rec, optionLTP, stockLTP, stockVWAP, haveStock, now)
}

func (e *Evaluator) optionLTP(ctx context.Context, rec *models.TradeRecord) (decimal.Decimal, bool) {
	if rec.InstrumentKey == nil {
		return decimal.Zero, false
	}
	ltp, err := e.Gateway.OptionLTP(ctx, *rec.InstrumentKey)
	if err != nil {
		e.Logger.Warn("option ltp fetch failed",
			zap.Uint64("id", rec.ID),
			zap.String("instrument_key", *rec.InstrumentKey),
			zap.Error(err))
		return decimal.Zero, false
	}
	return ltp, true
}

func (e *Evaluator) stockQuote(ctx context.Context, rec *models.TradeRecord) (ltp, vwap decimal.Decimal, ok bool) {
	quote, err := e.Gateway.Quote(ctx, rec.Symbol)
	if err != nil {
		e.Logger.Warn("stock quote fetch failed",
			zap.Uint64("id", rec.ID),
			zap.String("symbol", rec.Symbol),
			zap.Error(err))
		return decimal.Zero, decimal.Zero, false
	}
	return quote.LTP, quote.VWAP, true
}

func (e *Evaluator) lastKnownPrice(rec *models.TradeRecord) decimal.Decimal {
	if rec.OptionLTP != nil {
		return *rec.OptionLTP
	}
	if rec.BuyPrice != nil {
		return *rec.BuyPrice
	}
	return decimal.Zero
}

func (e *Evaluator) close(ctx context.Context, rec *models.TradeRecord, price decimal.Decimal, reason string, now time.Time) error {
	qty := decimal.NewFromInt(int64(rec.Quantity))
	pnl := price.Sub(*rec.BuyPrice).Mul(qty)

	closed, err := e.Repo.CloseTrade(ctx, rec.ID, price, pnl, reason, now)
	if err != nil {
		return err
	}
	if !closed {
		e.Logger.Debug("trade already closed, skipping",
			zap.Uint64("id", rec.ID), zap.String("reason", reason))
		return nil
	}
	e.Logger.Info("trade closed",
		zap.Uint64("id", rec.ID),
		zap.String("symbol", rec.Symbol),
		zap.String("reason", reason),
		zap.String("sell_price", price.String()),
		zap.String("pnl", pnl.String()))
	return nil
}

func (e *Evaluator) refresh(ctx context.Context, rec *models.TradeRecord, optionLTP, stockLTP, stockVWAP decimal.Decimal, haveStock bool, now time.Time) error {
	updates := map[string]any{
		"option_ltp": optionLTP,
		"updated_at": now,
	}
	if haveStock {
		updates["stock_ltp"] = stockLTP
		updates["stock_vwap"] = stockVWAP
		updates["vwap_observed_at"] = now
	}
	if blob := e.candleBlob(ctx, rec); blob != nil {
		updates["option_candles"] = blob
	}
	return e.Repo.UpdateTradeQuotes(ctx, rec.ID, updates)
}

// candleBlob is strictly best-effort display data.
func (e *Evaluator) candleBlob(ctx context.Context, rec *models.TradeRecord) datatypes.JSON {
	if rec.InstrumentKey == nil {
		return nil
	}
	candles, err := e.Gateway.OptionCandles(ctx, *rec.InstrumentKey)
	if err != nil {
		return nil
	}
	raw, err := json.Marshal(candles)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// RefreshQuotes updates option and stock prices for every open position
// without evaluating exit rules. Driven by the quote-refresh cron and the
// manual refresh endpoint.
func (e *Evaluator) RefreshQuotes(ctx context.Context) (int, error) {
	if e == nil || e.Repo == nil {
		return 0, nil
	}
	if e.Switches != nil && !e.Switches.PriceRefresh(ctx) {
		return 0, nil
	}
	now := e.Clock.Now()
	records, err := e.Repo.ListOpenTrades(ctx, clock.TradingDay(now))
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for i := range records {
		rec := &records[i]
		optionLTP, haveOption := e.optionLTP(ctx, rec)
		stockLTP, stockVWAP, haveStock := e.stockQuote(ctx, rec)
		if !haveOption && !haveStock {
			continue
		}
		updates := map[string]any{"updated_at": now}
		if haveOption {
			updates["option_ltp"] = optionLTP
		}
		if haveStock {
			updates["stock_ltp"] = stockLTP
			updates["stock_vwap"] = stockVWAP
			updates["vwap_observed_at"] = now
		}
		if err := e.Repo.UpdateTradeQuotes(ctx, rec.ID, updates); err != nil {
			e.Logger.Warn("quote refresh failed",
				zap.Uint64("id", rec.ID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

var ErrNotClosable = errors.New("trade is not in a closable state")

// ManualClose settles one position at the current option price with the
// manual exit reason. It is subject to the same terminal-transition guard
// as the automatic rules.
func (e *Evaluator) ManualClose(ctx context.Context, id uint64) (*models.TradeRecord, error) {
	if e == nil || e.Repo == nil {
		return nil, ErrNotClosable
	}
	rec, err := e.Repo.GetTradeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Open() || rec.BuyPrice == nil {
		return nil, ErrNotClosable
	}
	now := e.Clock.Now()
	price, haveOption := e.optionLTP(ctx, rec)
	if !haveOption {
		price = e.lastKnownPrice(rec)
	}
	if err := e.close(ctx, rec, price, models.ExitManual, now); err != nil {
		return nil, err
	}
	return e.Repo.GetTradeByID(ctx, id)
}
