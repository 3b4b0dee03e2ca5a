package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"optiondesk/internal/clock"
	"optiondesk/internal/market"
	"optiondesk/internal/repository"
)

// TickStreamService feeds streamed stock ticks into the open positions for
// the day, so the exit evaluator works off fresher underlying prices than
// the REST refresh alone provides.
type TickStreamService struct {
	Repo   repository.Repository
	Clock  clock.Clock
	Logger *zap.Logger
}

type TickStreamOptions struct {
	URL             string
	RefreshInterval time.Duration
	MaxSymbols      int
}

func (s *TickStreamService) Run(ctx context.Context, opts TickStreamOptions) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	s.Logger.Info("tick stream starting",
		zap.String("url", opts.URL),
		zap.Duration("refresh_interval", opts.RefreshInterval))

	stream := market.NewTickStream(market.TickStreamOptions{
		URL:             opts.URL,
		SymbolProvider:  s.openSymbols(opts.MaxSymbols),
		RefreshInterval: opts.RefreshInterval,
		Logger:          s.Logger,
	})
	return stream.Run(ctx, func(tick market.Tick) {
		s.handleTick(ctx, tick)
	})
}

func (s *TickStreamService) openSymbols(max int) market.SymbolProvider {
	if max <= 0 {
		max = 200
	}
	return func(ctx context.Context) ([]string, error) {
		symbols, err := s.Repo.ListOpenSymbols(ctx, clock.TradingDay(s.Clock.Now()))
		if err != nil {
			s.Logger.Warn("fetch open symbols failed", zap.Error(err))
			return nil, err
		}
		if len(symbols) > max {
			symbols = symbols[:max]
		}
		return symbols, nil
	}
}

func (s *TickStreamService) handleTick(ctx context.Context, tick market.Tick) {
	now := s.Clock.Now()
	err := s.Repo.UpdateStockLTPBySymbol(ctx, clock.TradingDay(now), tick.Symbol, tick.LTP, now)
	if err != nil {
		s.Logger.Warn("tick update failed",
			zap.String("symbol", tick.Symbol), zap.Error(err))
	}
}
