package exiteval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optiondesk/internal/market"
	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

type stubRepo struct {
	mu      sync.Mutex
	nextID  uint64
	trades  map[uint64]*models.TradeRecord
	updates map[uint64]int
}

var _ repository.Repository = (*stubRepo)(nil)

func newStubRepo() *stubRepo {
	return &stubRepo{
		trades:  map[uint64]*models.TradeRecord{},
		updates: map[uint64]int{},
	}
}

func (s *stubRepo) add(item *models.TradeRecord) *models.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	s.trades[item.ID] = item
	return item
}

func (s *stubRepo) key(item *models.TradeRecord) string {
	return fmt.Sprintf("%s|%s|%s|%s", item.Symbol, item.Slot, item.Direction, item.TradeDate)
}

func (s *stubRepo) CreateTradeIfAbsent(_ context.Context, item *models.TradeRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.trades {
		if s.key(existing) == s.key(item) {
			return false, nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	s.trades[item.ID] = item
	return true, nil
}

func (s *stubRepo) SaveTradeMinimal(_ context.Context, item *models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	minimal := &models.TradeRecord{
		ID:           s.nextID,
		Symbol:       item.Symbol,
		Slot:         item.Slot,
		Direction:    item.Direction,
		TradeDate:    item.TradeDate,
		TriggerPrice: item.TriggerPrice,
		AlertAt:      item.AlertAt,
		Status:       models.StatusAlertReceived,
	}
	s.trades[minimal.ID] = minimal
	return nil
}

func (s *stubRepo) GetTradeByID(_ context.Context, id uint64) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *stubRepo) GetTradeByKey(_ context.Context, symbol, slot string, direction models.Direction, tradeDate string) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.trades {
		if item.Symbol == symbol && item.Slot == slot && item.Direction == direction && item.TradeDate == tradeDate {
			copied := *item
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListTrades(_ context.Context, params repository.ListTradesParams) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeRecord, 0, len(s.trades))
	for _, item := range s.trades {
		if params.Status != nil && item.Status != *params.Status {
			continue
		}
		if params.TradeDate != nil && item.TradeDate != *params.TradeDate {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	items, err := s.ListTrades(ctx, params)
	return int64(len(items)), err
}

func (s *stubRepo) ListOpenTrades(_ context.Context, tradeDate string) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeRecord, 0)
	for id := uint64(1); id <= s.nextID; id++ {
		item, ok := s.trades[id]
		if !ok {
			continue
		}
		if item.TradeDate == tradeDate && item.Status == models.StatusBought {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *stubRepo) ListOpenSymbols(ctx context.Context, tradeDate string) ([]string, error) {
	items, err := s.ListOpenTrades(ctx, tradeDate)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Symbol]; ok {
			continue
		}
		seen[item.Symbol] = struct{}{}
		out = append(out, item.Symbol)
	}
	return out, nil
}

func (s *stubRepo) UpdateTradeQuotes(_ context.Context, id uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return nil
	}
	s.updates[id]++
	if v, ok := updates["option_ltp"].(decimal.Decimal); ok {
		item.OptionLTP = &v
	}
	if v, ok := updates["stock_ltp"].(decimal.Decimal); ok {
		item.StockLTP = &v
	}
	if v, ok := updates["stock_vwap"].(decimal.Decimal); ok {
		item.StockVWAP = &v
	}
	if v, ok := updates["vwap_observed_at"].(time.Time); ok {
		item.VWAPObservedAt = &v
	}
	return nil
}

func (s *stubRepo) UpdateStockLTPBySymbol(_ context.Context, tradeDate, symbol string, ltp decimal.Decimal, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.trades {
		if item.TradeDate == tradeDate && item.Symbol == symbol && item.Status == models.StatusBought {
			v := ltp
			item.StockLTP = &v
		}
	}
	return nil
}

func (s *stubRepo) CloseTrade(_ context.Context, id uint64, sellPrice, pnl decimal.Decimal, reason string, sellAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok || item.Status != models.StatusBought || item.SellTime != nil {
		return false, nil
	}
	item.Status = models.StatusSold
	item.SellPrice = &sellPrice
	item.PnL = &pnl
	item.ExitReason = &reason
	item.SellTime = &sellAt
	return true, nil
}

func (s *stubRepo) SumRealizedPnL(_ context.Context, tradeDate string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, item := range s.trades {
		if item.TradeDate == tradeDate && item.Status == models.StatusSold && item.PnL != nil {
			sum = sum.Add(*item.PnL)
		}
	}
	return sum, nil
}

func (s *stubRepo) InsertIndexTrendSnapshot(_ context.Context, _ *models.IndexTrendSnapshot) error {
	return nil
}

func (s *stubRepo) ListIndexTrendSnapshots(_ context.Context, _ string, _ int) ([]models.IndexTrendSnapshot, error) {
	return nil, nil
}

func (s *stubRepo) UpsertSystemSetting(_ context.Context, _ *models.SystemSetting) error {
	return nil
}

func (s *stubRepo) GetSystemSettingByKey(_ context.Context, _ string) (*models.SystemSetting, error) {
	return nil, nil
}

func (s *stubRepo) ListSystemSettings(_ context.Context) ([]models.SystemSetting, error) {
	return nil, nil
}

type stubGateway struct {
	quotes      map[string]market.Quote
	quoteErr    error
	contracts   map[string]market.OptionContract
	contractErr error
	optionLTPs  map[string]decimal.Decimal
	ltpErr      error
}

var _ market.Gateway = (*stubGateway)(nil)

func (g *stubGateway) Quote(_ context.Context, symbol string) (market.Quote, error) {
	if g.quoteErr != nil {
		return market.Quote{}, g.quoteErr
	}
	q, ok := g.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (g *stubGateway) FindOTMOption(_ context.Context, underlying string, _ models.OptionType, _ int) (market.OptionContract, error) {
	if g.contractErr != nil {
		return market.OptionContract{}, g.contractErr
	}
	c, ok := g.contracts[underlying]
	if !ok {
		return market.OptionContract{}, market.ErrNoContract
	}
	return c, nil
}

func (g *stubGateway) OptionLTP(_ context.Context, instrumentKey string) (decimal.Decimal, error) {
	if g.ltpErr != nil {
		return decimal.Zero, g.ltpErr
	}
	ltp, ok := g.optionLTPs[instrumentKey]
	if !ok {
		return decimal.Zero, fmt.Errorf("no ltp for %s", instrumentKey)
	}
	return ltp, nil
}

func (g *stubGateway) OptionCandles(_ context.Context, _ string) (models.CandleSet, error) {
	return models.CandleSet{}, fmt.Errorf("no candles")
}
