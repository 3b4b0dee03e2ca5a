package exiteval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optiondesk/internal/clock"
	"optiondesk/internal/market"
	"optiondesk/internal/models"
)

const testDate = "2026-08-28"

type stubSwitches struct {
	exit    bool
	refresh bool
}

func (s *stubSwitches) ExitEvaluator(context.Context) bool { return s.exit }
func (s *stubSwitches) PriceRefresh(context.Context) bool  { return s.refresh }

func atTime(t *testing.T, hhmm string) clock.Clock {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad time %q: %v", hhmm, err)
	}
	return clock.Fixed(time.Date(2026, 8, 28, parsed.Hour(), parsed.Minute(), 0, 0, loc))
}

func newEvaluator(repo *stubRepo, gw *stubGateway, c clock.Clock) *Evaluator {
	return &Evaluator{
		Repo:     repo,
		Gateway:  gw,
		Clock:    c,
		Logger:   zap.NewNop(),
		Switches: &stubSwitches{exit: true, refresh: true},
		Opts: Options{
			EODExitTime:          "15:25",
			VWAPCrossGraceTime:   "11:15",
			ProfitTargetMultiple: decimal.NewFromFloat(1.5),
		},
	}
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
func decPtr(v float64) *decimal.Decimal {
	d := dec(v)
	return &d
}

func openTrade(repo *stubRepo, symbol string, direction models.Direction, buy, stop float64, qty int) *models.TradeRecord {
	key := symbol + "-opt"
	return repo.add(&models.TradeRecord{
		Symbol:        symbol,
		Slot:          "10:15",
		Direction:     direction,
		TradeDate:     testDate,
		TriggerPrice:  dec(100),
		AlertAt:       time.Now(),
		InstrumentKey: &key,
		Quantity:      qty,
		LotSize:       qty,
		BuyPrice:      decPtr(buy),
		StopLoss:      decPtr(stop),
		OptionLTP:     decPtr(buy),
		Status:        models.StatusBought,
	})
}

func neutralGateway(symbol string, optionLTP float64) *stubGateway {
	return &stubGateway{
		quotes: map[string]market.Quote{
			symbol: {Symbol: symbol, LTP: dec(100), VWAP: dec(100)},
		},
		optionLTPs: map[string]decimal.Decimal{
			symbol + "-opt": dec(optionLTP),
		},
	}
}

func TestStopLossExit(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "RELIANCE", models.DirectionBullish, 100, 90, 50)
	gw := neutralGateway("RELIANCE", 89.5)

	newEvaluator(repo, gw, atTime(t, "12:15")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusSold || got.ExitReason == nil || *got.ExitReason != models.ExitStopLoss {
		t.Fatalf("expected stop_loss close, got %+v", got)
	}
	if got.PnL == nil || got.PnL.String() != "-525" {
		t.Fatalf("pnl = %v, want -525", got.PnL)
	}
}

func TestProfitTargetExitAtExactMultiple(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "TCS", models.DirectionBearish, 100, 90, 25)
	gw := neutralGateway("TCS", 150)

	newEvaluator(repo, gw, atTime(t, "12:15")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusSold || *got.ExitReason != models.ExitProfitTarget {
		t.Fatalf("expected profit_target close, got %+v", got)
	}
	if got.PnL.String() != "1250" {
		t.Fatalf("pnl = %s, want 1250", got.PnL)
	}
}

func TestTimeBasedOutranksProfitTarget(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "INFY", models.DirectionBullish, 100, 90, 25)
	gw := neutralGateway("INFY", 200)

	newEvaluator(repo, gw, atTime(t, "15:25")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusSold || *got.ExitReason != models.ExitTimeBased {
		t.Fatalf("expected time_based close, got reason %v", got.ExitReason)
	}
	if got.SellPrice.String() != "200" {
		t.Fatalf("sell price = %s, want 200", got.SellPrice)
	}
}

func TestTimeBasedFiresOnDeadFeed(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "INFY", models.DirectionBullish, 100, 90, 25)
	rec.OptionLTP = decPtr(112)
	gw := &stubGateway{ltpErr: errors.New("feed down"), quoteErr: errors.New("feed down")}

	newEvaluator(repo, gw, atTime(t, "15:30")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusSold || *got.ExitReason != models.ExitTimeBased {
		t.Fatalf("eod exit must fire even without quotes, got %+v", got)
	}
	if got.SellPrice.String() != "112" {
		t.Fatalf("sell price = %s, want last stored 112", got.SellPrice)
	}
}

func TestVWAPCrossRespectsGraceWindow(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "HDFC", models.DirectionBullish, 100, 80, 10)
	gw := &stubGateway{
		quotes: map[string]market.Quote{
			// bullish thesis invalidated: stock under vwap
			"HDFC": {Symbol: "HDFC", LTP: dec(95), VWAP: dec(100)},
		},
		optionLTPs: map[string]decimal.Decimal{"HDFC-opt": dec(110)},
	}

	newEvaluator(repo, gw, atTime(t, "10:45")).RunOnce(context.Background())
	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusBought {
		t.Fatalf("vwap cross must not fire before the grace time, got %s", got.Status)
	}

	newEvaluator(repo, gw, atTime(t, "11:15")).RunOnce(context.Background())
	got, _ = repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusSold || *got.ExitReason != models.ExitStockVWAPCross {
		t.Fatalf("expected stock_vwap_cross at the grace boundary, got %+v", got)
	}
}

func TestStopLossOutranksVWAPCross(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "SBIN", models.DirectionBullish, 100, 90, 10)
	gw := &stubGateway{
		quotes: map[string]market.Quote{
			"SBIN": {Symbol: "SBIN", LTP: dec(95), VWAP: dec(100)},
		},
		optionLTPs: map[string]decimal.Decimal{"SBIN-opt": dec(85)},
	}

	newEvaluator(repo, gw, atTime(t, "13:15")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if *got.ExitReason != models.ExitStopLoss {
		t.Fatalf("stop_loss must outrank stock_vwap_cross, got %s", *got.ExitReason)
	}
}

func TestNoRuleRefreshesPrices(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "WIPRO", models.DirectionBullish, 100, 90, 10)
	gw := &stubGateway{
		quotes: map[string]market.Quote{
			"WIPRO": {Symbol: "WIPRO", LTP: dec(105), VWAP: dec(101)},
		},
		optionLTPs: map[string]decimal.Decimal{"WIPRO-opt": dec(120)},
	}

	newEvaluator(repo, gw, atTime(t, "12:15")).RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusBought {
		t.Fatalf("trade should stay open, got %s", got.Status)
	}
	if got.OptionLTP.String() != "120" || got.StockLTP.String() != "105" {
		t.Fatalf("prices not refreshed: option=%s stock=%v", got.OptionLTP, got.StockLTP)
	}
	if repo.updates[rec.ID] != 1 {
		t.Fatalf("updates = %d, want 1", repo.updates[rec.ID])
	}
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "RELIANCE", models.DirectionBullish, 100, 90, 50)
	gw := neutralGateway("RELIANCE", 85)
	ev := newEvaluator(repo, gw, atTime(t, "12:15"))

	ev.RunOnce(context.Background())
	first, _ := repo.GetTradeByID(context.Background(), rec.ID)

	gw.optionLTPs["RELIANCE-opt"] = dec(300)
	ev.RunOnce(context.Background())
	second, _ := repo.GetTradeByID(context.Background(), rec.ID)

	if !second.SellPrice.Equal(*first.SellPrice) || *second.ExitReason != *first.ExitReason {
		t.Fatalf("closed trade was rewritten: %+v vs %+v", first, second)
	}

	if _, err := ev.ManualClose(context.Background(), rec.ID); !errors.Is(err, ErrNotClosable) {
		t.Fatalf("manual close of a sold trade should fail, got %v", err)
	}
}

func TestNonOpenRecordsExcluded(t *testing.T) {
	repo := newStubRepo()
	noEntry := repo.add(&models.TradeRecord{
		Symbol: "IDEA", Slot: "10:15", Direction: models.DirectionBullish,
		TradeDate: testDate, Status: models.StatusNoEntry,
	})
	failed := repo.add(&models.TradeRecord{
		Symbol: "YESBANK", Slot: "11:15", Direction: models.DirectionBearish,
		TradeDate: testDate, Status: models.StatusEnrichmentFailed,
	})
	gw := &stubGateway{}

	newEvaluator(repo, gw, atTime(t, "15:30")).RunOnce(context.Background())

	for _, rec := range []*models.TradeRecord{noEntry, failed} {
		got, _ := repo.GetTradeByID(context.Background(), rec.ID)
		if got.Status != rec.Status || got.SellTime != nil {
			t.Fatalf("%s record should be untouched, got %+v", rec.Status, got)
		}
	}
}

func TestSwitchDisablesEvaluator(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "RELIANCE", models.DirectionBullish, 100, 90, 50)
	gw := neutralGateway("RELIANCE", 10)

	ev := newEvaluator(repo, gw, atTime(t, "12:15"))
	ev.Switches = &stubSwitches{exit: false, refresh: true}
	ev.RunOnce(context.Background())

	got, _ := repo.GetTradeByID(context.Background(), rec.ID)
	if got.Status != models.StatusBought {
		t.Fatalf("disabled evaluator must not close trades, got %s", got.Status)
	}
}

func TestManualClose(t *testing.T) {
	repo := newStubRepo()
	rec := openTrade(repo, "TATAMOTORS", models.DirectionBearish, 100, 90, 10)
	gw := neutralGateway("TATAMOTORS", 104)

	ev := newEvaluator(repo, gw, atTime(t, "12:15"))
	got, err := ev.ManualClose(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("ManualClose: %v", err)
	}
	if got.Status != models.StatusSold || *got.ExitReason != models.ExitManual {
		t.Fatalf("expected manual close, got %+v", got)
	}
	if got.PnL.String() != "40" {
		t.Fatalf("pnl = %s, want 40", got.PnL)
	}

	if _, err := ev.ManualClose(context.Background(), 9999); !errors.Is(err, ErrNotClosable) {
		t.Fatalf("unknown id should not be closable, got %v", err)
	}
}

func TestRefreshQuotes(t *testing.T) {
	repo := newStubRepo()
	a := openTrade(repo, "RELIANCE", models.DirectionBullish, 100, 90, 50)
	openTrade(repo, "GHOST", models.DirectionBullish, 100, 90, 50)
	gw := neutralGateway("RELIANCE", 111)

	ev := newEvaluator(repo, gw, atTime(t, "12:15"))
	refreshed, err := ev.RefreshQuotes(context.Background())
	if err != nil {
		t.Fatalf("RefreshQuotes: %v", err)
	}
	if refreshed != 1 {
		t.Fatalf("refreshed = %d, want 1 (no feed for GHOST)", refreshed)
	}
	got, _ := repo.GetTradeByID(context.Background(), a.ID)
	if got.OptionLTP.String() != "111" {
		t.Fatalf("option ltp = %s, want 111", got.OptionLTP)
	}
	if got.Status != models.StatusBought {
		t.Fatalf("refresh must not close trades, got %s", got.Status)
	}
}
