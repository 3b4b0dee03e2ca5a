package trend

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optiondesk/internal/clock"
	"optiondesk/internal/market"
	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

// Trend is an index's intraday bias, classified from LTP against VWAP.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Policy controls what happens when the tracked indices disagree with each
// other. per_alert lets an alert through when at least one index backs its
// direction; block_all refuses every entry until the indices realign.
type Policy string

const (
	PolicyPerAlert Policy = "per_alert"
	PolicyBlockAll Policy = "block_all"
)

func ParsePolicy(raw string) Policy {
	if Policy(raw) == PolicyBlockAll {
		return PolicyBlockAll
	}
	return PolicyPerAlert
}

// Classify maps an index quote to its trend. Equal LTP and VWAP is neutral.
func Classify(ltp, vwap decimal.Decimal) Trend {
	switch ltp.Cmp(vwap) {
	case 1:
		return TrendBullish
	case -1:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

func directionTrend(direction models.Direction) Trend {
	if direction == models.DirectionBearish {
		return TrendBearish
	}
	return TrendBullish
}

// Decide is the pure admission rule. No opposing index admits the alert;
// a fully opposed panel blocks it; a split panel defers to the policy.
func Decide(direction models.Direction, trends []Trend, policy Policy) bool {
	want := directionTrend(direction)
	support, oppose := 0, 0
	for _, t := range trends {
		switch t {
		case want:
			support++
		case TrendNeutral:
		default:
			oppose++
		}
	}
	if oppose == 0 {
		return true
	}
	if support == 0 {
		return false
	}
	return policy == PolicyPerAlert
}

// Gate checks market breadth before an entry is taken. Quote failures fail
// open: a dead index feed must not silently halt the whole strategy.
type Gate struct {
	Gateway market.Gateway
	Repo    repository.Repository
	Clock   clock.Clock
	Logger  *zap.Logger
	Indices []string
	Policy  Policy
}

// Allow fetches each tracked index, classifies its trend and records an
// audit snapshot, then applies Decide for the alert's direction.
func (g *Gate) Allow(ctx context.Context, direction models.Direction) (bool, error) {
	if g == nil || g.Gateway == nil {
		return true, nil
	}
	now := g.Clock.Now()
	tradeDate := clock.TradingDay(now)

	trends := make([]Trend, 0, len(g.Indices))
	type observed struct {
		name  string
		quote market.Quote
		trend Trend
	}
	seen := make([]observed, 0, len(g.Indices))
	for _, name := range g.Indices {
		quote, err := g.Gateway.Quote(ctx, name)
		if err != nil {
			g.Logger.Warn("index quote failed, gate fails open",
				zap.String("index", name), zap.Error(err))
			continue
		}
		t := Classify(quote.LTP, quote.VWAP)
		trends = append(trends, t)
		seen = append(seen, observed{name: name, quote: quote, trend: t})
	}

	allowed := Decide(direction, trends, g.Policy)

	if g.Repo != nil {
		for _, o := range seen {
			snap := &models.IndexTrendSnapshot{
				IndexName: o.name,
				LTP:       o.quote.LTP,
				VWAP:      o.quote.VWAP,
				Trend:     string(o.trend),
				Allowed:   allowed,
				Direction: direction,
				TradeDate: tradeDate,
				CreatedAt: now,
			}
			if err := g.Repo.InsertIndexTrendSnapshot(ctx, snap); err != nil {
				g.Logger.Warn("failed to record trend snapshot",
					zap.String("index", o.name), zap.Error(err))
			}
		}
	}
	return allowed, nil
}
