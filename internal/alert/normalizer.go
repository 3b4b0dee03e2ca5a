package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"optiondesk/internal/clock"
	"optiondesk/internal/models"
)

// Payload is the raw webhook body sent by the screener: comma-separated
// stock and price lists, a human-formatted trigger time and scan metadata.
type Payload struct {
	Stocks        string `json:"stocks" binding:"required"`
	TriggerPrices string `json:"trigger_prices" binding:"required"`
	TriggeredAt   string `json:"triggered_at" binding:"required"`
	ScanName      string `json:"scan_name"`
	ScanURL       string `json:"scan_url"`
	AlertName     string `json:"alert_name"`
	AlertType     string `json:"alert_type"`
}

// Unit is one normalized (symbol, price, slot, direction) enrichment input.
type Unit struct {
	Symbol       string
	TriggerPrice decimal.Decimal
	Slot         string
	Direction    models.Direction
	AlertAt      time.Time
	TradeDate    string
	ScanName     string
	ScanURL      string
}

var triggerTimeLayouts = []string{
	"3:04 pm",
	"3:04 PM",
	"3:04pm",
	"03:04 PM",
	"15:04",
	"3:04:05 pm",
	"15:04:05",
}

// ParseTriggerTime reads the screener's human time formats and pins the
// result onto now's calendar date in now's location.
func ParseTriggerTime(raw string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range triggerTimeLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return time.Date(now.Year(), now.Month(), now.Day(),
			parsed.Hour(), parsed.Minute(), parsed.Second(), 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized trigger time %q", raw)
}

// Normalizer validates and splits webhook payloads into enrichment units.
type Normalizer struct {
	Slots *Slots
}

// Normalize splits a multi-stock payload into one unit per symbol. Count
// mismatch between the stock and price lists rejects the whole payload;
// a pre-open trigger time drops all units (dropped count reported).
func (n *Normalizer) Normalize(p Payload, direction models.Direction, now time.Time) ([]Unit, int, error) {
	if n == nil || n.Slots == nil {
		return nil, 0, errors.New("normalizer not configured")
	}
	if !direction.Valid() {
		return nil, 0, fmt.Errorf("invalid direction %q", direction)
	}

	symbols := splitList(p.Stocks)
	prices := splitList(p.TriggerPrices)
	if len(symbols) == 0 {
		return nil, 0, errors.New("empty stock list")
	}
	if len(symbols) != len(prices) {
		return nil, 0, fmt.Errorf("stock/price count mismatch: %d stocks, %d prices", len(symbols), len(prices))
	}

	alertAt, err := ParseTriggerTime(p.TriggeredAt, now)
	if err != nil {
		return nil, 0, err
	}

	slot, err := n.Slots.Snap(alertAt)
	if errors.Is(err, ErrBeforeFirstSlot) {
		return nil, len(symbols), nil
	}
	if err != nil {
		return nil, 0, err
	}

	units := make([]Unit, 0, len(symbols))
	for i, symbol := range symbols {
		price, err := decimal.NewFromString(prices[i])
		if err != nil {
			return nil, 0, fmt.Errorf("bad trigger price %q for %s: %w", prices[i], symbol, err)
		}
		units = append(units, Unit{
			Symbol:       symbol,
			TriggerPrice: price,
			Slot:         slot,
			Direction:    direction,
			AlertAt:      alertAt,
			TradeDate:    clock.TradingDay(alertAt),
			ScanName:     strings.TrimSpace(p.ScanName),
			ScanURL:      strings.TrimSpace(p.ScanURL),
		})
	}
	return units, 0, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
