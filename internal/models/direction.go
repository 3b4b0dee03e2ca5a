package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side of a screener alert. It is a closed variant: the
// option leg type and the thesis-invalidation predicate hang off it so that
// callers never branch on raw "CE"/"PE" strings.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// OptionType is the option leg bought for a direction.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bullish", "buy", "long":
		return DirectionBullish, nil
	case "bearish", "sell", "short":
		return DirectionBearish, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

func (d Direction) Valid() bool {
	return d == DirectionBullish || d == DirectionBearish
}

func (d Direction) OptionType() OptionType {
	if d == DirectionBearish {
		return OptionPut
	}
	return OptionCall
}

// ThesisInvalidated reports whether the stock price crossing its VWAP
// contradicts the alert direction: a bullish (CE) trade is invalidated when
// LTP falls below VWAP, a bearish (PE) trade when LTP rises above it.
func (d Direction) ThesisInvalidated(stockLTP, stockVWAP decimal.Decimal) bool {
	if d == DirectionBearish {
		return stockLTP.GreaterThan(stockVWAP)
	}
	return stockLTP.LessThan(stockVWAP)
}
