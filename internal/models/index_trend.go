package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndexTrendSnapshot is one benchmark-index observation taken when the entry
// gate was consulted. Kept as an audit trail for no_entry decisions.
type IndexTrendSnapshot struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	IndexName string          `gorm:"type:varchar(50);not null;index" json:"index_name"`
	LTP       decimal.Decimal `gorm:"column:ltp;type:numeric(20,4);not null" json:"ltp"`
	VWAP      decimal.Decimal `gorm:"column:vwap;type:numeric(20,4);not null" json:"vwap"`
	Trend     string          `gorm:"type:varchar(10);not null" json:"trend"`
	Allowed   bool            `gorm:"not null" json:"allowed"`
	Direction Direction       `gorm:"type:varchar(10);not null" json:"direction"`
	TradeDate string          `gorm:"type:varchar(10);not null;index" json:"trade_date"`
	CreatedAt time.Time       `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (IndexTrendSnapshot) TableName() string {
	return "index_trend_snapshots"
}
