package models

import "time"

// CachedCandle backs the historical_candles table the Binance data
// manager's cache reads and writes. Timestamp is stored as epoch
// milliseconds, matching the exchange's kline open-time field, so the
// cache layer never round-trips through time.Time parsing on the hot path.
type CachedCandle struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Symbol    string    `gorm:"column:symbol;size:20;not null;uniqueIndex:uidx_historical_candles_key" json:"symbol"`
	Interval  string    `gorm:"column:interval;size:10;not null;uniqueIndex:uidx_historical_candles_key" json:"interval"`
	Timestamp int64     `gorm:"column:timestamp;not null;uniqueIndex:uidx_historical_candles_key" json:"timestamp"`
	Open      float64   `gorm:"column:open;not null" json:"open"`
	High      float64   `gorm:"column:high;not null" json:"high"`
	Low       float64   `gorm:"column:low;not null" json:"low"`
	Close     float64   `gorm:"column:close;not null" json:"close"`
	Volume    float64   `gorm:"column:volume;not null" json:"volume"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CachedCandle) TableName() string {
	return "historical_candles"
}
