package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote represents the latest traded price for a stock
type Quote struct {
	Symbol           string              `json:"symbol"`
	Price            decimal.NullDecimal `json:"price"`
	PreviousClose    decimal.NullDecimal `json:"previous_close"`
	Volume           int64               `json:"volume"`
	LatestTradingDay string              `json:"latest_trading_day"`
	Timestamp        time.Time           `json:"timestamp"`
}
