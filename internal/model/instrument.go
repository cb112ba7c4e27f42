package model

import "time"

// Instrument is one tradeable instrument configuration together with its
// EMA strategy parameters. Zero strategy fields mean "use service defaults".
type Instrument struct {
	ID            int64  `json:"id"`
	SymbolToken   string `json:"symbol_token"`
	TradingSymbol string `json:"trading_symbol"`
	Exchange      string `json:"exchange"`
	Interval      string `json:"interval"` // SmartAPI interval, e.g. ONE_MINUTE

	ShortSpan      int `json:"short_span"`
	LongSpan       int `json:"long_span"`
	CandleCount    int `json:"candle_count"`
	TrailingWindow int `json:"trailing_window"`

	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns a unique key for this instrument: "exchange:token".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.SymbolToken
}
