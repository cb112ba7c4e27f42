package model

import "time"

// Action is the discrete trading signal produced by the EMA crossover
// pipeline. It is event-based: BUY and SELL fire only on the candle where
// the EMA difference changes sign.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionNone Action = "NONE"
)

// SignalResult is the structured output of one pipeline run. It reflects the
// state of the most recent candle only; it is produced fresh per invocation
// and never cached or persisted.
type SignalResult struct {
	Signal    Action    `json:"signal"`
	Timestamp time.Time `json:"timestamp"`
	LastClose float64   `json:"last_close"`
	EMAShort  float64   `json:"ema_short"`
	EMALong   float64   `json:"ema_long"`
	Diff      float64   `json:"diff"`

	// Candles is the trailing window of canonical candles, oldest first.
	Candles []Candle `json:"last_n_candles"`

	// CandleCount is the number of raw rows ingested before normalization.
	CandleCount int `json:"candle_count"`

	// CrossoverTS is the timestamp of the most recent crossover anywhere in
	// the evaluated series, nil when the series contains none. Debug detail;
	// the signal above still refers to the latest candle only.
	CrossoverTS *time.Time `json:"crossover_ts,omitempty"`
}
