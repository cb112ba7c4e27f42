package model

import (
	"encoding/json"
	"time"
)

// RawCandle is one broker-supplied OHLC observation as delivered by the
// SmartAPI historical endpoint, before normalization. The timestamp zone is
// implicit and the numeric fields may be string-encoded, so everything stays
// untyped until the normalizer parses it.
type RawCandle struct {
	Timestamp string      `json:"timestamp"`
	Open      json.Number `json:"open"`
	High      json.Number `json:"high"`
	Low       json.Number `json:"low"`
	Close     json.Number `json:"close"`
	Volume    json.Number `json:"volume,omitempty"`
}

// Candle is one canonical OHLC bar. TS is zone-aware, fixed to the
// instrument's trading time zone; prices are finite float64.
type Candle struct {
	TS     time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandleSeries is a chronologically ascending sequence of candles with
// strictly increasing, unique timestamps. It is owned by a single pipeline
// invocation and never mutated once built.
type CandleSeries []Candle

// Closes returns the close-price sequence of the series.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}
