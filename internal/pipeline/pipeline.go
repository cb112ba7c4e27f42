// Package pipeline implements the candle-ingestion-to-signal pipeline:
// raw candle normalization, dual-EMA computation, crossover detection and
// structured signal assembly.
//
// The pipeline is a single linear, stateless-per-call transformation. Each
// stage produces a new derived series; nothing is retained across runs, so
// concurrent invocations need no coordination.
package pipeline

import (
	"time"

	"signal-enginev1/internal/model"
)

// Default strategy parameters, matching the classic 9/21 intraday setup.
const (
	DefaultShortSpan      = 9
	DefaultLongSpan       = 21
	DefaultTrailingWindow = 5
)

// Pipeline holds the fixed parameters of one candle-to-signal
// transformation. The zero value is not usable; construct with New.
type Pipeline struct {
	ShortSpan      int
	LongSpan       int
	TrailingWindow int
	Location       *time.Location
	Strict         bool
}

// New returns a Pipeline with defaults applied for unset parameters.
// A nil location means UTC.
func New(shortSpan, longSpan, trailingWindow int, loc *time.Location, strict bool) Pipeline {
	if shortSpan <= 0 {
		shortSpan = DefaultShortSpan
	}
	if longSpan <= 0 {
		longSpan = DefaultLongSpan
	}
	if trailingWindow <= 0 {
		trailingWindow = DefaultTrailingWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return Pipeline{
		ShortSpan:      shortSpan,
		LongSpan:       longSpan,
		TrailingWindow: trailingWindow,
		Location:       loc,
		Strict:         strict,
	}
}

// Run executes the full pipeline over one batch of raw candles and returns
// a single SignalResult for the most recent point.
func (p Pipeline) Run(raw []model.RawCandle) (*model.SignalResult, error) {
	series, err := Normalize(raw, p.Location, p.Strict)
	if err != nil {
		return nil, err
	}

	emas, err := ComputeEMA(series, p.ShortSpan, p.LongSpan)
	if err != nil {
		return nil, err
	}

	classified := DetectCrossovers(emas)

	res, err := Assemble(classified, p.TrailingWindow)
	if err != nil {
		return nil, err
	}
	res.CandleCount = len(raw)
	return res, nil
}
