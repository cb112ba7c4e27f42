package pipeline

import (
	"time"

	"signal-enginev1/internal/model"
)

// Assemble packages the most recent classified point into a SignalResult
// with a bounded trailing window of canonical candles.
//
// The result always reflects the latest point only: its signal is NONE
// unless that exact candle is a crossover instant. Returns
// ErrInsufficientData (unwrapped) on an empty series.
func Assemble(series ClassifiedSeries, trailingWindow int) (*model.SignalResult, error) {
	if len(series) == 0 {
		return nil, ErrInsufficientData
	}

	last := series[len(series)-1]

	if trailingWindow < 0 {
		trailingWindow = 0
	}
	start := len(series) - trailingWindow
	if start < 0 {
		start = 0
	}
	candles := make([]model.Candle, 0, len(series)-start)
	for _, p := range series[start:] {
		candles = append(candles, p.Candle)
	}

	res := &model.SignalResult{
		Signal:      last.Signal,
		Timestamp:   last.TS,
		LastClose:   last.Close,
		EMAShort:    last.EMAShort,
		EMALong:     last.EMALong,
		Diff:        last.Diff,
		Candles:     candles,
		CandleCount: len(series),
	}

	if ts := lastCrossoverTS(series); !ts.IsZero() {
		t := ts
		res.CrossoverTS = &t
	}
	return res, nil
}

// lastCrossoverTS returns the timestamp of the most recent crossover point,
// or the zero time when the series contains none.
func lastCrossoverTS(series ClassifiedSeries) time.Time {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Signal != model.ActionNone {
			return series[i].TS
		}
	}
	return time.Time{}
}
