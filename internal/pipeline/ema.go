package pipeline

import (
	"fmt"

	"signal-enginev1/internal/model"
)

// EMAPoint is one candle augmented with both EMA values and their
// difference.
type EMAPoint struct {
	model.Candle
	EMAShort float64 `json:"ema_short"`
	EMALong  float64 `json:"ema_long"`
	Diff     float64 `json:"diff"`
}

// EMASeries is a CandleSeries augmented with EMA columns, same order and
// length as its source.
type EMASeries []EMAPoint

// ComputeEMA computes short- and long-span exponential moving averages over
// the close-price sequence and their pointwise difference.
//
// Recurrence for span s: alpha = 2/(s+1), ema[0] = close[0] (zero-lag seed,
// no warm-up window), ema[i] = alpha*close[i] + (1-alpha)*ema[i-1]. All
// arithmetic is float64 with no intermediate rounding.
//
// Returns ErrInsufficientData when the series has fewer than 2 points.
func ComputeEMA(series model.CandleSeries, shortSpan, longSpan int) (EMASeries, error) {
	if shortSpan < 1 || longSpan < 1 {
		return nil, fmt.Errorf("ema spans must be >= 1, got short=%d long=%d", shortSpan, longSpan)
	}
	if shortSpan >= longSpan {
		return nil, fmt.Errorf("short span %d must be less than long span %d", shortSpan, longSpan)
	}
	if len(series) < 2 {
		return nil, ErrInsufficientData
	}

	closes := series.Closes()
	emaShort := emaOver(closes, shortSpan)
	emaLong := emaOver(closes, longSpan)

	out := make(EMASeries, len(series))
	for i, c := range series {
		out[i] = EMAPoint{
			Candle:   c,
			EMAShort: emaShort[i],
			EMALong:  emaLong[i],
			Diff:     emaShort[i] - emaLong[i],
		}
	}
	return out, nil
}

func emaOver(closes []float64, span int) []float64 {
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}
