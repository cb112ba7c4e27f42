package pipeline

import "signal-enginev1/internal/model"

// ClassifiedPoint is one EMA point augmented with the previous diff and its
// crossover classification.
type ClassifiedPoint struct {
	EMAPoint
	PrevDiff float64      `json:"prev_diff"`
	HasPrev  bool         `json:"-"`
	Signal   model.Action `json:"signal"`
}

// ClassifiedSeries is an EMASeries with per-point crossover classification.
type ClassifiedSeries []ClassifiedPoint

// DetectCrossovers classifies every point of the series:
//
//	prev_diff < 0 and curr_diff > 0  ->  BUY
//	prev_diff > 0 and curr_diff < 0  ->  SELL
//	anything else                    ->  NONE
//
// The rule is event-based: a signal fires only on the candle where the sign
// flips, never while a trend persists. A diff of exactly zero on either side
// yields NONE. The first point has no prev_diff and is always NONE. No
// hysteresis or minimum separation is applied; alternating signals on
// adjacent points are accepted strategy behavior.
func DetectCrossovers(series EMASeries) ClassifiedSeries {
	out := make(ClassifiedSeries, len(series))
	for i, p := range series {
		cp := ClassifiedPoint{EMAPoint: p, Signal: model.ActionNone}
		if i > 0 {
			cp.PrevDiff = series[i-1].Diff
			cp.HasPrev = true
			switch {
			case cp.PrevDiff < 0 && p.Diff > 0:
				cp.Signal = model.ActionBuy
			case cp.PrevDiff > 0 && p.Diff < 0:
				cp.Signal = model.ActionSell
			}
		}
		out[i] = cp
	}
	return out
}
