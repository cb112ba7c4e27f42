package pipeline

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"signal-enginev1/internal/model"
)

// Timestamp layouts accepted from the broker. SmartAPI historical data uses
// RFC3339 with a +05:30 offset; the zoneless layouts are interpreted in the
// instrument's trading time zone.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalize converts raw broker records into a canonical CandleSeries:
// parsed to float64, fixed to loc, sorted ascending, de-duplicated with
// last-seen-wins semantics for equal timestamps.
//
// A record whose timestamp or price fields cannot be parsed, or whose prices
// are NaN or infinite, is silently dropped. With strict set, the first such
// record aborts the batch with a *MalformedCandleError instead.
//
// Returns ErrEmptyInput when nothing survives filtering.
func Normalize(raw []model.RawCandle, loc *time.Location, strict bool) (model.CandleSeries, error) {
	if loc == nil {
		loc = time.UTC
	}

	byTS := make(map[int64]model.Candle, len(raw))
	for i, r := range raw {
		c, reason := parseCandle(r, loc)
		if reason != "" {
			if strict {
				return nil, &MalformedCandleError{Index: i, Reason: reason}
			}
			continue
		}
		// Later record wins for re-fetched overlapping windows.
		byTS[c.TS.UnixNano()] = c
	}

	if len(byTS) == 0 {
		return nil, ErrEmptyInput
	}

	series := make(model.CandleSeries, 0, len(byTS))
	for _, c := range byTS {
		series = append(series, c)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].TS.Before(series[j].TS) })

	return series, nil
}

// parseCandle converts one raw record. The returned reason is empty on
// success and describes the first defect otherwise.
func parseCandle(r model.RawCandle, loc *time.Location) (model.Candle, string) {
	ts, ok := parseTimestamp(r.Timestamp, loc)
	if !ok {
		return model.Candle{}, "unparseable timestamp " + strconv.Quote(r.Timestamp)
	}

	prices := [4]float64{}
	for i, f := range [4]struct {
		name string
		num  json.Number
	}{
		{"open", r.Open},
		{"high", r.High},
		{"low", r.Low},
		{"close", r.Close},
	} {
		v, err := f.num.Float64()
		if err != nil {
			return model.Candle{}, "unparseable " + f.name + " " + strconv.Quote(f.num.String())
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Candle{}, "non-finite " + f.name
		}
		prices[i] = v
	}

	// Volume is optional; a missing or bad value never rejects the record.
	volume := 0.0
	if v, err := r.Volume.Float64(); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		volume = v
	}

	return model.Candle{
		TS:     ts.In(loc),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, ""
}

// parseTimestamp accepts the known broker layouts plus epoch seconds.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}
