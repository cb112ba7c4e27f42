package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-enginev1/internal/model"
	"signal-enginev1/pkg/smartconnect"
)

const (
	// The candle endpoint caps one request at a few days of minute bars; a
	// 5-day window always covers the trailing counts this service asks for
	// while staying under the cap.
	lookbackDays = 5

	timeLayout = "2006-01-02 15:04"
)

// Fetcher pulls recent candles for an instrument through the session
// manager, retrying once on an expired session.
type Fetcher struct {
	Sessions *SessionManager

	// Now is the clock; overridable for tests.
	Now func() time.Time
}

func NewFetcher(sessions *SessionManager) *Fetcher {
	return &Fetcher{Sessions: sessions, Now: time.Now}
}

// RecentCandles fetches up to n of the most recent candles for inst at the
// given interval. Rows stay raw; the pipeline normalizer owns parsing.
func (f *Fetcher) RecentCandles(ctx context.Context, inst model.Instrument, interval string, n int) ([]model.RawCandle, error) {
	now := f.Now()
	params := smartconnect.CandleParams{
		Exchange:    inst.Exchange,
		SymbolToken: inst.SymbolToken,
		Interval:    interval,
		FromDate:    now.AddDate(0, 0, -lookbackDays).Format(timeLayout),
		ToDate:      now.Format(timeLayout),
	}

	rows, err := f.fetch(ctx, params)
	if smartconnect.IsTokenException(err) {
		f.Sessions.Invalidate(ctx)
		rows, err = f.fetch(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no candle data for %s", inst.Key())
	}

	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}

	out := make([]model.RawCandle, 0, len(rows))
	for _, row := range rows {
		raw, ok := rowToRaw(row)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *Fetcher) fetch(ctx context.Context, params smartconnect.CandleParams) ([][]any, error) {
	client, err := f.Sessions.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.GetCandleData(ctx, params)
}

// rowToRaw converts one [ts, o, h, l, c, v] row into a RawCandle. Short or
// unrecognizable rows are skipped; value-level validation happens later in
// the normalizer.
func rowToRaw(row []any) (model.RawCandle, bool) {
	if len(row) < 5 {
		return model.RawCandle{}, false
	}

	ts, ok := row[0].(string)
	if !ok {
		if num, isNum := row[0].(json.Number); isNum {
			ts = num.String()
		} else {
			return model.RawCandle{}, false
		}
	}

	raw := model.RawCandle{
		Timestamp: ts,
		Open:      toNumber(row[1]),
		High:      toNumber(row[2]),
		Low:       toNumber(row[3]),
		Close:     toNumber(row[4]),
	}
	if len(row) > 5 {
		raw.Volume = toNumber(row[5])
	}
	return raw, true
}

func toNumber(v any) json.Number {
	switch n := v.(type) {
	case json.Number:
		return n
	case string:
		return json.Number(n)
	case float64:
		return json.Number(fmt.Sprintf("%g", n))
	default:
		return json.Number("")
	}
}
