package pipeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"signal-enginev1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func seriesFromCloses(closes ...float64) model.CandleSeries {
	base := time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)
	out := make(model.CandleSeries, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			TS:    base.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (tol=%g)", label, got, want, tol)
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestComputeEMA_ZeroLagSeed(t *testing.T) {
	// The first point's EMA equals its own close for both spans,
	// regardless of span values.
	series := seriesFromCloses(42.5, 43, 44, 45)

	for _, spans := range [][2]int{{2, 4}, {9, 21}, {1, 2}, {5, 200}} {
		emas, err := ComputeEMA(series, spans[0], spans[1])
		if err != nil {
			t.Fatalf("spans %v: %v", spans, err)
		}
		assertClose(t, "ema_short[0]", emas[0].EMAShort, 42.5, 0)
		assertClose(t, "ema_long[0]", emas[0].EMALong, 42.5, 0)
		assertClose(t, "diff[0]", emas[0].Diff, 0, 0)
	}
}

func TestComputeEMA_Recurrence(t *testing.T) {
	// Span 3: alpha = 2/(3+1) = 0.5
	// Closes: 10, 20 → EMA: 10, 0.5*20 + 0.5*10 = 15
	// Span 9: alpha = 0.2 → EMA: 10, 0.2*20 + 0.8*10 = 12
	emas, err := ComputeEMA(seriesFromCloses(10, 20), 3, 9)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "ema_short[1]", emas[1].EMAShort, 15.0, 1e-12)
	assertClose(t, "ema_long[1]", emas[1].EMALong, 12.0, 1e-12)
	assertClose(t, "diff[1]", emas[1].Diff, 3.0, 1e-12)
}

func TestComputeEMA_KnownScenario(t *testing.T) {
	// Closes [100, 100, 100, 100, 105, 95], short span 2 (alpha=2/3),
	// long span 4 (alpha=0.4). Hand-calculated:
	//
	//   ema_short: 100, 100, 100, 100, 103.3333..., 97.7777...
	//   ema_long:  100, 100, 100, 100, 102,          99.2
	//   diff:        0,   0,   0,   0,   1.3333..., -1.4222...
	emas, err := ComputeEMA(seriesFromCloses(100, 100, 100, 100, 105, 95), 2, 4)
	if err != nil {
		t.Fatal(err)
	}

	wantShort := []float64{100, 100, 100, 100, 103.0 + 1.0/3.0, 97.0 + 7.0/9.0}
	wantLong := []float64{100, 100, 100, 100, 102, 99.2}
	for i := range emas {
		assertClose(t, "ema_short", emas[i].EMAShort, wantShort[i], 1e-9)
		assertClose(t, "ema_long", emas[i].EMALong, wantLong[i], 1e-9)
		assertClose(t, "diff", emas[i].Diff, wantShort[i]-wantLong[i], 1e-9)
	}
}

func TestComputeEMA_Deterministic(t *testing.T) {
	series := seriesFromCloses(100, 101.5, 99.25, 104, 103, 98.75, 102)

	first, err := ComputeEMA(series, 9, 21)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeEMA(series, 9, 21)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i].EMAShort != second[i].EMAShort ||
			first[i].EMALong != second[i].EMALong ||
			first[i].Diff != second[i].Diff {
			t.Fatalf("point %d: repeated computation differs", i)
		}
	}
}

func TestComputeEMA_InsufficientData(t *testing.T) {
	_, err := ComputeEMA(seriesFromCloses(100), 9, 21)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("1-point series: got %v, want ErrInsufficientData", err)
	}

	_, err = ComputeEMA(model.CandleSeries{}, 9, 21)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("empty series: got %v, want ErrInsufficientData", err)
	}
}

func TestComputeEMA_SpanValidation(t *testing.T) {
	series := seriesFromCloses(100, 101, 102)

	if _, err := ComputeEMA(series, 21, 9); err == nil {
		t.Error("short >= long should be rejected")
	}
	if _, err := ComputeEMA(series, 9, 9); err == nil {
		t.Error("equal spans should be rejected")
	}
	if _, err := ComputeEMA(series, 0, 9); err == nil {
		t.Error("zero span should be rejected")
	}
}
