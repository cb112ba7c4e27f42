package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when no usable candles remain after
// normalization. A crossover cannot be computed on an empty series.
var ErrEmptyInput = errors.New("no usable candles after normalization")

// ErrInsufficientData is returned when the series has fewer than 2 points.
// A crossover requires two consecutive diff values to compare.
var ErrInsufficientData = errors.New("not enough candles for crossover detection")

// MalformedCandleError reports a raw record that could not be normalized.
// Only strict-mode normalization returns it; the default policy drops the
// record and continues.
type MalformedCandleError struct {
	Index  int
	Reason string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle at index %d: %s", e.Index, e.Reason)
}
