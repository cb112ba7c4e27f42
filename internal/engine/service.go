// Package engine evaluates instruments: fetch recent candles, run the EMA
// crossover pipeline, record metrics, and hand the result to callers.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"signal-enginev1/internal/broker"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/pipeline"
)

// CandleSource fetches raw candles for an instrument.
type CandleSource interface {
	RecentCandles(ctx context.Context, inst model.Instrument, interval string, n int) ([]model.RawCandle, error)
}

// Params are the service-level strategy defaults. Instruments override
// individual fields with non-zero values of their own.
type Params struct {
	ShortSpan      int
	LongSpan       int
	CandleCount    int
	TrailingWindow int
	Interval       string
	Location       *time.Location
	Strict         bool

	// ForceSignal, when non-empty, overrides the computed signal of every
	// evaluation. Manual test hook for exercising downstream consumers;
	// never enabled in production.
	ForceSignal model.Action
}

// DefaultCandleCount is how many recent candles feed one evaluation when
// neither the service nor the instrument specifies a count.
const DefaultCandleCount = 100

// Service runs evaluations. Stateless between calls; safe for concurrent
// use.
type Service struct {
	source  CandleSource
	params  Params
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New builds a Service. metrics may be nil (e.g. in tests).
func New(source CandleSource, params Params, m *metrics.Metrics, log *slog.Logger) *Service {
	if params.ShortSpan == 0 {
		params.ShortSpan = pipeline.DefaultShortSpan
	}
	if params.LongSpan == 0 {
		params.LongSpan = pipeline.DefaultLongSpan
	}
	if params.CandleCount == 0 {
		params.CandleCount = DefaultCandleCount
	}
	if params.TrailingWindow == 0 {
		params.TrailingWindow = pipeline.DefaultTrailingWindow
	}
	if params.Location == nil {
		params.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{source: source, params: params, metrics: m, log: log}
}

// Evaluate fetches candles for inst and runs the crossover pipeline.
// Pipeline sentinel errors pass through unwrapped so callers can classify
// them with errors.Is.
func (s *Service) Evaluate(ctx context.Context, inst model.Instrument) (*model.SignalResult, error) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(inst.Key(), time.Now()))

	short := orDefault(inst.ShortSpan, s.params.ShortSpan)
	long := orDefault(inst.LongSpan, s.params.LongSpan)
	count := orDefault(inst.CandleCount, s.params.CandleCount)
	window := orDefault(inst.TrailingWindow, s.params.TrailingWindow)
	interval := inst.Interval
	if interval == "" {
		interval = s.params.Interval
	}

	if s.metrics != nil {
		s.metrics.EvaluationsTotal.Inc()
	}

	fetchStart := time.Now()
	raw, err := s.source.RecentCandles(ctx, inst, interval, count)
	if s.metrics != nil {
		s.metrics.FetchDur.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.FetchErrors.Inc()
			s.metrics.EvalErrors.WithLabelValues("fetch").Inc()
		}
		s.log.Error("candle fetch failed",
			append(logger.LogWithTrace(ctx),
				slog.String("instrument", inst.Key()),
				slog.Any("error", err))...)
		return nil, err
	}

	p := pipeline.New(short, long, window, s.params.Location, s.params.Strict)

	computeStart := time.Now()
	res, err := p.Run(raw)
	if s.metrics != nil {
		s.metrics.PipelineDur.Observe(time.Since(computeStart).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.EvalErrors.WithLabelValues(errorKind(err)).Inc()
		}
		s.log.Warn("pipeline rejected batch",
			append(logger.LogWithTrace(ctx),
				slog.String("instrument", inst.Key()),
				slog.Int("raw_candles", len(raw)),
				slog.Any("error", err))...)
		return nil, err
	}

	if s.params.ForceSignal != "" {
		res.Signal = s.params.ForceSignal
	}

	if s.metrics != nil {
		s.metrics.SignalsTotal.WithLabelValues(string(res.Signal)).Inc()
	}
	s.log.Info("evaluation complete",
		append(logger.LogWithTrace(ctx),
			slog.String("instrument", inst.Key()),
			slog.String("signal", string(res.Signal)),
			slog.Float64("diff", res.Diff),
			slog.Int("candle_count", res.CandleCount))...)
	return res, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// ErrorKind classifies an evaluation error for API responses and metric
// labels.
func ErrorKind(err error) string { return errorKind(err) }

func errorKind(err error) string {
	var malformed *pipeline.MalformedCandleError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pipeline.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, pipeline.ErrInsufficientData):
		return "insufficient_data"
	case errors.As(err, &malformed):
		return "malformed_candle"
	default:
		return "fetch_failed"
	}
}

var _ CandleSource = (*broker.Fetcher)(nil)
