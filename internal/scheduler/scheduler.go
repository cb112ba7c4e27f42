// Package scheduler drives periodic evaluation of all active instruments
// during market hours and pushes results to the gateway.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"signal-enginev1/internal/api"
	"signal-enginev1/internal/gateway"
	"signal-enginev1/internal/markethours"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
)

// DefaultCronSpec fires at the top of every minute, right after a fresh
// candle closes.
const DefaultCronSpec = "0 * * * * *"

const evalTimeout = 30 * time.Second

// Scheduler ticks the evaluation loop on a cron spec.
type Scheduler struct {
	cron   *cron.Cron
	engine api.SignalEvaluator
	store  api.InstrumentStore
	hub    *gateway.Hub
	health *metrics.HealthStatus
	log    *slog.Logger

	// Now is the clock used for market-hours gating; overridable in tests.
	Now func() time.Time
}

// New builds a Scheduler. hub and health may be nil.
func New(engine api.SignalEvaluator, store api.InstrumentStore, hub *gateway.Hub, health *metrics.HealthStatus, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		engine: engine,
		store:  store,
		hub:    hub,
		health: health,
		log:    log,
		Now:    time.Now,
	}
}

// Register adds the evaluation task under the given 6-field cron spec.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		spec = DefaultCronSpec
	}
	_, err := s.cron.AddFunc(spec, s.evalTick)
	return err
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// evalTick runs one sweep over the active instruments.
func (s *Scheduler) evalTick() {
	now := s.Now()
	if !markethours.IsMarketOpen(now) {
		s.log.Debug("skipping tick, market closed",
			slog.String("status", markethours.StatusString(now)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	instruments, err := s.store.Active(ctx)
	if err != nil {
		s.log.Error("active instrument lookup failed", slog.Any("error", err))
		return
	}

	for _, inst := range instruments {
		s.evaluateOne(ctx, inst)
	}

	if s.health != nil && len(instruments) > 0 {
		s.health.SetLastEvalAt(now)
	}
}

func (s *Scheduler) evaluateOne(ctx context.Context, inst model.Instrument) {
	res, err := s.engine.Evaluate(ctx, inst)
	if err != nil {
		s.log.Warn("scheduled evaluation failed",
			slog.String("instrument", inst.Key()),
			slog.Any("error", err))
		return
	}

	if res.Signal != model.ActionNone {
		s.log.Info("crossover detected",
			slog.String("instrument", inst.Key()),
			slog.String("signal", string(res.Signal)),
			slog.Float64("close", res.LastClose),
			slog.Time("candle_ts", res.Timestamp))
	}

	if s.hub != nil {
		s.hub.BroadcastSignal(inst.Key(), inst.TradingSymbol, res)
	}
}
