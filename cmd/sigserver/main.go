package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signal-enginev1/config"
	"signal-enginev1/internal/api"
	"signal-enginev1/internal/broker"
	"signal-enginev1/internal/engine"
	"signal-enginev1/internal/gateway"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/markethours"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/scheduler"
	redisstore "signal-enginev1/internal/store/redis"
	sqlitestore "signal-enginev1/internal/store/sqlite"
	"signal-enginev1/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[sigserver] starting...")

	cfg := config.Load()
	slogger := logger.Init("sigserver", logger.ParseLevel(cfg.LogLevel))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Instrument store (required) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	instruments, err := sqlitestore.NewInstrumentStore(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[sigserver] sqlite init failed: %v", err)
	}
	defer instruments.Close()
	health.SetSQLiteOK(true)
	log.Println("[sigserver] instrument store ready")

	// ---- Session cache (optional) ----
	var sessionCache *redisstore.SessionStore
	sessionCache, err = redisstore.NewSessionStore(cfg.RedisAddr, cfg.RedisPassword, 0, redisstore.DefaultTTL)
	if err != nil {
		log.Printf("[sigserver] WARNING: redis init failed: %v (continuing without session cache)", err)
		sessionCache = nil
		health.SetRedisConnected(false)
	} else {
		defer sessionCache.Close()
		health.SetRedisConnected(true)
		log.Println("[sigserver] session cache ready")
	}

	if sessionCache != nil {
		health.StartLivenessChecker(ctx, sessionCache.Client(), instruments.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, instruments.DB(), 10*time.Second)
	}

	// ---- Broker session manager ----
	client := smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	sessions := broker.NewSessionManager(client, sessionCache, broker.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	})
	sessions.OnLogin = func(_ *smartconnect.Session) {
		prom.LoginsTotal.Inc()
		health.SetSessionActive(true)
	}
	sessions.OnLoginFailure = func(_ error) {
		prom.LoginFailures.Inc()
		health.SetSessionActive(false)
	}
	sessions.OnCacheHit = func() {
		prom.SessionReuse.Inc()
		health.SetSessionActive(true)
	}

	// ---- Engine ----
	fetcher := broker.NewFetcher(sessions)
	if forced := cfg.ForcedAction(); forced != "" {
		log.Printf("[sigserver] WARNING: FORCE_SIGNAL=%s active, all signals overridden", forced)
	}
	svc := engine.New(fetcher, engine.Params{
		ShortSpan:      cfg.ShortSpan,
		LongSpan:       cfg.LongSpan,
		CandleCount:    cfg.CandleCount,
		TrailingWindow: cfg.TrailingWindow,
		Interval:       cfg.Interval,
		Location:       cfg.Location(),
		Strict:         cfg.StrictParsing,
		ForceSignal:    cfg.ForcedAction(),
	}, prom, slogger)

	// ---- Gateway ----
	hub := gateway.NewHub()
	hub.OnClientChange = func(n int) { prom.WSClients.Set(float64(n)) }

	// ---- HTTP API ----
	apiSrv := api.NewServer(svc, instruments, hub.HandleWS, health, slogger)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiSrv.Routes(),
	}
	go func() {
		log.Printf("[sigserver] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[sigserver] http server error: %v", err)
		}
	}()

	// ---- Scheduler ----
	sched := scheduler.New(svc, instruments, hub, health, slogger)
	if err := sched.Register(cfg.EvalCron); err != nil {
		log.Fatalf("[sigserver] invalid EVAL_CRON %q: %v", cfg.EvalCron, err)
	}
	sched.Start()

	log.Println("[sigserver] ╔═══════════════════════════════════════════════════════════╗")
	log.Println("[sigserver] ║  EMA Crossover Signal Engine                              ║")
	log.Println("[sigserver] ║                                                           ║")
	log.Printf("[sigserver] ║  Strategy: EMA %d/%d on %-10s candles               ║", cfg.ShortSpan, cfg.LongSpan, cfg.Interval)
	log.Printf("[sigserver] ║  Eval cadence: %-42s ║", cfg.EvalCron)
	log.Println("[sigserver] ║  Evaluations run during market hours only                 ║")
	log.Println("[sigserver] ╚═══════════════════════════════════════════════════════════╝")
	log.Printf("[sigserver] %s", markethours.StatusString(time.Now()))

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[sigserver] shutdown signal received, cleaning up...")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	sessions.Logout(shutdownCtx)

	log.Println("[sigserver] shutdown complete.")
}
