package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/matchlearn/internal/adapters/http/api"
	"github.com/okian/matchlearn/internal/adapters/http/swagger"
	"github.com/okian/matchlearn/internal/adapters/insight"
	"github.com/okian/matchlearn/internal/adapters/profiles"
	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/adapters/scheduler"
	app "github.com/okian/matchlearn/internal/app"
	"github.com/okian/matchlearn/internal/config"
	"github.com/okian/matchlearn/internal/domain/ranking"
	"github.com/okian/matchlearn/internal/domain/training"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "matchlearn exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run loads configuration, wires every component and serves until ctx ends.
func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		log.Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	log = logger.Get()

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service shutdown failed", logger.Error(err))
		}
	}()

	trigger, err := buildRetrainTrigger(cfg, svc)
	if err != nil {
		return err
	}
	if trigger != nil {
		if err := trigger.Start(ctx); err != nil {
			return fmt.Errorf("starting retrain trigger: %w", err)
		}
		defer trigger.Stop()
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService opens the configured backends and assembles the service.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, error) {
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}

	profileStore, err := openProfiles(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if cfg.ProfileSeedFile != "" {
		n, err := profiles.Seed(ctx, profileStore, cfg.ProfileSeedFile)
		if err != nil {
			_ = profileStore.Close()
			_ = store.Close()
			return nil, fmt.Errorf("seeding profiles: %w", err)
		}
		log.Info(ctx, "profiles seeded", logger.String("file", cfg.ProfileSeedFile), logger.Int("count", n))
	}

	gen, err := insight.New(cfg.InsightProvider, cfg.AnthropicAPIKey, cfg.AnthropicModel,
		insight.WithAnthropicLogger(log.Named("insight")),
	)
	if err != nil {
		_ = profileStore.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configuring insight provider: %w", err)
	}

	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithProfiles(profileStore),
		app.WithInsight(gen),
		app.WithInsightTimeout(time.Duration(cfg.InsightTimeoutMS)*time.Millisecond),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxCandidates(cfg.MaxCandidates),
		app.WithRankConcurrency(cfg.RankConcurrency),
		app.WithDefaultDomain(cfg.DefaultDomain),
		app.WithRetrainThreshold(cfg.RetrainThreshold),
		app.WithTrainerOptions(
			training.WithMinSamples(cfg.MinTrainingSamples),
			training.WithMaxStepFraction(cfg.MaxStepFraction),
			training.WithStepFloor(cfg.StepFloorFraction),
			training.WithHoldoutFraction(cfg.HoldoutFraction),
			training.WithLearningRate(cfg.LearningRate),
			training.WithEpochs(cfg.TrainingEpochs),
			training.WithLogger(log.Named("trainer")),
		),
		app.WithRankerOptions(
			ranking.WithMinSamples(cfg.MinTrainingSamples),
			ranking.WithProvisionalCeiling(cfg.ProvisionalCeiling),
			ranking.WithHalfSamples(cfg.ConfidenceHalfSamples),
		),
	), nil
}

func openProfiles(ctx context.Context, cfg *config.Config) (profiles.Store, error) {
	switch cfg.ProfileStore {
	case profiles.KindRedis:
		s, err := profiles.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB,
			profiles.WithLogger(logger.Get().Named("profiles")),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	default:
		return profiles.NewMemoryStore(), nil
	}
}

// buildRetrainTrigger returns nil when no schedule is configured.
func buildRetrainTrigger(cfg *config.Config, svc *app.Service) (*scheduler.RetrainTrigger, error) {
	if cfg.RetrainSchedule == "" {
		return nil, nil
	}
	opts := []scheduler.Option{
		scheduler.WithThreshold(cfg.RetrainThreshold),
		scheduler.WithDomains(cfg.RetrainDomains...),
		scheduler.WithLogger(logger.Get().Named("retrain")),
	}
	if cfg.AutoActivate {
		opts = append(opts, scheduler.WithAutoActivate(cfg.AutoActivateMinGain))
	}
	t, err := scheduler.NewRetrainTrigger(svc, cfg.RetrainSchedule, opts...)
	if err != nil {
		return nil, fmt.Errorf("configuring retrain trigger: %w", err)
	}
	return t, nil
}

// newMux registers the business API and the API docs.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges derived from service stats.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	st, err := svc.Stats(ctx, "")
	if err != nil {
		logger.Get().Named("metrics").Warn(ctx, "service stats unavailable", logger.Error(err))
		return
	}
	metrics.UpdateQueueSize(st.QueueLength)
	metrics.UpdateWorkerCount(st.WorkerCount)
}
