package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/app"
	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/audit"
	"github.com/xela07ax/proctor/internal/capture"
	"github.com/xela07ax/proctor/internal/console/handler"
	"github.com/xela07ax/proctor/internal/console/server"
	"github.com/xela07ax/proctor/internal/console/service"
	"github.com/xela07ax/proctor/internal/engine"
	"github.com/xela07ax/proctor/internal/infra"
	"github.com/xela07ax/proctor/internal/infra/auth"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/tracking"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("proctord failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// cancelling appCtx stops listeners, workers and attendance passes
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Infrastructure
	db, err := app.OpenStore(appCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, hall signals are local until it recovers", zap.Error(err))
		}
		pingCancel()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	journal := audit.NewJournal(db, logger, metrics.JournalBufferFill)
	journal.Start()
	defer journal.Stop()

	// 2. Control plane
	halls := engine.NewHallManager(rdb, db, logger)
	if err := halls.Init(appCtx); err != nil {
		return fmt.Errorf("init hall flags: %w", err)
	}
	go halls.StartListener(appCtx)

	// 3. Inference
	models, err := app.StartInference(cfg.Inference, cfg.Detection, metrics, logger)
	if err != nil {
		return err
	}
	defer models.Close()

	// 4. Aggregation and orchestration
	stats := engine.NewStatsStore(cfg.Detection.RecentLimit)
	offenders := engine.NewOffenderTracker(cfg.Detection.OffenderStep)

	var notifier engine.Notifier
	var offenderNotifier service.OffenderNotifier
	if rdb != nil {
		n := engine.NewRedisNotifier(rdb, logger)
		notifier, offenderNotifier = n, n
	}
	aggregator := engine.NewAggregator(engine.AggregatorConfig{DedupWindow: cfg.Detection.DedupWindow},
		stats, offenders, models.Classifier, db, journal, notifier, metrics, logger)

	factory := app.NewSessionFactory(cfg.Detection, models, aggregator, metrics, logger)
	orch := engine.NewOrchestrator(appCtx, engine.OrchestratorConfig{JoinTimeout: cfg.Detection.WorkerJoinTimeout},
		db, factory.Build, halls, stats, offenders, metrics, logger)

	if n := restartEnabledHalls(appCtx, db, orch, logger); n > 0 {
		logger.Info("resumed detection", zap.Int("halls", n))
	}

	attCfg := attendance.DefaultConfig()
	attCfg.FrameRate = cfg.Detection.FrameRate
	attCfg.DetectConfidence = cfg.Detection.AcceptConfidence
	attCfg.CropPadding = cfg.Detection.CropPadding
	attCfg.FaceSize = cfg.Detection.FaceSize
	attCfg.FacesDir = cfg.Detection.AttendanceDir
	att := attendance.NewManager(appCtx, attCfg, attendance.ManagerDeps{
		Directory:  db,
		Roster:     db,
		Detector:   models.Detector,
		NewTracker: func() pipeline.Tracker { return tracking.NewIoUTracker(tracking.DefaultConfig()) },
		Classifier: models.Classifier,
		Recorder:   journal,
		Open:       capture.OpenCamera,
		ReportDir:  cfg.Detection.ReportDir,
	}, logger)

	// 5. Command surface
	detection := service.NewDetectionService(service.Deps{
		Repo:       db,
		Orch:       orch,
		Flags:      halls,
		Stats:      stats,
		Offenders:  offenders,
		Notifier:   offenderNotifier,
		Attendance: att,
	}, logger)

	if offenderNotifier != nil {
		go pollOffenders(appCtx, detection, cfg.Detection.OffenderPoll)
	}

	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("auth public key: %w", err)
		}
		validator = auth.NewBaseValidator(pub)
	} else {
		logger.Warn("no auth public key configured, API is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewConsoleServer(logger, validator, reg, handler.NewDetectionHandler(detection)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("proctord started", zap.String("addr", srv.Addr), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("proctord stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("workers did not stop cleanly", zap.Error(err))
	}
	cancel()
	att.Wait()

	logger.Info("proctord exited properly")
	return nil
}

// restartEnabledHalls resumes workers for halls left enabled by a previous
// run. Failures are logged per hall.
func restartEnabledHalls(ctx context.Context, db app.Store, orch *engine.Orchestrator, logger *zap.Logger) int {
	ids, err := db.EnabledHallIDs(ctx)
	if err != nil {
		logger.Warn("list enabled halls", zap.Error(err))
		return 0
	}
	started := 0
	for _, id := range ids {
		failed, err := orch.StartHall(ctx, id)
		if err != nil {
			logger.Warn("resume hall", zap.Int64("hall_id", id), zap.Error(err))
			continue
		}
		for camID, ferr := range failed {
			logger.Warn("resume camera", zap.Int64("hall_id", id), zap.Int64("camera_id", camID), zap.Error(ferr))
		}
		started++
	}
	return started
}

// pollOffenders pushes newly crossed repeat-offender thresholds to
// subscribers.
func pollOffenders(ctx context.Context, svc *service.DetectionService, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			svc.RepeatOffenders(ctx, nil)
		}
	}
}
