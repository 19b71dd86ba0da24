// Package app assembles the proctoring components for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/audit"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/engine"
	"github.com/xela07ax/proctor/internal/inference"
	"github.com/xela07ax/proctor/internal/infra"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/repository/postgres"
	"github.com/xela07ax/proctor/internal/repository/sqlite"
)

// Store is what the binaries need from either database backend.
type Store interface {
	audit.Storage
	engine.CameraDirectory
	engine.HallProvider
	engine.NameDirectory
	GetCamera(ctx context.Context, id int64) (domain.Camera, error)
	SetHallDetection(ctx context.Context, id int64, enabled bool) error
	Students(ctx context.Context) ([]domain.Student, error)
	ListHalls(ctx context.Context) ([]domain.Hall, error)
	CreateHall(ctx context.Context, h domain.Hall) (domain.Hall, error)
	CreateCamera(ctx context.Context, c domain.Camera) (domain.Camera, error)
	UpsertStudent(ctx context.Context, st domain.Student) error
	Close() error
}

func OpenStore(ctx context.Context, cfg infra.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("database unreachable: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Models holds the inference collaborators shared by every camera.
type Models struct {
	Detector   pipeline.Detector
	Phones     pipeline.PhoneDetector // nil when phone detection is off
	Classifier engine.IdentityClassifier

	workerCmd []string
	closers   []io.Closer
}

func StartInference(cfg infra.InferenceConfig, det infra.DetectionConfig, metrics *engine.Metrics, logger *zap.Logger) (*Models, error) {
	if len(cfg.WorkerCommand) == 0 {
		return nil, errors.New("inference.worker_command is required")
	}
	w, err := inference.StartPythonWorker("detector", cfg.WorkerCommand, logger)
	if err != nil {
		return nil, err
	}
	m := &Models{
		Detector:  &inference.Detector{W: w, Confidence: det.DetectorConfidence},
		workerCmd: cfg.WorkerCommand,
		closers:   []io.Closer{w},
	}
	if det.PhoneDetection {
		m.Phones = &inference.PhoneDetector{W: w, Confidence: det.PhoneConfidence}
	}

	var classifier inference.Classifier = &inference.WorkerClassifier{W: w, Threshold: cfg.ClassifierThreshold}
	if cfg.ClassifierAddr != "" {
		grpcClassifier, conn, err := inference.DialClassifier(cfg.ClassifierAddr, cfg.ClassifierTimeout)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.closers = append(m.closers, conn)
		classifier = grpcClassifier
		logger.Info("identity classifier over gRPC", zap.String("addr", cfg.ClassifierAddr))
	}

	m.Classifier = inference.NewReliableClassifier(classifier, inference.ReliabilityConfig{
		Name:                "face-classifier",
		Attempts:            cfg.RetryAttempts,
		CallTimeout:         cfg.ClassifierTimeout,
		MaxConsecutiveFails: cfg.CBMaxFailures,
		OpenTimeout:         cfg.CBTimeout,
		RateLimit:           cfg.RateLimit,
		Burst:               cfg.RateBurst,
	}, metrics.BreakerState)
	return m, nil
}

func (m *Models) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
