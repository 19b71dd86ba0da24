package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/behavior"
	"github.com/xela07ax/proctor/internal/capture"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/engine"
	"github.com/xela07ax/proctor/internal/inference"
	"github.com/xela07ax/proctor/internal/infra"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/report"
	"github.com/xela07ax/proctor/internal/tracking"
)

// SessionFactory assembles the frame loop of one camera.
type SessionFactory struct {
	cfg      infra.DetectionConfig
	models   *Models
	recorder pipeline.Recorder
	evidence *pipeline.DirEvidence
	reporter *report.Reporter
	metrics  *engine.Metrics
	logger   *zap.Logger

	// OnFrame, when set, is called after every frame of every session.
	OnFrame func(frameIndex int)
}

func NewSessionFactory(cfg infra.DetectionConfig, m *Models, recorder pipeline.Recorder, metrics *engine.Metrics, logger *zap.Logger) *SessionFactory {
	return &SessionFactory{
		cfg:      cfg,
		models:   m,
		recorder: recorder,
		evidence: pipeline.NewDirEvidence(cfg.EvidenceDir),
		reporter: report.NewReporter(logger,
			report.TextRenderer{Dir: cfg.ReportDir},
			report.PDFRenderer{Dir: cfg.ReportDir},
			report.ChartRenderer{Dir: cfg.ReportDir},
		),
		metrics: metrics,
		logger:  logger,
	}
}

// Build has the engine.SessionFactory signature.
func (f *SessionFactory) Build(_ context.Context, cam domain.Camera, hall domain.Hall, enabled func() bool) (*pipeline.Session, error) {
	src, err := capture.OpenCamera(cam)
	if err != nil {
		return nil, err
	}
	tracker, src, err := f.tracker(cam, src)
	if err != nil {
		src.Close()
		return nil, err
	}

	p := pipeline.New(pipeline.Config{
		FrameRate:        f.cfg.FrameRate,
		AcceptConfidence: f.cfg.AcceptConfidence,
		CropPadding:      f.cfg.CropPadding,
		FaceSize:         f.cfg.FaceSize,
	}, cam.ID, f.models.Detector, tracker, f.evidence, behavior.Rules{
		RepeatWindow:        f.cfg.RepeatWindow,
		RepeatThreshold:     f.cfg.RepeatThreshold,
		ContinuousThreshold: f.cfg.ContinuousThreshold,
	}, f.logger)

	deps := pipeline.SessionDeps{
		Source:    src,
		Pipeline:  p,
		Recorder:  f.recorder,
		Phones:    f.models.Phones,
		Slot:      &pipeline.FrameSlot{},
		Enabled:   enabled,
		Finalizer: f.reporter,
		OnFrame:   f.OnFrame,
	}
	// a nil *Metrics must not become a non-nil observer
	if f.metrics != nil {
		deps.Observer = f.metrics
	}

	sess, err := pipeline.NewSession(cam, hall, pipeline.SessionConfig{
		FrameDelay:      f.cfg.FrameDelay,
		WarmupFrames:    f.cfg.WarmupFrames,
		PhoneConfidence: f.cfg.PhoneConfidence,
		EvidenceDir:     f.cfg.EvidenceDir,
	}, deps, f.logger)
	if err != nil {
		src.Close()
		return nil, err
	}
	return sess, nil
}

// tracker picks the camera's tracker. A worker-backed tracker keeps its
// state in a dedicated process that lives as long as the source.
func (f *SessionFactory) tracker(cam domain.Camera, src pipeline.FrameSource) (pipeline.Tracker, pipeline.FrameSource, error) {
	if f.cfg.Tracker != "worker" {
		return tracking.NewIoUTracker(tracking.DefaultConfig()), src, nil
	}
	w, err := inference.StartPythonWorker(fmt.Sprintf("tracker-%d", cam.ID), f.models.workerCmd, f.logger)
	if err != nil {
		return nil, src, err
	}
	return &inference.Tracker{W: w}, &closingSource{FrameSource: src, also: w}, nil
}

// closingSource closes an extra resource together with the source.
type closingSource struct {
	pipeline.FrameSource
	also io.Closer
	once sync.Once
}

func (s *closingSource) Close() error {
	err := s.FrameSource.Close()
	s.once.Do(func() {
		if cerr := s.also.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
