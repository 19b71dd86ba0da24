package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/report"
	"github.com/xela07ax/proctor/internal/vision"
)

type SessionConfig struct {
	FrameDelay      time.Duration // pause between frames
	WarmupFrames    int           // frames not published to the live view
	PhoneConfidence float64
	EvidenceDir     string
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FrameDelay:      50 * time.Millisecond,
		WarmupFrames:    5,
		PhoneConfidence: 0.80,
		EvidenceDir:     "cheating_screenshots",
	}
}

// SessionDeps are the collaborators of one camera session. Source,
// Pipeline and Recorder are required.
type SessionDeps struct {
	Source    FrameSource
	Pipeline  *Pipeline
	Recorder  Recorder
	Phones    PhoneDetector
	Slot      *FrameSlot
	Enabled   func() bool
	Finalizer Finalizer
	Observer  FrameObserver
	OnFrame   func(frameIndex int)
}

// Session is the frame loop of one camera worker.
type Session struct {
	camera domain.Camera
	hall   domain.Hall
	cfg    SessionConfig
	deps   SessionDeps
	logger *zap.Logger
	now    func() time.Time
}

func NewSession(camera domain.Camera, hall domain.Hall, cfg SessionConfig, deps SessionDeps, logger *zap.Logger) (*Session, error) {
	if deps.Source == nil {
		return nil, errors.New("session: frame source is required")
	}
	if deps.Pipeline == nil || deps.Recorder == nil {
		return nil, errors.New("session: pipeline and recorder are required")
	}
	if deps.Enabled == nil {
		deps.Enabled = func() bool { return true }
	}
	return &Session{
		camera: camera,
		hall:   hall,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(zap.String("mod", "session"), zap.Int64("camera_id", camera.ID), zap.String("location", hall.Location())),
		now:    time.Now,
	}, nil
}

func (s *Session) Camera() domain.Camera { return s.camera }
func (s *Session) Slot() *FrameSlot { return s.deps.Slot }
func (s *Session) Tracks() []domain.TrackReport { return s.deps.Pipeline.Engine().Report() }

// Run drives the loop until ctx is cancelled or the source is exhausted.
// The finalizer always runs on the way out, with a context that outlives
// the cancellation. A non-nil error means the source failed mid-stream.
func (s *Session) Run(ctx context.Context) error {
	location := s.hall.Location()
	sum := report.Summary{
		CameraID:    s.camera.ID,
		HallID:      s.hall.ID,
		Location:    location,
		EvidenceDir: s.cfg.EvidenceDir,
		StartedAt:   s.now(),
	}
	s.logger.Info("detection started")

	// closing the source unblocks a Next stuck on a stalled stream
	stopWatch := context.AfterFunc(ctx, func() { _ = s.deps.Source.Close() })

	defer func() {
		stopWatch()
		if err := s.deps.Source.Close(); err != nil {
			s.logger.Warn("close frame source", zap.Error(err))
		}
		sum.EndedAt = s.now()
		s.logger.Info("detection stopped", zap.Int("frames", sum.Frames), zap.Int("violations", len(sum.Violations)))
		if s.deps.Finalizer != nil {
			s.deps.Finalizer.Finalize(context.WithoutCancel(ctx), sum)
		}
	}()

	for frameIndex := 0; ; frameIndex++ {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.deps.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			s.observeError("source")
			return fmt.Errorf("read frame %d: %w", frameIndex, err)
		}
		sum.Frames++

		out := s.step(ctx, frame, frameIndex, location, &sum)

		if frameIndex >= s.cfg.WarmupFrames && s.deps.Slot != nil {
			if err := s.deps.Slot.Publish(out); err != nil {
				s.logger.Warn("publish frame", zap.Error(err))
			}
		}
		if s.deps.OnFrame != nil {
			s.deps.OnFrame(frameIndex)
		}

		if s.cfg.FrameDelay > 0 {
			t := time.NewTimer(s.cfg.FrameDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	}
}

// step processes one frame and returns what should be shown for it.
func (s *Session) step(ctx context.Context, frame image.Image, frameIndex int, location string, sum *report.Summary) *image.RGBA {
	started := time.Now()
	if !s.deps.Enabled() {
		out := vision.Clone(frame)
		vision.DrawBanner(out, "Detection Disabled", vision.ColorViolating)
		if s.deps.Observer != nil {
			s.deps.Observer.ObserveFrame(s.camera.ID, time.Since(started), false)
		}
		return out
	}

	out, candidates, err := s.deps.Pipeline.ProcessFrame(ctx, frame, frameIndex)
	if err != nil {
		s.observeError("detect")
		s.logger.Warn("frame skipped", zap.Int("frame", frameIndex), zap.Error(err))
	}
	for _, c := range candidates {
		rec, ok := s.deps.Recorder.Accept(ctx, s.camera, location, c)
		if ok {
			sum.Violations = append(sum.Violations, rec)
		}
	}

	if s.deps.Phones != nil {
		s.detectPhones(ctx, frame, out, frameIndex, location, sum)
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveFrame(s.camera.ID, time.Since(started), true)
	}
	return out
}

func (s *Session) observeError(kind string) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveError(kind)
	}
}

func (s *Session) detectPhones(ctx context.Context, frame image.Image, out *image.RGBA, frameIndex int, location string, sum *report.Summary) {
	phones, err := s.deps.Phones.DetectPhones(ctx, frame)
	if err != nil {
		s.observeError("phones")
		s.logger.Warn("phone detection failed", zap.Int("frame", frameIndex), zap.Error(err))
		return
	}
	phones = vision.FilterConfident(phones, s.cfg.PhoneConfidence)
	if len(phones) == 0 {
		return
	}
	origin := frame.Bounds().Min
	for _, p := range phones {
		vision.DrawBox(out, shift(p.Box, origin), vision.ColorPhone, fmt.Sprintf("Phone %.2f", p.Confidence))
	}

	ts := s.deps.Pipeline.Timestamp(frameIndex)
	ev := domain.PhoneEvent{
		ID:            uuid.NewString(),
		CameraID:      s.camera.ID,
		Timestamp:     ts,
		FormattedTime: domain.FormatTimestamp(ts),
		Location:      location,
		RecordedAt:    s.now(),
	}
	s.deps.Recorder.RecordPhone(ctx, ev)
	sum.Phones = append(sum.Phones, ev)
}
