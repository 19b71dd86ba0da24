// Package pipeline turns camera frames into candidate violation events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/behavior"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/vision"
)

// ErrEmptyCrop means an evidence region had no pixels inside the frame.
var ErrEmptyCrop = errors.New("pipeline: empty evidence crop")

type Config struct {
	FrameRate        float64
	AcceptConfidence float64
	CropPadding      int
	FaceSize         int
}

func DefaultConfig() Config {
	return Config{
		FrameRate:        30,
		AcceptConfidence: 0.40,
		CropPadding:      20,
		FaceSize:         160,
	}
}

// Pipeline processes frames of one camera. It owns the camera's behavioral
// state and must only be driven from a single goroutine.
type Pipeline struct {
	cfg      Config
	cameraID int64
	detector Detector
	tracker  Tracker
	evidence EvidenceStore
	engine   *behavior.Engine
	logger   *zap.Logger
}

func New(cfg Config, cameraID int64, detector Detector, tracker Tracker, evidence EvidenceStore, rules behavior.Rules, logger *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.FaceSize <= 0 {
		cfg.FaceSize = def.FaceSize
	}
	return &Pipeline{
		cfg:      cfg,
		cameraID: cameraID,
		detector: detector,
		tracker:  tracker,
		evidence: evidence,
		engine:   behavior.NewEngine(rules),
		logger:   logger.With(zap.String("mod", "pipeline"), zap.Int64("camera_id", cameraID)),
	}
}

// Timestamp converts a zero-based frame index to seconds since stream start.
func (p *Pipeline) Timestamp(frameIndex int) float64 {
	return float64(frameIndex) / p.cfg.FrameRate
}

func (p *Pipeline) Engine() *behavior.Engine { return p.engine }

// ProcessFrame runs detection, tracking and the violation rules on frame.
// It returns an annotated copy for display and the candidates confirmed on
// this frame. frame itself is never drawn on.
//
// A detector or tracker error is returned together with an unannotated
// copy; behavioral state is left untouched in that case.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame image.Image, frameIndex int) (*image.RGBA, []domain.CandidateEvent, error) {
	ts := p.Timestamp(frameIndex)
	annotated := vision.Clone(frame)
	origin := frame.Bounds().Min

	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return annotated, nil, fmt.Errorf("detect: %w", err)
	}
	dets = vision.FilterConfident(dets, p.cfg.AcceptConfidence)

	tracks, err := p.tracker.Update(ctx, dets, frame)
	if err != nil {
		return annotated, nil, fmt.Errorf("track: %w", err)
	}

	var candidates []domain.CandidateEvent
	active := make(map[int]struct{}, len(tracks))
	for _, tr := range tracks {
		active[tr.ID] = struct{}{}

		class := vision.ClassNormal
		if idx, ok := vision.NearestDetection(tr.Box, dets); ok {
			class = dets[idx].Class
		}
		violating := class == vision.ClassLookingAround

		d := p.engine.Update(tr.ID, violating, ts)
		if d.Fire {
			if c, err := p.capture(frame, tr, ts, d); err != nil {
				p.logger.Warn("evidence capture skipped", zap.Int("track_id", tr.ID), zap.Error(err))
			} else {
				candidates = append(candidates, c)
			}
		}

		color := vision.ColorNormal
		if violating {
			color = vision.ColorViolating
		}
		vision.DrawBox(annotated, shift(tr.Box, origin), color, fmt.Sprintf("ID:%d %s", tr.ID, vision.ClassName(class)))
	}

	if gone := p.engine.Reap(active); len(gone) > 0 {
		p.logger.Debug("tracks reaped", zap.Ints("track_ids", gone))
	}
	return annotated, candidates, nil
}

func (p *Pipeline) capture(frame image.Image, tr vision.Track, ts float64, d behavior.Decision) (domain.CandidateEvent, error) {
	crop, err := vision.CropPadded(frame, tr.Box, p.cfg.CropPadding)
	if err != nil {
		return domain.CandidateEvent{}, ErrEmptyCrop
	}
	face, err := vision.Resize(crop, p.cfg.FaceSize)
	if err != nil {
		return domain.CandidateEvent{}, fmt.Errorf("resize crop: %w", err)
	}

	var path string
	if p.evidence != nil {
		if path, err = p.evidence.Save(p.cameraID, tr.ID, ts, crop); err != nil {
			return domain.CandidateEvent{}, fmt.Errorf("save evidence: %w", err)
		}
	}

	return domain.CandidateEvent{
		TrackID:      tr.ID,
		Timestamp:    ts,
		ReasonCode:   d.ReasonCode,
		Reason:       d.Reason,
		EvidencePath: path,
		Crop:         face,
	}, nil
}

// shift moves a box from frame coordinates into the origin-based annotated copy.
func shift(b vision.Box, origin image.Point) vision.Box {
	return vision.Box{X1: b.X1 - origin.X, Y1: b.Y1 - origin.Y, X2: b.X2 - origin.X, Y2: b.Y2 - origin.Y}
}
