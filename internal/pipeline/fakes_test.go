package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/report"
	"github.com/xela07ax/proctor/internal/vision"
)

// scriptDetector returns dets(frameCall) on every call.
type scriptDetector struct {
	calls int
	dets  func(call int) []vision.Detection
	err   error
}

func (d *scriptDetector) Detect(context.Context, image.Image) ([]vision.Detection, error) {
	defer func() { d.calls++ }()
	if d.err != nil {
		return nil, d.err
	}
	return d.dets(d.calls), nil
}

// echoTracker turns every detection into a track with id index+1.
type echoTracker struct {
	seen [][]vision.Detection
}

func (t *echoTracker) Update(_ context.Context, dets []vision.Detection, _ image.Image) ([]vision.Track, error) {
	t.seen = append(t.seen, dets)
	out := make([]vision.Track, len(dets))
	for i, d := range dets {
		out[i] = vision.Track{ID: i + 1, Box: d.Box}
	}
	return out, nil
}

// fixedTracker always reports the same tracks regardless of detections.
type fixedTracker struct {
	tracks []vision.Track
}

func (t *fixedTracker) Update(context.Context, []vision.Detection, image.Image) ([]vision.Track, error) {
	return t.tracks, nil
}

type memEvidence struct {
	mu    sync.Mutex
	saved []image.Image
	err   error
}

func (m *memEvidence) Save(_ int64, trackID int, _ float64, img image.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, img)
	return "mem://evidence", nil
}

type recorder struct {
	mu         sync.Mutex
	candidates []domain.CandidateEvent
	phones     []domain.PhoneEvent
}

func (r *recorder) Accept(_ context.Context, cam domain.Camera, location string, c domain.CandidateEvent) (domain.ViolationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, c)
	return domain.ViolationRecord{CameraID: cam.ID, TrackID: c.TrackID, Location: location, Reason: c.Reason}, true
}

func (r *recorder) RecordPhone(_ context.Context, ev domain.PhoneEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phones = append(r.phones, ev)
}

// sliceSource yields n frames then io.EOF. When block is set it waits for
// ctx instead of ending.
type sliceSource struct {
	n      int
	w, h   int
	block  bool
	read   int
	closed atomic.Bool
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (image.Image, error) {
	if s.read >= s.n {
		if s.err != nil {
			return nil, s.err
		}
		if s.block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, io.EOF
	}
	s.read++
	return image.NewRGBA(image.Rect(0, 0, s.w, s.h)), nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

type captureFinalizer struct {
	mu      sync.Mutex
	calls   int
	summary report.Summary
}

func (f *captureFinalizer) Finalize(_ context.Context, s report.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.summary = s
}

type phoneDetector struct {
	dets []vision.Detection
}

func (p phoneDetector) DetectPhones(context.Context, image.Image) ([]vision.Detection, error) {
	return p.dets, nil
}

var errDetector = errors.New("model offline")
