package engine

import (
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/behavior"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/vision"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubClassifier struct {
	identity string
	conf     float64
	err      error
}

func (s stubClassifier) Classify(context.Context, image.Image) (string, float64, error) {
	return s.identity, s.conf, s.err
}

type mapNames map[string]string

func (m mapNames) LookupIdentityName(_ context.Context, id string) (string, error) {
	return m[id], nil
}

type memJournal struct {
	mu         sync.Mutex
	violations []domain.ViolationRecord
	phones     []domain.PhoneEvent
}

func (j *memJournal) RecordViolation(rec domain.ViolationRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.violations = append(j.violations, rec)
}

func (j *memJournal) RecordPhone(ev domain.PhoneEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phones = append(j.phones, ev)
}

func (j *memJournal) RecordAttendance(domain.AttendanceRecord) {}

func candidate(track int) domain.CandidateEvent {
	return domain.CandidateEvent{
		TrackID:    track,
		Timestamp:  4,
		ReasonCode: domain.ReasonRepeatedLookAround,
		Reason:     "repeated look-around, 4 times in 10s",
		Crop:       image.NewRGBA(image.Rect(0, 0, 160, 160)),
	}
}

// directory is an in-memory CameraDirectory.
type directory struct {
	halls   map[int64]domain.Hall
	cameras []domain.Camera
}

func (d *directory) GetHall(_ context.Context, id int64) (domain.Hall, error) {
	h, ok := d.halls[id]
	if !ok {
		return domain.Hall{}, domain.ErrNotFound
	}
	return h, nil
}

func (d *directory) ListHallCameras(_ context.Context, hallID int64) ([]domain.Camera, error) {
	var out []domain.Camera
	for _, c := range d.cameras {
		if c.HallID == hallID {
			out = append(out, c)
		}
	}
	return out, nil
}

type nopDetector struct{}

func (nopDetector) Detect(context.Context, image.Image) ([]vision.Detection, error) { return nil, nil }

type nopTracker struct{}

func (nopTracker) Update(context.Context, []vision.Detection, image.Image) ([]vision.Track, error) {
	return nil, nil
}

// source blocks until the worker is cancelled, or yields n frames when
// finite is set.
type source struct {
	finite bool
	n      int
}

func (s *source) Next(ctx context.Context) (image.Image, error) {
	if s.finite {
		if s.n == 0 {
			return nil, io.EOF
		}
		s.n--
		return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *source) Close() error { return nil }

// factory builds sessions around fake sources and counts calls.
type factory struct {
	calls  atomic.Int32
	finite bool
	fail   map[int64]error
	rec    pipeline.Recorder
}

func (f *factory) build(_ context.Context, cam domain.Camera, hall domain.Hall, enabled func() bool) (*pipeline.Session, error) {
	f.calls.Add(1)
	if err := f.fail[cam.ID]; err != nil {
		return nil, err
	}
	p := pipeline.New(pipeline.DefaultConfig(), cam.ID, nopDetector{}, nopTracker{}, nil, behavior.DefaultRules(), zap.NewNop())
	cfg := pipeline.DefaultSessionConfig()
	cfg.FrameDelay = time.Millisecond
	return pipeline.NewSession(cam, hall, cfg, pipeline.SessionDeps{
		Source:   &source{finite: f.finite, n: 3},
		Pipeline: p,
		Recorder: f.rec,
		Enabled:  enabled,
	}, zap.NewNop())
}
