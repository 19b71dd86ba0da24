package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/vision"
)

var (
	testHall   = domain.Hall{ID: 2, Name: "Hall B"}
	testCamera = domain.Camera{ID: 7, HallID: 2}
)

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.FrameDelay = 0
	return cfg
}

func newTestSession(t *testing.T, deps SessionDeps) *Session {
	t.Helper()
	if deps.Pipeline == nil {
		deps.Pipeline = newTestPipeline(&scriptDetector{dets: always()}, &echoTracker{}, nil)
	}
	if deps.Recorder == nil {
		deps.Recorder = &recorder{}
	}
	s, err := NewSession(testCamera, testHall, testSessionConfig(), deps, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewSessionRequiresSource(t *testing.T) {
	_, err := NewSession(testCamera, testHall, testSessionConfig(), SessionDeps{}, zap.NewNop())
	assert.Error(t, err)
}

func TestSessionRunsToExhaustion(t *testing.T) {
	src := &sliceSource{n: 3, w: 32, h: 32}
	fin := &captureFinalizer{}
	var frames []int
	s := newTestSession(t, SessionDeps{Source: src, Finalizer: fin, OnFrame: func(i int) { frames = append(frames, i) }})

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, src.closed.Load())
	assert.Equal(t, []int{0, 1, 2}, frames)
	assert.Equal(t, 1, fin.calls)
	assert.Equal(t, 3, fin.summary.Frames)
	assert.Equal(t, "Hall B", fin.summary.Location)
	assert.Equal(t, int64(7), fin.summary.CameraID)
}

func TestWarmupFramesAreNotPublished(t *testing.T) {
	slot := &FrameSlot{}
	s := newTestSession(t, SessionDeps{Source: &sliceSource{n: 5, w: 16, h: 16}, Slot: slot})
	require.NoError(t, s.Run(context.Background()))
	_, ok := slot.Latest()
	assert.False(t, ok)

	s = newTestSession(t, SessionDeps{Source: &sliceSource{n: 6, w: 16, h: 16}, Slot: slot})
	require.NoError(t, s.Run(context.Background()))
	b, ok := slot.Latest()
	assert.True(t, ok)
	assert.NotEmpty(t, b)
}

func TestDisabledHallPassesFramesThrough(t *testing.T) {
	det := &scriptDetector{dets: always(vision.Detection{Box: personBox, Confidence: 0.9})}
	slot := &FrameSlot{}
	s := newTestSession(t, SessionDeps{
		Source:   &sliceSource{n: 10, w: 64, h: 64},
		Pipeline: newTestPipeline(det, &echoTracker{}, nil),
		Slot:     slot,
		Enabled:  func() bool { return false },
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Zero(t, det.calls)
	_, ok := slot.Latest()
	assert.True(t, ok)
}

func TestSessionStopsOnCancel(t *testing.T) {
	fin := &captureFinalizer{}
	s := newTestSession(t, SessionDeps{Source: &sliceSource{n: 2, w: 8, h: 8, block: true}, Finalizer: fin})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	fin.mu.Lock()
	defer fin.mu.Unlock()
	assert.Equal(t, 1, fin.calls)
}

func TestSourceFailureEndsSession(t *testing.T) {
	fin := &captureFinalizer{}
	s := newTestSession(t, SessionDeps{Source: &sliceSource{n: 1, w: 8, h: 8, err: errors.New("stream dropped")}, Finalizer: fin})

	err := s.Run(context.Background())
	assert.ErrorContains(t, err, "stream dropped")
	assert.Equal(t, 1, fin.calls)
}

func TestAcceptedCandidatesReachSummary(t *testing.T) {
	det := &scriptDetector{dets: always(vision.Detection{Box: personBox, Confidence: 0.9, Class: vision.ClassLookingAround})}
	rec := &recorder{}
	fin := &captureFinalizer{}
	s := newTestSession(t, SessionDeps{
		Source:    &sliceSource{n: 100, w: 100, h: 100},
		Pipeline:  newTestPipeline(det, &echoTracker{}, &memEvidence{}),
		Recorder:  rec,
		Finalizer: fin,
	})

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, rec.candidates, 1)
	require.Len(t, fin.summary.Violations, 1)
	assert.Equal(t, "Hall B", fin.summary.Violations[0].Location)
}

func TestPhoneSightingsAboveThreshold(t *testing.T) {
	rec := &recorder{}
	fin := &captureFinalizer{}
	s := newTestSession(t, SessionDeps{
		Source:   &sliceSource{n: 3, w: 64, h: 64},
		Recorder: rec,
		Phones: phoneDetector{dets: []vision.Detection{
			{Box: vision.Box{X1: 1, Y1: 1, X2: 10, Y2: 10}, Confidence: 0.5},
			{Box: vision.Box{X1: 20, Y1: 20, X2: 30, Y2: 30}, Confidence: 0.85},
		}},
		Finalizer: fin,
	})

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, rec.phones, 3)
	assert.Equal(t, "00:00.033", rec.phones[1].FormattedTime)
	assert.Equal(t, "Hall B", rec.phones[0].Location)
	assert.Len(t, fin.summary.Phones, 3)
}
