package attendance

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/tracking"
	"github.com/xela07ax/proctor/internal/vision"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}

	leftSeat  = vision.Box{X1: 10, Y1: 10, X2: 60, Y2: 60}
	rightSeat = vision.Box{X1: 130, Y1: 10, X2: 180, Y2: 60}

	roster = []domain.Student{
		{Identity: "41210069", Name: "Amr Mohamed"},
		{Identity: "41210112", Name: "Menna Allah Ayman"},
		{Identity: "41210006", Name: "Ahmed ElSayed"},
	}
)

// hallFrame is red on the left seat and blue on the right one.
func hallFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(img, image.Rect(0, 0, 100, 100), &image.Uniform{C: red}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(100, 0, 200, 100), &image.Uniform{C: blue}, image.Point{}, draw.Src)
	return img
}

type seatDetector struct{}

func (seatDetector) Detect(context.Context, image.Image) ([]vision.Detection, error) {
	return []vision.Detection{
		{Box: leftSeat, Confidence: 0.9},
		{Box: rightSeat, Confidence: 0.9},
		{Box: vision.Box{X1: 0, Y1: 70, X2: 20, Y2: 90}, Confidence: 0.1},
	}, nil
}

// colorClassifier recognizes the red seat as 41210069 and the blue one as
// 41210112.
type colorClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *colorClassifier) Classify(_ context.Context, face image.Image) (string, float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	b := face.Bounds()
	r, _, bl, _ := face.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	switch {
	case r > bl:
		return "41210069", 0.9, nil
	case bl > r:
		return "41210112", 0.8, nil
	}
	return domain.UnknownIdentity, 0, nil
}

type memRecorder struct {
	mu   sync.Mutex
	recs []domain.AttendanceRecord
}

func (m *memRecorder) RecordAttendance(rec domain.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
}

// frames yields n hall frames, then io.EOF. gate, when set, is waited on
// before the first frame.
type frames struct {
	n    int
	read int
	gate chan struct{}
}

func (f *frames) Next(ctx context.Context) (image.Image, error) {
	if f.gate != nil && f.read == 0 {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.read == f.n {
		return nil, io.EOF
	}
	f.read++
	return hallFrame(), nil
}

func (f *frames) Close() error { return nil }

func newIoU() pipeline.Tracker { return tracking.NewIoUTracker(tracking.DefaultConfig()) }

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.FacesDir = t.TempDir()
	return cfg
}

func TestRunMarksPresentAndAbsent(t *testing.T) {
	rec := &memRecorder{}
	cls := &colorClassifier{}
	tr := NewTracker(testConfig(t), roster, seatDetector{}, newIoU, cls, rec, zap.NewNop())

	hall := domain.Hall{ID: 3, Name: "Hall C"}
	src := &frames{n: 10}
	res, err := tr.Run(context.Background(), hall, []domain.Camera{{ID: 31, HallID: 3}},
		func(domain.Camera) (pipeline.FrameSource, error) { return src, nil })
	require.NoError(t, err)

	require.Len(t, res.Present, 2)
	assert.Equal(t, "41210069", res.Present[0].Identity)
	assert.Equal(t, "Amr Mohamed", res.Present[0].Name)
	assert.Equal(t, "41210112", res.Present[1].Identity)
	require.Len(t, res.Absent, 1)
	assert.Equal(t, "41210006", res.Absent[0].Identity)

	assert.Equal(t, 10, src.read, "the pass keeps reading while someone is missing")
	assert.Equal(t, 2, cls.calls, "recognized tracks are not classified again")

	require.Len(t, rec.recs, 2)
	assert.Equal(t, "Hall C", rec.recs[0].Location)
	assert.InDelta(t, 1.0/30, rec.recs[0].Timestamp, 1e-9)

	_, err = os.Stat(res.Present[0].FacePath)
	assert.NoError(t, err)

	rows := res.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, StatusPresent, rows[0].Status)
	assert.Equal(t, StatusAbsent, rows[2].Status)
}

func TestRunStopsWhenEveryoneIsPresent(t *testing.T) {
	first := &frames{n: 50}
	opened := 0
	open := func(cam domain.Camera) (pipeline.FrameSource, error) {
		opened++
		return first, nil
	}

	tr := NewTracker(testConfig(t), roster[:2], seatDetector{}, newIoU, &colorClassifier{}, nil, zap.NewNop())
	res, err := tr.Run(context.Background(), domain.Hall{ID: 3},
		[]domain.Camera{{ID: 31, HallID: 3}, {ID: 32, HallID: 3}}, open)
	require.NoError(t, err)

	assert.Len(t, res.Present, 2)
	assert.Empty(t, res.Absent)
	assert.Equal(t, 1, first.read)
	assert.Equal(t, 1, opened, "later cameras are skipped")
}

type hallDirectory struct{}

func (hallDirectory) GetHall(_ context.Context, id int64) (domain.Hall, error) {
	return domain.Hall{ID: id, Name: "Hall C"}, nil
}

func (hallDirectory) ListHallCameras(_ context.Context, hallID int64) ([]domain.Camera, error) {
	return []domain.Camera{{ID: 31, HallID: hallID}}, nil
}

type staticRoster []domain.Student

func (r staticRoster) Students(context.Context) ([]domain.Student, error) { return r, nil }

func TestManagerLifecycle(t *testing.T) {
	gate := make(chan struct{})
	reports := t.TempDir()
	m := NewManager(context.Background(), testConfig(t), ManagerDeps{
		Directory:  hallDirectory{},
		Roster:     staticRoster(roster),
		Detector:   seatDetector{},
		NewTracker: newIoU,
		Classifier: &colorClassifier{},
		Recorder:   &memRecorder{},
		Open: func(domain.Camera) (pipeline.FrameSource, error) {
			return &frames{n: 3, gate: gate}, nil
		},
		ReportDir: reports,
	}, zap.NewNop())

	started, err := m.Start(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = m.Start(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, started, "second start while running is a no-op")

	assert.ErrorIs(t, m.Stop(3), ErrRunning)

	close(gate)
	m.Wait()

	assert.False(t, m.Running(3))
	assert.ErrorIs(t, m.Stop(3), ErrNotRunning)

	res, ok := m.Result(3)
	require.True(t, ok)
	assert.Len(t, res.Present, 2)

	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "Hall C__")
}

func TestWriteReportEmptyRoster(t *testing.T) {
	path, err := WriteReport(t.TempDir(), Result{Location: "Hall Z", EndedAt: time.Now()})
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
