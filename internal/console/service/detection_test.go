package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
)

type fakeRepo struct {
	setErr  error
	flags   map[int64]bool
	cameras map[int64][]domain.Camera
}

func (r *fakeRepo) GetHall(_ context.Context, id int64) (domain.Hall, error) {
	if _, ok := r.cameras[id]; !ok {
		return domain.Hall{}, domain.ErrNotFound
	}
	return domain.Hall{ID: id}, nil
}

func (r *fakeRepo) GetCamera(_ context.Context, id int64) (domain.Camera, error) {
	for _, cams := range r.cameras {
		for _, c := range cams {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return domain.Camera{}, domain.ErrNotFound
}

func (r *fakeRepo) ListHallCameras(_ context.Context, hallID int64) ([]domain.Camera, error) {
	return r.cameras[hallID], nil
}

func (r *fakeRepo) SetHallDetection(_ context.Context, id int64, enabled bool) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.flags[id] = enabled
	return nil
}

type fakeOrch struct {
	started, stopped []int64
	failed           map[int64]error
}

func (o *fakeOrch) StartHall(_ context.Context, hallID int64) (map[int64]error, error) {
	o.started = append(o.started, hallID)
	return o.failed, nil
}

func (o *fakeOrch) StopHall(_ context.Context, hallID int64) error {
	o.stopped = append(o.stopped, hallID)
	return nil
}

func (o *fakeOrch) Session(int64) (*pipeline.Session, bool) { return nil, false }

type fakeFlags struct {
	published  map[int64]bool
	publishErr error
}

func (f *fakeFlags) IsEnabled(hallID int64) bool { return f.published[hallID] }

func (f *fakeFlags) Publish(_ context.Context, hallID int64, on bool) error {
	f.published[hallID] = on
	return f.publishErr
}

type fakeStats struct{ gotIDs []int64 }

func (s *fakeStats) Camera(id int64) domain.CameraStats { return domain.CameraStats{CameraID: id, Count: 3} }

func (s *fakeStats) Hall(hallID int64, ids []int64, active bool) domain.HallStats {
	s.gotIDs = ids
	return domain.HallStats{HallID: hallID, Active: active}
}

type fakeOffenders struct{ out []domain.RepeatOffender }

func (f fakeOffenders) Collect([]int64) []domain.RepeatOffender { return f.out }

type fakeNotifier struct{ calls int }

func (n *fakeNotifier) NotifyOffenders(context.Context, []domain.RepeatOffender) { n.calls++ }

type fakeAttendance struct{ running bool }

func (a *fakeAttendance) Start(context.Context, int64) (bool, error) {
	if a.running {
		return false, nil
	}
	a.running = true
	return true, nil
}

func (a *fakeAttendance) Stop(int64) error { return attendance.ErrRunning }

func (a *fakeAttendance) Running(int64) bool { return a.running }

func (a *fakeAttendance) Result(hallID int64) (attendance.Result, bool) {
	return attendance.Result{HallID: hallID}, !a.running
}

type fixture struct {
	repo  *fakeRepo
	orch  *fakeOrch
	flags *fakeFlags
	stats *fakeStats
	svc   *DetectionService
}

func newFixture(deps Deps) *fixture {
	f := &fixture{
		repo: &fakeRepo{
			flags:   map[int64]bool{},
			cameras: map[int64][]domain.Camera{1: {{ID: 11, HallID: 1}, {ID: 12, HallID: 1}}},
		},
		orch:  &fakeOrch{},
		flags: &fakeFlags{published: map[int64]bool{}},
		stats: &fakeStats{},
	}
	deps.Repo, deps.Orch, deps.Flags, deps.Stats = f.repo, f.orch, f.flags, f.stats
	if deps.Offenders == nil {
		deps.Offenders = fakeOffenders{}
	}
	f.svc = NewDetectionService(deps, zap.NewNop())
	return f
}

func TestSetHallDetectionStartAndStop(t *testing.T) {
	f := newFixture(Deps{})
	f.orch.failed = map[int64]error{12: errors.New("no source")}

	res, err := f.svc.SetHallDetection(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, map[int64]string{12: "no source"}, res.Failed)
	assert.True(t, f.repo.flags[1])
	assert.True(t, f.flags.published[1])
	assert.Equal(t, []int64{1}, f.orch.started)

	res, err = f.svc.SetHallDetection(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Empty(t, res.Failed)
	assert.False(t, f.repo.flags[1])
	assert.Equal(t, []int64{1}, f.orch.stopped)
}

func TestSetHallDetectionDBErrorStopsEarly(t *testing.T) {
	f := newFixture(Deps{})
	f.repo.setErr = errors.New("connection refused")

	_, err := f.svc.SetHallDetection(context.Background(), 1, true)
	require.Error(t, err)
	assert.Empty(t, f.flags.published)
	assert.Empty(t, f.orch.started)
}

func TestSetHallDetectionSurvivesPublishFailure(t *testing.T) {
	f := newFixture(Deps{})
	f.flags.publishErr = errors.New("redis down")

	_, err := f.svc.SetHallDetection(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, f.orch.started)
}

func TestStatsLookups(t *testing.T) {
	f := newFixture(Deps{})
	f.flags.published[1] = true

	hs, err := f.svc.HallStats(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, hs.Active)
	assert.Equal(t, []int64{11, 12}, f.stats.gotIDs)

	_, err = f.svc.HallStats(context.Background(), 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cs, err := f.svc.CameraStats(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cs.Count)

	_, err = f.svc.CameraStats(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, ok := f.svc.LatestFrame(11)
	assert.False(t, ok)
	_, ok = f.svc.Tracks(11)
	assert.False(t, ok)
}

func TestRepeatOffendersNotifiesOnlyWhenNonEmpty(t *testing.T) {
	n := &fakeNotifier{}
	f := newFixture(Deps{Notifier: n})

	out := f.svc.RepeatOffenders(context.Background(), nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Zero(t, n.calls)

	f = newFixture(Deps{Notifier: n, Offenders: fakeOffenders{out: []domain.RepeatOffender{{Identity: "41210081", Count: 3}}}})
	out = f.svc.RepeatOffenders(context.Background(), []int64{1})
	assert.Len(t, out, 1)
	assert.Equal(t, 1, n.calls)
}

func TestAttendanceDisabled(t *testing.T) {
	f := newFixture(Deps{})

	_, err := f.svc.StartAttendance(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAttendanceDisabled)
	assert.ErrorIs(t, f.svc.StopAttendance(1), ErrAttendanceDisabled)

	_, finished, running := f.svc.AttendanceStatus(1)
	assert.False(t, finished)
	assert.False(t, running)
}

func TestAttendanceDelegates(t *testing.T) {
	att := &fakeAttendance{}
	f := newFixture(Deps{Attendance: att})

	started, err := f.svc.StartAttendance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = f.svc.StartAttendance(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, started)

	assert.ErrorIs(t, f.svc.StopAttendance(1), attendance.ErrRunning)

	_, finished, running := f.svc.AttendanceStatus(1)
	assert.False(t, finished)
	assert.True(t, running)
}
