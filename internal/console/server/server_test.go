package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/console/handler"
	"github.com/xela07ax/proctor/internal/console/service"
	"github.com/xela07ax/proctor/internal/domain"
)

type fakeService struct {
	toggled    []string
	frame      []byte
	attRunning bool
	attStarted bool
	offenders  []domain.RepeatOffender
	gotHalls   []int64
}

func (f *fakeService) SetHallDetection(_ context.Context, hallID int64, activate bool) (service.ToggleResult, error) {
	if hallID == 404 {
		return service.ToggleResult{}, fmt.Errorf("hall 404: %w", domain.ErrNotFound)
	}
	f.toggled = append(f.toggled, fmt.Sprintf("%d:%t", hallID, activate))
	res := service.ToggleResult{HallID: hallID, Active: activate}
	if activate {
		res.Failed = map[int64]string{12: "no source configured"}
	}
	return res, nil
}

func (f *fakeService) HallStats(_ context.Context, hallID int64) (domain.HallStats, error) {
	return domain.HallStats{HallID: hallID, Active: true, PerCamera: map[int64]int64{11: 2}}, nil
}

func (f *fakeService) CameraStats(_ context.Context, id int64) (domain.CameraStats, error) {
	if id == 404 {
		return domain.CameraStats{}, domain.ErrNotFound
	}
	return domain.CameraStats{CameraID: id, Count: 1, Violations: []domain.ViolationRecord{{Identity: "41210033"}}}, nil
}

func (f *fakeService) LatestFrame(int64) ([]byte, bool) { return f.frame, f.frame != nil }

func (f *fakeService) Tracks(id int64) ([]domain.TrackReport, bool) {
	return []domain.TrackReport{{TrackID: 1, ViolationCount: 2}}, id == 11
}

func (f *fakeService) RepeatOffenders(_ context.Context, hallIDs []int64) []domain.RepeatOffender {
	f.gotHalls = hallIDs
	return f.offenders
}

func (f *fakeService) StartAttendance(context.Context, int64) (bool, error) {
	if f.attRunning {
		return false, nil
	}
	f.attRunning, f.attStarted = true, true
	return true, nil
}

func (f *fakeService) StopAttendance(int64) error {
	if f.attRunning {
		return attendance.ErrRunning
	}
	return attendance.ErrNotRunning
}

func (f *fakeService) AttendanceStatus(hallID int64) (attendance.Result, bool, bool) {
	return attendance.Result{HallID: hallID}, true, f.attRunning
}

func newTestServer(svc *fakeService) *ConsoleServer {
	return NewConsoleServer(zap.NewNop(), nil, prometheus.NewRegistry(), handler.NewDetectionHandler(svc))
}

func do(t *testing.T, s http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&fakeService{})
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/metrics").Code)
}

func TestToggleHall(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	rec := do(t, s, http.MethodPost, "/v1/halls/1/detection?activate=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.ToggleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Active)
	assert.Equal(t, "no source configured", res.Failed[12])

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/halls/1/detection?activate=false").Code)
	assert.Equal(t, []string{"1:true", "1:false"}, svc.toggled)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/halls/1/detection").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/halls/abc/detection?activate=true").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/halls/404/detection?activate=true").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/v1/halls/1/detection").Code)
}

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(&fakeService{})

	rec := do(t, s, http.MethodGet, "/v1/halls/1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var hs domain.HallStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hs))
	assert.Equal(t, int64(2), hs.PerCamera[11])

	rec = do(t, s, http.MethodGet, "/v1/cameras/11/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"academic_id":"41210033"`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/cameras/404/stats").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/cameras/11/tracks").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/cameras/12/tracks").Code)
}

func TestLatestFrame(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/cameras/11/frame").Code)

	svc.frame = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	rec := do(t, s, http.MethodGet, "/v1/cameras/11/frame")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, svc.frame, rec.Body.Bytes())
}

func TestRepeatOffenders(t *testing.T) {
	svc := &fakeService{offenders: []domain.RepeatOffender{{Identity: "41210081", Count: 3}}}
	s := newTestServer(svc)

	rec := do(t, s, http.MethodGet, "/v1/offenders?hall_id=1&hall_id=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, svc.gotHalls)
	assert.Contains(t, rec.Body.String(), `"repeated_students":[{"academic_id":"41210081"`)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/offenders?hall_id=x").Code)
}

func TestAttendanceToggle(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/halls/3/attendance?activate=false").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/halls/3/attendance?activate=true").Code)

	rec := do(t, s, http.MethodPost, "/v1/halls/3/attendance?activate=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already running")

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/halls/3/attendance?activate=false").Code)

	rec = do(t, s, http.MethodGet, "/v1/halls/3/attendance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)
}

type denyAll struct{}

func (denyAll) VerifyToken(string) (*domain.CustomClaims, error) { return nil, errors.New("expired") }

func TestAuthGuardsAPI(t *testing.T) {
	s := NewConsoleServer(zap.NewNop(), denyAll{}, nil, handler.NewDetectionHandler(&fakeService{}))
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/halls/1/stats").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics").Code)
}

type readerOnly struct{}

func (readerOnly) VerifyToken(string) (*domain.CustomClaims, error) {
	return &domain.CustomClaims{UserID: "viewer", Scopes: map[string]bool{domain.ScopeStatsRead: true}}, nil
}

func TestScopeEnforced(t *testing.T) {
	s := NewConsoleServer(zap.NewNop(), readerOnly{}, nil, handler.NewDetectionHandler(&fakeService{}))

	req := func(method, target string) int {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(method, target, nil)
		r.Header.Set("Authorization", "Bearer token")
		s.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, req(http.MethodGet, "/v1/halls/1/stats"))
	assert.Equal(t, http.StatusOK, req(http.MethodGet, "/v1/offenders"))
	assert.Equal(t, http.StatusForbidden, req(http.MethodPost, "/v1/halls/1/detection?activate=true"))
	assert.Equal(t, http.StatusForbidden, req(http.MethodPost, "/v1/halls/1/attendance?activate=true"))
}
