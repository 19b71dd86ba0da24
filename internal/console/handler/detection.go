package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/console/service"
	"github.com/xela07ax/proctor/internal/domain"
)

// DetectionService is what the handlers need from the service layer.
type DetectionService interface {
	SetHallDetection(ctx context.Context, hallID int64, activate bool) (service.ToggleResult, error)
	HallStats(ctx context.Context, hallID int64) (domain.HallStats, error)
	CameraStats(ctx context.Context, cameraID int64) (domain.CameraStats, error)
	LatestFrame(cameraID int64) ([]byte, bool)
	Tracks(cameraID int64) ([]domain.TrackReport, bool)
	RepeatOffenders(ctx context.Context, hallIDs []int64) []domain.RepeatOffender
	StartAttendance(ctx context.Context, hallID int64) (bool, error)
	StopAttendance(hallID int64) error
	AttendanceStatus(hallID int64) (attendance.Result, bool, bool)
}

type DetectionHandler struct {
	service DetectionService
}

func NewDetectionHandler(s DetectionService) *DetectionHandler {
	return &DetectionHandler{service: s}
}

// ToggleHall handles POST /v1/halls/{id}/detection?activate=true|false.
func (h *DetectionHandler) ToggleHall(w http.ResponseWriter, r *http.Request) {
	hallID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hall id")
		return
	}
	activate, ok := activateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "activate must be true or false")
		return
	}

	res, err := h.service.SetHallDetection(r.Context(), hallID, activate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DetectionHandler) HallStats(w http.ResponseWriter, r *http.Request) {
	hallID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hall id")
		return
	}
	stats, err := h.service.HallStats(r.Context(), hallID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *DetectionHandler) CameraStats(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	stats, err := h.service.CameraStats(r.Context(), cameraID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// LatestFrame serves the last annotated JPEG of a running camera.
func (h *DetectionHandler) LatestFrame(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	frame, ok := h.service.LatestFrame(cameraID)
	if !ok {
		writeError(w, http.StatusNotFound, "No frame found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (h *DetectionHandler) Tracks(w http.ResponseWriter, r *http.Request) {
	cameraID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	tracks, ok := h.service.Tracks(cameraID)
	if !ok {
		writeError(w, http.StatusNotFound, "camera is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"camera_id": cameraID, "tracks": tracks})
}

// RepeatOffenders handles GET /v1/offenders[?hall_id=1&hall_id=2].
func (h *DetectionHandler) RepeatOffenders(w http.ResponseWriter, r *http.Request) {
	var hallIDs []int64
	for _, raw := range r.URL.Query()["hall_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hall_id")
			return
		}
		hallIDs = append(hallIDs, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"repeated_students": h.service.RepeatOffenders(r.Context(), hallIDs)})
}
