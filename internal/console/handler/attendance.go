package handler

import (
	"errors"
	"net/http"

	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/console/service"
)

type statusMessage struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// ToggleAttendance handles POST /v1/halls/{id}/attendance?activate=.
// A running pass cannot be stopped.
func (h *DetectionHandler) ToggleAttendance(w http.ResponseWriter, r *http.Request) {
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

	if !activate {
		err := h.service.StopAttendance(hallID)
		switch {
		case errors.Is(err, attendance.ErrRunning):
			writeJSON(w, http.StatusConflict, statusMessage{false, "Can't stop attendance safely yet"})
		case errors.Is(err, attendance.ErrNotRunning):
			writeJSON(w, http.StatusNotFound, statusMessage{false, "Attendance not running"})
		case errors.Is(err, service.ErrAttendanceDisabled):
			writeError(w, http.StatusNotImplemented, err.Error())
		default:
			writeServiceError(w, err)
		}
		return
	}

	started, err := h.service.StartAttendance(r.Context(), hallID)
	switch {
	case errors.Is(err, service.ErrAttendanceDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		writeServiceError(w, err)
	case !started:
		writeJSON(w, http.StatusOK, statusMessage{true, "Attendance already running"})
	default:
		writeJSON(w, http.StatusAccepted, statusMessage{true, "Attendance tracking started"})
	}
}

func (h *DetectionHandler) AttendanceStatus(w http.ResponseWriter, r *http.Request) {
	hallID, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hall id")
		return
	}
	res, finished, running := h.service.AttendanceStatus(hallID)
	body := map[string]any{"hall_id": hallID, "running": running}
	if finished {
		body["last_result"] = res
	}
	writeJSON(w, http.StatusOK, body)
}
