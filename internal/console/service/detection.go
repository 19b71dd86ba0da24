package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/attendance"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
)

var ErrAttendanceDisabled = errors.New("attendance tracking is not configured")

// HallRepository is the persistent side of halls and cameras.
type HallRepository interface {
	GetHall(ctx context.Context, id int64) (domain.Hall, error)
	GetCamera(ctx context.Context, id int64) (domain.Camera, error)
	ListHallCameras(ctx context.Context, hallID int64) ([]domain.Camera, error)
	SetHallDetection(ctx context.Context, id int64, enabled bool) error
}

// Orchestrator starts and stops camera workers.
type Orchestrator interface {
	StartHall(ctx context.Context, hallID int64) (map[int64]error, error)
	StopHall(ctx context.Context, hallID int64) error
	Session(cameraID int64) (*pipeline.Session, bool)
}

// HallFlags is the live per-hall detection flag shared with other
// instances.
type HallFlags interface {
	IsEnabled(hallID int64) bool
	Publish(ctx context.Context, hallID int64, on bool) error
}

type Stats interface {
	Camera(id int64) domain.CameraStats
	Hall(hallID int64, cameraIDs []int64, active bool) domain.HallStats
}

type Offenders interface {
	Collect(hallIDs []int64) []domain.RepeatOffender
}

type OffenderNotifier interface {
	NotifyOffenders(ctx context.Context, offenders []domain.RepeatOffender)
}

type Attendance interface {
	Start(ctx context.Context, hallID int64) (bool, error)
	Stop(hallID int64) error
	Running(hallID int64) bool
	Result(hallID int64) (attendance.Result, bool)
}

// ToggleResult describes a hall detection switch.
type ToggleResult struct {
	HallID int64            `json:"hall_id"`
	Active bool             `json:"active"`
	Failed map[int64]string `json:"failed_cameras,omitempty"`
}

type Deps struct {
	Repo       HallRepository
	Orch       Orchestrator
	Flags      HallFlags
	Stats      Stats
	Offenders  Offenders
	Notifier   OffenderNotifier // optional
	Attendance Attendance       // optional
}

// DetectionService is the command surface behind the HTTP handlers.
type DetectionService struct {
	deps   Deps
	logger *zap.Logger
}

func NewDetectionService(deps Deps, logger *zap.Logger) *DetectionService {
	return &DetectionService{deps: deps, logger: logger.Named("detection-service")}
}

// SetHallDetection persists the hall flag, signals the other instances and
// starts or stops the hall's cameras. Signal delivery failures are logged
// and do not fail the call.
func (s *DetectionService) SetHallDetection(ctx context.Context, hallID int64, activate bool) (ToggleResult, error) {
	res := ToggleResult{HallID: hallID, Active: activate}

	if err := s.deps.Repo.SetHallDetection(ctx, hallID, activate); err != nil {
		s.logger.Error("failed to update hall flag in DB", zap.Int64("hall_id", hallID), zap.Error(err))
		return res, fmt.Errorf("hall detection database error: %w", err)
	}

	if err := s.deps.Flags.Publish(ctx, hallID, activate); err != nil {
		s.logger.Warn("runtime signal delivery failed", zap.Int64("hall_id", hallID), zap.Error(err))
	}

	if !activate {
		if err := s.deps.Orch.StopHall(ctx, hallID); err != nil {
			s.logger.Warn("hall stopped with errors", zap.Int64("hall_id", hallID), zap.Error(err))
		}
		s.logger.Info("hall detection stopped", zap.Int64("hall_id", hallID))
		return res, nil
	}

	failed, err := s.deps.Orch.StartHall(ctx, hallID)
	if err != nil {
		return res, err
	}
	if len(failed) > 0 {
		res.Failed = make(map[int64]string, len(failed))
		for id, ferr := range failed {
			res.Failed[id] = ferr.Error()
		}
	}
	s.logger.Info("hall detection started", zap.Int64("hall_id", hallID), zap.Int("failed_cameras", len(failed)))
	return res, nil
}

func (s *DetectionService) HallStats(ctx context.Context, hallID int64) (domain.HallStats, error) {
	if _, err := s.deps.Repo.GetHall(ctx, hallID); err != nil {
		return domain.HallStats{}, err
	}
	cams, err := s.deps.Repo.ListHallCameras(ctx, hallID)
	if err != nil {
		return domain.HallStats{}, err
	}
	ids := make([]int64, len(cams))
	for i, c := range cams {
		ids[i] = c.ID
	}
	return s.deps.Stats.Hall(hallID, ids, s.deps.Flags.IsEnabled(hallID)), nil
}

func (s *DetectionService) CameraStats(ctx context.Context, cameraID int64) (domain.CameraStats, error) {
	if _, err := s.deps.Repo.GetCamera(ctx, cameraID); err != nil {
		return domain.CameraStats{}, err
	}
	return s.deps.Stats.Camera(cameraID), nil
}

// LatestFrame returns the camera's most recent annotated JPEG.
func (s *DetectionService) LatestFrame(cameraID int64) ([]byte, bool) {
	sess, ok := s.deps.Orch.Session(cameraID)
	if !ok || sess.Slot() == nil {
		return nil, false
	}
	return sess.Slot().Latest()
}

// Tracks reports the live behavioral state of the camera's tracks.
func (s *DetectionService) Tracks(cameraID int64) ([]domain.TrackReport, bool) {
	sess, ok := s.deps.Orch.Session(cameraID)
	if !ok {
		return nil, false
	}
	return sess.Tracks(), true
}

// RepeatOffenders returns identities that crossed a new threshold since
// the previous call and broadcasts them. nil hallIDs means every hall.
func (s *DetectionService) RepeatOffenders(ctx context.Context, hallIDs []int64) []domain.RepeatOffender {
	out := s.deps.Offenders.Collect(hallIDs)
	if len(out) > 0 && s.deps.Notifier != nil {
		s.deps.Notifier.NotifyOffenders(ctx, out)
	}
	if out == nil {
		out = []domain.RepeatOffender{}
	}
	return out
}

func (s *DetectionService) StartAttendance(ctx context.Context, hallID int64) (bool, error) {
	if s.deps.Attendance == nil {
		return false, ErrAttendanceDisabled
	}
	started, err := s.deps.Attendance.Start(ctx, hallID)
	if err != nil {
		return false, err
	}
	if started {
		s.logger.Info("attendance started", zap.Int64("hall_id", hallID))
	}
	return started, nil
}

func (s *DetectionService) StopAttendance(hallID int64) error {
	if s.deps.Attendance == nil {
		return ErrAttendanceDisabled
	}
	return s.deps.Attendance.Stop(hallID)
}

// AttendanceStatus returns the last finished pass, if any, and whether a
// pass is running now.
func (s *DetectionService) AttendanceStatus(hallID int64) (res attendance.Result, finished, running bool) {
	if s.deps.Attendance == nil {
		return attendance.Result{}, false, false
	}
	res, finished = s.deps.Attendance.Result(hallID)
	return res, finished, s.deps.Attendance.Running(hallID)
}
