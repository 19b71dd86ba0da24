// Package attendance marks students present by recognizing their faces in
// a hall's camera streams.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
	"github.com/xela07ax/proctor/internal/vision"
)

type Classifier interface {
	Classify(ctx context.Context, face image.Image) (string, float64, error)
}

// Recorder persists attendance marks. audit.Journal satisfies it.
type Recorder interface {
	RecordAttendance(rec domain.AttendanceRecord)
}

// Opener opens the frame source of a camera.
type Opener func(cam domain.Camera) (pipeline.FrameSource, error)

type Config struct {
	FrameRate        float64
	DetectConfidence float64
	CropPadding      int
	FaceSize         int
	FacesDir         string
}

func DefaultConfig() Config {
	return Config{
		FrameRate:        30,
		DetectConfidence: 0.40,
		CropPadding:      20,
		FaceSize:         160,
		FacesDir:         "attendance_faces",
	}
}

// Mark is one student recognized during a run.
type Mark struct {
	Identity string    `json:"academic_id"`
	Name     string    `json:"name"`
	CameraID int64     `json:"camera_id"`
	FacePath string    `json:"face_path"`
	At       time.Time `json:"datetime"`
}

type Result struct {
	HallID    int64            `json:"hall_id"`
	Location  string           `json:"location"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Present   []Mark           `json:"present"`
	Absent    []domain.Student `json:"absent"`
}

// Tracker runs one attendance pass over a hall. It is not reusable.
type Tracker struct {
	cfg        Config
	detector   pipeline.Detector
	newTracker func() pipeline.Tracker
	classifier Classifier
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time

	roster  []domain.Student
	known   map[string]domain.Student
	present map[string]Mark
	marks   []Mark
}

// NewTracker prepares a pass over roster. newTracker builds a fresh
// multi-object tracker for every camera.
func NewTracker(cfg Config, roster []domain.Student, detector pipeline.Detector, newTracker func() pipeline.Tracker,
	classifier Classifier, recorder Recorder, logger *zap.Logger) *Tracker {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	known := make(map[string]domain.Student, len(roster))
	for _, st := range roster {
		known[st.Identity] = st
	}
	return &Tracker{
		cfg:        cfg,
		detector:   detector,
		newTracker: newTracker,
		classifier: classifier,
		recorder:   recorder,
		logger:     logger.With(zap.String("mod", "attendance")),
		now:        time.Now,
		roster:     roster,
		known:      known,
		present:    make(map[string]Mark),
	}
}

// Run goes through the cameras one after another and stops early once
// every student on the roster has been seen. A camera that fails to open
// or breaks mid-stream is logged and skipped.
func (t *Tracker) Run(ctx context.Context, hall domain.Hall, cams []domain.Camera, open Opener) (Result, error) {
	res := Result{HallID: hall.ID, Location: hall.Location(), StartedAt: t.now()}
	t.logger.Info("attendance started", zap.Int64("hall_id", hall.ID), zap.Int("students", len(t.known)))

	for _, cam := range cams {
		if ctx.Err() != nil || t.complete() {
			break
		}
		src, err := open(cam)
		if err != nil {
			t.logger.Error("camera source unavailable", zap.Int64("camera_id", cam.ID), zap.Error(err))
			continue
		}
		err = t.runCamera(ctx, hall, cam, src)
		src.Close()
		if err != nil {
			t.logger.Warn("camera pass ended early", zap.Int64("camera_id", cam.ID), zap.Error(err))
		}
	}

	res.EndedAt = t.now()
	res.Present = append(res.Present, t.marks...)
	for _, st := range t.roster {
		if _, ok := t.present[st.Identity]; !ok {
			res.Absent = append(res.Absent, st)
		}
	}
	t.logger.Info("attendance finished",
		zap.Int64("hall_id", hall.ID), zap.Int("present", len(res.Present)), zap.Int("absent", len(res.Absent)))
	return res, ctx.Err()
}

func (t *Tracker) complete() bool {
	return len(t.known) > 0 && len(t.present) == len(t.known)
}

func (t *Tracker) runCamera(ctx context.Context, hall domain.Hall, cam domain.Camera, src pipeline.FrameSource) error {
	tracker := t.newTracker()
	settled := make(map[int]bool) // tracks already attributed

	for frameIndex := 1; ; frameIndex++ {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		dets, err := t.detector.Detect(ctx, frame)
		if err != nil {
			t.logger.Warn("detection failed", zap.Int64("camera_id", cam.ID), zap.Int("frame", frameIndex), zap.Error(err))
			continue
		}
		dets = vision.FilterConfident(dets, t.cfg.DetectConfidence)
		if len(dets) == 0 {
			continue
		}
		tracks, err := tracker.Update(ctx, dets, frame)
		if err != nil {
			t.logger.Warn("tracking failed", zap.Int64("camera_id", cam.ID), zap.Int("frame", frameIndex), zap.Error(err))
			continue
		}

		ts := float64(frameIndex) / t.cfg.FrameRate
		for _, tr := range tracks {
			if settled[tr.ID] {
				continue
			}
			if t.identify(ctx, hall, cam, frame, tr, ts) {
				settled[tr.ID] = true
			}
		}
		if t.complete() {
			t.logger.Info("all students recognized", zap.Int64("hall_id", hall.ID))
			return nil
		}
	}
}

// identify classifies the track's face and marks a newly recognized
// student present. Unrecognized tracks are retried on later frames.
func (t *Tracker) identify(ctx context.Context, hall domain.Hall, cam domain.Camera, frame image.Image, tr vision.Track, ts float64) bool {
	crop, err := vision.CropPadded(frame, tr.Box, t.cfg.CropPadding)
	if err != nil {
		return false
	}
	face, err := vision.Resize(crop, t.cfg.FaceSize)
	if err != nil {
		return false
	}
	identity, _, err := t.classifier.Classify(ctx, face)
	if err != nil {
		t.logger.Debug("classification failed", zap.Int("track_id", tr.ID), zap.Error(err))
		return false
	}
	st, known := t.known[identity]
	if !known {
		return false
	}
	if _, seen := t.present[identity]; seen {
		return false
	}

	now := t.now()
	mark := Mark{Identity: identity, Name: st.Name, CameraID: cam.ID, At: now}
	if path, err := t.saveFace(hall.ID, cam.ID, identity, crop); err != nil {
		t.logger.Warn("face not saved", zap.String("academic_id", identity), zap.Error(err))
	} else {
		mark.FacePath = path
	}
	t.present[identity] = mark
	t.marks = append(t.marks, mark)

	if t.recorder != nil {
		t.recorder.RecordAttendance(domain.AttendanceRecord{
			Identity:   identity,
			Location:   hall.Location(),
			Timestamp:  ts,
			RecordedAt: now,
		})
	}
	t.logger.Info("student present", zap.String("academic_id", identity), zap.String("name", st.Name), zap.Int64("camera_id", cam.ID))
	return true
}

func (t *Tracker) saveFace(hallID, cameraID int64, identity string, img image.Image) (string, error) {
	if t.cfg.FacesDir == "" {
		return "", nil
	}
	dir := filepath.Join(t.cfg.FacesDir, fmt.Sprintf("hall_%d", hallID), fmt.Sprintf("camera_%d", cameraID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, identity+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
