package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/report"
	"github.com/xela07ax/proctor/internal/vision"
)

// Detector returns every person detection above its own internal threshold.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]vision.Detection, error)
}

// Tracker assigns stable ids. One instance per camera.
type Tracker interface {
	Update(ctx context.Context, dets []vision.Detection, frame image.Image) ([]vision.Track, error)
}

// PhoneDetector finds phones in a frame.
type PhoneDetector interface {
	DetectPhones(ctx context.Context, frame image.Image) ([]vision.Detection, error)
}

// FrameSource yields decoded frames in order. Any error ends the stream;
// io.EOF marks normal exhaustion. Close may be called more than once and
// concurrently with Next.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// EvidenceStore persists an evidence crop and returns where it went.
type EvidenceStore interface {
	Save(cameraID int64, trackID int, ts float64, img image.Image) (string, error)
}

// Recorder is the aggregation layer that receives candidates and phone
// sightings. Accept reports false when the candidate was a duplicate.
type Recorder interface {
	Accept(ctx context.Context, camera domain.Camera, location string, c domain.CandidateEvent) (domain.ViolationRecord, bool)
	RecordPhone(ctx context.Context, ev domain.PhoneEvent)
}

// Finalizer consumes the session summary when a worker exits.
type Finalizer interface {
	Finalize(ctx context.Context, s report.Summary)
}

// FrameObserver receives per-frame timings and error kinds.
type FrameObserver interface {
	ObserveFrame(cameraID int64, d time.Duration, detecting bool)
	ObserveError(kind string)
}
