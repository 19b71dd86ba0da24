package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/vision"
)

// Caller is the request/response side of a PythonWorker.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Detector runs the behavior model. Confidence is the model's own cut-off.
type Detector struct {
	W          Caller
	Confidence float64
}

func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]vision.Detection, error) {
	img, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	resp, err := d.W.Call(ctx, Request{Op: OpDetect, Image: img, Confidence: d.Confidence})
	if err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

// Tracker delegates id assignment to the worker. Tracker state lives in
// the worker process, so each camera needs its own worker.
type Tracker struct {
	W Caller
}

func (t *Tracker) Update(ctx context.Context, dets []vision.Detection, frame image.Image) ([]vision.Track, error) {
	img, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	resp, err := t.W.Call(ctx, Request{Op: OpTrack, Image: img, Detections: dets})
	if err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

type PhoneDetector struct {
	W          Caller
	Confidence float64
}

func (p *PhoneDetector) DetectPhones(ctx context.Context, frame image.Image) ([]vision.Detection, error) {
	img, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	resp, err := p.W.Call(ctx, Request{Op: OpPhones, Image: img, Confidence: p.Confidence})
	if err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

// WorkerClassifier resolves a face crop to an identity through the worker.
type WorkerClassifier struct {
	W         Caller
	Threshold float64
}

func (c *WorkerClassifier) Classify(ctx context.Context, face image.Image) (string, float64, error) {
	img, err := EncodeJPEG(face)
	if err != nil {
		return "", 0, fmt.Errorf("encode face: %w", err)
	}
	resp, err := c.W.Call(ctx, Request{Op: OpClassify, Image: img, Confidence: c.Threshold})
	if err != nil {
		return "", 0, err
	}
	return normalizeIdentity(resp.Identity), rawConfidence(resp.Confidence), nil
}

func rawConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return domain.CoerceConfidence(v)
}

// normalizeIdentity folds the classifier's various "no match" answers into
// domain.UnknownIdentity.
func normalizeIdentity(id string) string {
	switch id {
	case "", "Unknown", "unknown", "No Face Detected", "Database Error", "Classification Error":
		return domain.UnknownIdentity
	}
	return id
}
