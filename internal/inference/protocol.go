package inference

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"

	"github.com/xela07ax/proctor/internal/vision"
)

// Worker operations.
const (
	OpDetect   = "detect"
	OpTrack    = "track"
	OpPhones   = "phones"
	OpClassify = "classify"
)

// Request is one call into the worker. Image is JPEG encoded.
type Request struct {
	Op         string             `json:"op"`
	Image      []byte             `json:"image,omitempty"`
	Confidence float64            `json:"conf,omitempty"`
	Detections []vision.Detection `json:"detections,omitempty"`
}

type Response struct {
	Error        string             `json:"error,omitempty"`
	RetryAfterMs int64              `json:"retry_after_ms,omitempty"`
	Detections   []vision.Detection `json:"detections,omitempty"`
	Tracks       []vision.Track     `json:"tracks,omitempty"`
	Identity     string             `json:"identity,omitempty"`
	Confidence   json.RawMessage    `json:"confidence,omitempty"`
}

// EncodeJPEG serializes a frame for the wire.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
