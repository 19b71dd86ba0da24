package domain

import (
	"fmt"
	"image"
	"math"
	"time"
)

// UnknownIdentity is returned by the identity classifier when it cannot
// resolve a face. It takes part in deduplication like any other identity.
const UnknownIdentity = "unknown"

// UnknownStudentName is what name lookup yields for unregistered identities.
const UnknownStudentName = "Unknown Student"

type ReasonCode string

const (
	ReasonRepeatedLookAround   ReasonCode = "repeated_look_around"
	ReasonContinuousLookAround ReasonCode = "continuous_look_around"
)

// CandidateEvent is a rule-engine-confirmed incident before deduplication.
type CandidateEvent struct {
	TrackID      int
	Timestamp    float64 // seconds since stream start
	ReasonCode   ReasonCode
	Reason       string
	EvidencePath string
	Crop         image.Image
}

// ViolationRecord is immutable once built by the aggregation layer.
type ViolationRecord struct {
	ID            string     `json:"id"`
	CameraID      int64      `json:"camera_id"`
	TrackID       int        `json:"track_id"`
	Identity      string     `json:"academic_id"`
	IdentityName  string     `json:"student_name"`
	Confidence    float64    `json:"confidence"`
	ReasonCode    ReasonCode `json:"reason_code"`
	Reason        string     `json:"reason"`
	Timestamp     float64    `json:"timestamp"`
	FormattedTime string     `json:"formatted_time"`
	EvidencePath  string     `json:"evidence_path"`
	Location      string     `json:"location"`
	RecordedAt    time.Time  `json:"datetime"`
}

// PhoneEvent is a phone sighting. Phone events are not deduplicated.
type PhoneEvent struct {
	ID            string    `json:"id"`
	CameraID      int64     `json:"camera_id"`
	Timestamp     float64   `json:"timestamp"`
	FormattedTime string    `json:"formatted_time"`
	Location      string    `json:"location"`
	RecordedAt    time.Time `json:"datetime"`
}

// AttendanceRecord marks an identity as present in a hall.
type AttendanceRecord struct {
	Identity   string    `json:"academic_id"`
	Location   string    `json:"location"`
	Timestamp  float64   `json:"timestamp"`
	RecordedAt time.Time `json:"datetime"`
}

// FormatTimestamp renders seconds as mm:ss.mmm. Minutes are not wrapped at 60.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Floor(seconds*1000 + 1e-6))
	minutes := ms / 60000
	secs := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d.%03d", minutes, secs, ms%1000)
}
