package domain

// CameraStats is the live aggregate for one camera: an all-time accepted
// count and the most recent records, newest first.
type CameraStats struct {
	CameraID   int64             `json:"camera_id"`
	Count      int64             `json:"count"`
	Violations []ViolationRecord `json:"violations"`
}

type HallStats struct {
	HallID     int64             `json:"hall_id"`
	Active     bool              `json:"active"`
	PerCamera  map[int64]int64   `json:"per_camera"`
	Violations []ViolationRecord `json:"violations"`
}

// RepeatOffender is emitted once per identity per crossed threshold.
type RepeatOffender struct {
	Identity     string `json:"academic_id"`
	IdentityName string `json:"student_name"`
	HallName     string `json:"hall_name"`
	Count        int    `json:"violation_count"`
}

// TrackReport summarises the behavioral state of one live track.
type TrackReport struct {
	TrackID            int     `json:"track_id"`
	ViolationCount     int     `json:"violation_count"`
	ContinuousDuration float64 `json:"max_continuous_duration"`
	EvidenceCaptured   bool    `json:"screenshot_taken"`
}
