package domain

import (
	"fmt"
	"strings"
)

// Hall is a physical grouping of cameras sharing one detection toggle.
type Hall struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Floor            string `json:"floor"`
	DetectionEnabled bool   `json:"detection_enabled"`
}

// Location is the string stamped on every record produced in the hall.
func (h Hall) Location() string {
	if h.Name != "" {
		return h.Name
	}
	return fmt.Sprintf("hall_%d", h.ID)
}

type Camera struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	HallID    int64  `json:"hall_id"`
	Stream    string `json:"stream"`     // live URL or device index
	VideoPath string `json:"video_path"` // recorded file, optional
	IsLive    bool   `json:"is_live"`
}

// Source picks the stream for live cameras and the recorded file otherwise.
// An empty result means the camera cannot be started.
func (c Camera) Source() string {
	stream := strings.TrimSpace(c.Stream)
	path := strings.TrimSpace(c.VideoPath)
	if c.IsLive && stream != "" {
		return stream
	}
	if path != "" {
		return path
	}
	return stream
}
