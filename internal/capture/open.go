package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
)

// ErrNoSource means the camera has neither a live stream nor a recording.
var ErrNoSource = errors.New("capture: camera has no frame source")

// Open picks the right source for input: a directory of stills or anything
// ffmpeg can read.
func Open(input string) (pipeline.FrameSource, error) {
	if input == "" {
		return nil, ErrNoSource
	}
	if st, err := os.Stat(input); err == nil && st.IsDir() {
		return OpenDir(input)
	}
	return OpenFFmpeg(input)
}

// OpenCamera opens the source selected for cam.
func OpenCamera(cam domain.Camera) (pipeline.FrameSource, error) {
	src, err := Open(cam.Source())
	if err != nil {
		return nil, fmt.Errorf("camera %d: %w", cam.ID, err)
	}
	return src, nil
}
