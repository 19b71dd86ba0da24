package pipeline

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

// DirEvidence writes JPEG crops into a directory.
type DirEvidence struct {
	Dir     string
	Quality int
	Now     func() time.Time
}

func NewDirEvidence(dir string) *DirEvidence {
	return &DirEvidence{Dir: dir, Quality: 90, Now: time.Now}
}

func (d *DirEvidence) Save(cameraID int64, trackID int, ts float64, img image.Image) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	stamp := d.Now().Format("20060102_150405.000")
	name := fmt.Sprintf("cheat_cam%d_ID%d_%s_%06d.jpg", cameraID, trackID, stamp, int64(ts*1000))
	path := filepath.Join(d.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: d.Quality}); err != nil {
		f.Close()
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
