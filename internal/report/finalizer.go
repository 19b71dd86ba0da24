package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Renderer writes one artifact for a finished session and returns its path.
// An empty path with a nil error means there was nothing to render.
type Renderer interface {
	Name() string
	Render(ctx context.Context, s Summary, lines []string) (string, error)
}

// Reporter runs every renderer on a finished session. Failures are logged
// and never propagate to the caller.
type Reporter struct {
	renderers []Renderer
	logger    *zap.Logger
}

func NewReporter(logger *zap.Logger, renderers ...Renderer) *Reporter {
	return &Reporter{
		renderers: renderers,
		logger:    logger.With(zap.String("mod", "report")),
	}
}

func (r *Reporter) Finalize(ctx context.Context, s Summary) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("report finalizer panicked", zap.Any("panic", p), zap.Int64("camera_id", s.CameraID))
		}
	}()

	lines := s.Lines()
	r.logger.Info("session report",
		zap.Int64("camera_id", s.CameraID),
		zap.String("location", s.Location),
		zap.Int("violations", len(s.Violations)),
		zap.Int("phones", len(s.Phones)),
		zap.String("text", strings.Join(lines, "\n")),
	)

	for _, rn := range r.renderers {
		path, err := rn.Render(ctx, s, lines)
		if err != nil {
			r.logger.Warn("report renderer failed", zap.String("renderer", rn.Name()), zap.Error(err))
			continue
		}
		if path != "" {
			r.logger.Info("report saved", zap.String("renderer", rn.Name()), zap.String("path", path))
		}
	}
}

// artifactPath builds <dir>/<hall>/hall_<hall>__cam<camera>__<time><ext> and
// creates the directory.
func artifactPath(dir string, s Summary, ext string) (string, error) {
	hall := fmt.Sprintf("%d", s.HallID)
	base := filepath.Join(dir, hall)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	ended := s.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	name := fmt.Sprintf("hall_%s__cam%d__%s%s", hall, s.CameraID, ended.Format("2006-01-02__15-04-05"), ext)
	return filepath.Join(base, name), nil
}
