package report

import (
	"context"
	"os"
	"strings"
)

// TextRenderer writes the report lines to a plain text file.
type TextRenderer struct {
	Dir string
}

func (TextRenderer) Name() string { return "text" }

func (t TextRenderer) Render(_ context.Context, s Summary, lines []string) (string, error) {
	path, err := artifactPath(t.Dir, s, ".txt")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
