package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// maxFrameBytes bounds one MJPEG frame in the scanner buffer.
const maxFrameBytes = 16 << 20

// NewFFmpegCmd builds a decoder that writes MJPEG frames to stdout.
// Live inputs get low-latency flags.
func NewFFmpegCmd(ctx context.Context, input string) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if IsLive(input) {
		args = append(args, "-fflags", "nobuffer", "-flags", "low_delay")
		if strings.HasPrefix(input, "rtsp://") {
			args = append(args, "-rtsp_transport", "tcp")
		}
	}
	if idx, err := strconv.Atoi(input); err == nil && idx >= 0 {
		// a bare number is a local capture device
		args = append(args, "-f", "v4l2")
		input = fmt.Sprintf("/dev/video%d", idx)
	}
	args = append(args, "-i", input, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// IsLive reports whether input names a network stream rather than a file.
func IsLive(input string) bool {
	for _, p := range []string{"rtsp://", "rtmp://", "http://", "https://", "udp://", "tcp://"} {
		if strings.HasPrefix(input, p) {
			return true
		}
	}
	return false
}

// FFmpegSource reads frames from an ffmpeg child process.
type FFmpegSource struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	stderr  *bytes.Buffer

	closeOnce sync.Once
}

func OpenFFmpeg(input string) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewFFmpegCmd(ctx, input)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return newFFmpegSource(cmd, cancel, stdout, stderr), nil
}

func newFFmpegSource(cmd *exec.Cmd, cancel context.CancelFunc, stdout io.ReadCloser, stderr *bytes.Buffer) *FFmpegSource {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	sc.Split(SplitJpeg)
	return &FFmpegSource{cmd: cmd, cancel: cancel, stdout: stdout, scanner: sc, stderr: stderr}
}

// Next returns the next decoded frame, io.EOF once ffmpeg is done.
// A frame that fails to decode ends the stream like a read failure.
func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, s.withStderr(err)
		}
		return nil, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (s *FFmpegSource) withStderr(err error) error {
	if s.stderr != nil && s.stderr.Len() > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return err
}

// Close stops ffmpeg. Safe to call more than once.
func (s *FFmpegSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.stdout.Close()
		if s.cmd != nil && s.cmd.Process != nil {
			werr := s.cmd.Wait()
			var exitErr *exec.ExitError
			if werr != nil && !errors.As(werr, &exitErr) && !errors.Is(werr, context.Canceled) {
				err = werr
			}
		}
	})
	return err
}
