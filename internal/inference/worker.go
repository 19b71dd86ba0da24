// Package inference talks to the model backends: a Python worker process
// over pipes and an identity classifier over gRPC.
package inference

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxMessage bounds a single response from the worker.
const maxMessage = 64 << 20

// SafeCommand keeps the child's stderr so a crash can be explained.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// PythonWorker is a model process speaking a length-prefixed JSON protocol:
// requests go to stdin, responses come back on a private pipe (fd 3) so
// that library noise on stdout never corrupts the stream.
//
// Frame layout in both directions: [uint32 big-endian length][payload].
type PythonWorker struct {
	Name     string
	Cmd      *SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

func StartPythonWorker(name string, command []string, logger *zap.Logger) (*PythonWorker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("worker %s: empty command", name)
	}
	py := NewSafeCommand(command[0], command[1:]...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %s failed to start: %w", name, err)
	}
	// only the child holds the write end now
	w.Close()

	return &PythonWorker{
		Name:     name,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		logger:   logger.With(zap.String("mod", "pyworker"), zap.String("worker", name)),
	}, nil
}

// Communicate sends one request and waits for its response. Calls are
// serialized; the worker handles one request at a time.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkerClosed
	}

	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, w.crashed(err)
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, w.crashed(err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.crashed(err)
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxMessage {
		return nil, fmt.Errorf("worker %s: response of %d bytes exceeds limit", w.Name, respLen)
	}
	body := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, w.crashed(err)
	}
	return body, nil
}

// crashed attaches whatever the child printed to stderr.
func (w *PythonWorker) crashed(err error) error {
	if w.Cmd != nil && w.Cmd.Stderr.Len() > 0 {
		return fmt.Errorf("worker %s: %w\n%s", w.Name, err, w.Cmd.Stderr.String())
	}
	return fmt.Errorf("worker %s: %w", w.Name, err)
}

// Call encodes req, runs it and decodes the response.
func (w *PythonWorker) Call(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	raw, err := w.Communicate(payload)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Op, err)
	}
	if resp.Error != "" {
		remote := &RemoteError{Op: req.Op, Msg: resp.Error}
		if resp.RetryAfterMs > 0 {
			return nil, &ThrottleError{RetryAfter: time.Duration(resp.RetryAfterMs) * time.Millisecond, Cause: remote}
		}
		return nil, remote
	}
	return &resp, nil
}

// Close ends the worker. Closing stdin lets the child exit on its own.
func (w *PythonWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- w.Cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		w.logger.Warn("worker did not exit, killing")
		_ = w.Cmd.Process.Kill()
		return <-done
	}
}
