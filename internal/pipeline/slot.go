package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
)

// FrameSlot holds the most recent annotated frame of a camera. Publishing
// overwrites whatever was there; readers never block the frame loop.
type FrameSlot struct {
	mu        sync.Mutex
	jpeg      []byte
	seq       uint64
	lastRead  uint64
	overwrite atomic.Uint64
}

// Publish encodes frame and replaces the current one.
func (s *FrameSlot) Publish(frame image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 80}); err != nil {
		return err
	}
	s.mu.Lock()
	if s.seq > s.lastRead {
		s.overwrite.Add(1)
	}
	s.jpeg = buf.Bytes()
	s.seq++
	s.mu.Unlock()
	return nil
}

// Latest returns the JPEG bytes of the newest frame. The slice must not be
// modified.
func (s *FrameSlot) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jpeg == nil {
		return nil, false
	}
	s.lastRead = s.seq
	return s.jpeg, true
}

// Drops counts frames replaced before anyone read them.
func (s *FrameSlot) Drops() uint64 { return s.overwrite.Load() }
