package audit

/*
journal.go persists accepted violations, phone sightings and attendance
marks without blocking the frame loops.

- Records go through a buffered channel; a single writer drains it.
- The writer flushes every 100 entries or every 500ms, whichever first.
- Stop closes the input and waits for the final flush, so nothing queued
  before Stop is lost. Records arriving after Stop are dropped and logged.
- When the buffer is full the record is dropped and logged.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
)

const (
	defaultBuffer = 10000
	batchSize     = 100
	flushEvery    = 500 * time.Millisecond
)

// Storage is where batches end up (Postgres or SQLite).
type Storage interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Recorder is the write side used by the aggregation layer.
type Recorder interface {
	RecordViolation(rec domain.ViolationRecord)
	RecordPhone(ev domain.PhoneEvent)
	RecordAttendance(rec domain.AttendanceRecord)
}

type Journal struct {
	ch       chan Entry
	repo     Storage
	logger   *zap.Logger
	fill     prometheus.Gauge
	wg       sync.WaitGroup
	stopOnce sync.Once

	// closeMu orders sends against close(ch): senders hold it shared.
	closeMu  sync.RWMutex
	isClosed bool
}

// NewJournal creates a journal; fill may be nil.
func NewJournal(repo Storage, logger *zap.Logger, fill prometheus.Gauge) *Journal {
	return &Journal{
		ch:     make(chan Entry, defaultBuffer),
		repo:   repo,
		logger: logger.With(zap.String("mod", "journal")),
		fill:   fill,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop closes the input and waits until everything queued is written.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.closeMu.Lock()
		j.isClosed = true
		j.logger.Info("stopping journal: closing channel and flushing buffer...")
		close(j.ch)
		j.closeMu.Unlock()

		j.wg.Wait()
		j.logger.Info("journal stopped gracefully")
	})
}

func (j *Journal) RecordViolation(rec domain.ViolationRecord) {
	j.enqueue(Entry{Kind: KindViolation, Violation: &rec})
}

func (j *Journal) RecordPhone(ev domain.PhoneEvent) {
	j.enqueue(Entry{Kind: KindPhone, Phone: &ev})
}

func (j *Journal) RecordAttendance(rec domain.AttendanceRecord) {
	j.enqueue(Entry{Kind: KindAttendance, Attendance: &rec})
}

func (j *Journal) enqueue(e Entry) {
	e.QueuedAt = time.Now()

	j.closeMu.RLock()
	defer j.closeMu.RUnlock()

	if j.isClosed {
		j.logger.Warn("record dropped: journal is stopping", zap.String("kind", string(e.Kind)), zap.String("id", e.id()))
		return
	}

	select {
	case j.ch <- e:
		if j.fill != nil {
			j.fill.Set(float64(len(j.ch)))
		}
	default:
		j.logger.Error("journal_buffer_overflow", zap.String("kind", string(e.Kind)), zap.String("id", e.id()))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Entry, 0, batchSize)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// the caller's context may already be gone at shutdown
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		if j.fill != nil {
			j.fill.Set(float64(len(j.ch)))
		}
	}

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
