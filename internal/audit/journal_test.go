package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Entry(nil), entries...))
	return m.err
}

func (m *memStorage) all() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func TestJournalFlushesOnStop(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, zap.NewNop(), nil)
	j.Start()

	for i := 0; i < 250; i++ {
		j.RecordViolation(domain.ViolationRecord{ID: "v", Identity: "41210033"})
	}
	j.RecordPhone(domain.PhoneEvent{ID: "p"})
	j.RecordAttendance(domain.AttendanceRecord{Identity: "41210081"})
	j.Stop()

	entries := store.all()
	require.Len(t, entries, 252)
	assert.Equal(t, KindViolation, entries[0].Kind)
	assert.Equal(t, KindPhone, entries[250].Kind)
	assert.Equal(t, "41210081", entries[251].Attendance.Identity)

	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), batchSize)
	}
}

func TestJournalDropsAfterStop(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, zap.NewNop(), nil)
	j.Start()
	j.Stop()
	j.Stop()

	j.RecordViolation(domain.ViolationRecord{ID: "late"})
	assert.Empty(t, store.all())
}

func TestJournalStopRacesWithWriters(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, zap.NewNop(), nil)
	j.Start()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				j.RecordViolation(domain.ViolationRecord{ID: "v", Identity: "41210033"})
			}
		}()
	}
	close(start)
	require.NotPanics(t, j.Stop)
	wg.Wait()

	// everything accepted before the close was flushed
	assert.LessOrEqual(t, len(store.all()), 8*200)
}

func TestJournalSurvivesStorageErrors(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_fill"})
	j := NewJournal(store, zap.NewNop(), gauge)
	j.Start()
	j.RecordPhone(domain.PhoneEvent{ID: "p1"})
	j.Stop()

	assert.Len(t, store.all(), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
}
