package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/proctor/internal/domain"
)

type cameraCounters struct {
	count  int64
	recent []domain.ViolationRecord // newest first
}

// StatsStore holds the live per-camera aggregates. It is shared by every
// worker and the command surface.
type StatsStore struct {
	mu    sync.RWMutex
	cams  map[int64]*cameraCounters
	limit int
}

func NewStatsStore(limit int) *StatsStore {
	if limit <= 0 {
		limit = 30
	}
	return &StatsStore{cams: make(map[int64]*cameraCounters), limit: limit}
}

// admit checks rec against the camera's recent list and, unless it is a
// duplicate, counts it and prepends it. Check and insert happen under one
// lock so concurrent candidates cannot both slip through.
func (s *StatsStore) admit(rec domain.ViolationRecord, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cams[rec.CameraID]
	if !ok {
		c = &cameraCounters{}
		s.cams[rec.CameraID] = c
	}
	for _, r := range c.recent {
		if r.Identity != rec.Identity {
			continue
		}
		diff := rec.RecordedAt.Sub(r.RecordedAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < window {
			return false
		}
	}

	c.count++
	c.recent = append([]domain.ViolationRecord{rec}, c.recent...)
	if len(c.recent) > s.limit {
		c.recent = c.recent[:s.limit]
	}
	return true
}

// Camera returns a copy of the aggregate; unknown cameras read as zero.
func (s *StatsStore) Camera(id int64) domain.CameraStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.CameraStats{CameraID: id, Violations: []domain.ViolationRecord{}}
	if c, ok := s.cams[id]; ok {
		out.Count = c.count
		out.Violations = append(out.Violations, c.recent...)
	}
	return out
}

func (s *StatsStore) Reset(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cams, id)
}

// Hall merges the aggregates of cameraIDs, newest first, capped at the
// recent-list limit.
func (s *StatsStore) Hall(hallID int64, cameraIDs []int64, active bool) domain.HallStats {
	out := domain.HallStats{
		HallID:     hallID,
		Active:     active,
		PerCamera:  make(map[int64]int64, len(cameraIDs)),
		Violations: []domain.ViolationRecord{},
	}
	for _, id := range cameraIDs {
		cs := s.Camera(id)
		out.PerCamera[id] = cs.Count
		out.Violations = append(out.Violations, cs.Violations...)
	}
	sort.SliceStable(out.Violations, func(i, j int) bool {
		return out.Violations[i].RecordedAt.After(out.Violations[j].RecordedAt)
	})
	if len(out.Violations) > s.limit {
		out.Violations = out.Violations[:s.limit]
	}
	return out
}
