package behavior

import (
	"sort"
	"sync"

	"github.com/xela07ax/proctor/internal/domain"
)

// TrackState is the behavioral history of one tracked person.
// It lives in a Store and is only mutated by the Engine.
type TrackState struct {
	TrackID            int
	ViolationCount     int
	ViolationStart     float64
	LastViolating      float64 // latest violating observation of the open interval
	ContinuousDuration float64
	IsViolating        bool
	EvidenceCaptured   bool
	Events             []float64 // violation start times, oldest first
}

// Store maps track ids to their state. The frame loop is the only writer,
// Report may be called from anywhere.
type Store struct {
	mu     sync.RWMutex
	tracks map[int]*TrackState
}

func NewStore() *Store {
	return &Store{tracks: make(map[int]*TrackState)}
}

// get returns the state for id, creating a zeroed entry on first sight.
func (s *Store) get(id int) *TrackState {
	st, ok := s.tracks[id]
	if !ok {
		st = &TrackState{TrackID: id}
		s.tracks[id] = st
	}
	return st
}

// Reap drops every track whose id is not in active and returns the dropped ids.
func (s *Store) Reap(active map[int]struct{}) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gone []int
	for id := range s.tracks {
		if _, ok := active[id]; !ok {
			delete(s.tracks, id)
			gone = append(gone, id)
		}
	}
	sort.Ints(gone)
	return gone
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Snapshot returns a copy of the state for id.
func (s *Store) Snapshot(id int) (TrackState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tracks[id]
	if !ok {
		return TrackState{}, false
	}
	cp := *st
	cp.Events = append([]float64(nil), st.Events...)
	return cp, true
}

// Report lists every live track ordered by id.
func (s *Store) Report() []domain.TrackReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TrackReport, 0, len(s.tracks))
	for _, st := range s.tracks {
		out = append(out, domain.TrackReport{
			TrackID:            st.TrackID,
			ViolationCount:     st.ViolationCount,
			ContinuousDuration: st.ContinuousDuration,
			EvidenceCaptured:   st.EvidenceCaptured,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}
