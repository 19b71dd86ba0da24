package engine

import (
	"sort"
	"sync"

	"github.com/xela07ax/proctor/internal/domain"
)

type offenderCount struct {
	name  string
	count int
}

type hallCounts struct {
	location   string
	identities map[string]*offenderCount
}

// OffenderTracker counts accepted violations per identity within each hall
// and reports an identity once for every multiple of step it reaches.
// Reported thresholds are remembered per identity for the life of the
// process.
type OffenderTracker struct {
	mu       sync.Mutex
	step     int
	halls    map[int64]*hallCounts
	reported map[string]map[int]struct{}
}

func NewOffenderTracker(step int) *OffenderTracker {
	if step <= 0 {
		step = 3
	}
	return &OffenderTracker{
		step:     step,
		halls:    make(map[int64]*hallCounts),
		reported: make(map[string]map[int]struct{}),
	}
}

// Observe counts one accepted violation. Unknown identities are not
// tracked.
func (t *OffenderTracker) Observe(hallID int64, location, identity, name string) {
	if identity == "" || identity == domain.UnknownIdentity {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.halls[hallID]
	if !ok {
		h = &hallCounts{location: location, identities: make(map[string]*offenderCount)}
		t.halls[hallID] = h
	}
	c, ok := h.identities[identity]
	if !ok {
		c = &offenderCount{}
		h.identities[identity] = c
	}
	c.name = name
	c.count++
}

// Collect returns identities that crossed a new threshold since the last
// call. hallIDs limits the halls considered; nil means all.
//
// Only the highest crossed threshold is reported, and Count carries that
// threshold rather than the raw tally. Lower thresholds are marked as
// reported with it.
func (t *OffenderTracker) Collect(hallIDs []int64) []domain.RepeatOffender {
	t.mu.Lock()
	defer t.mu.Unlock()

	if hallIDs == nil {
		for id := range t.halls {
			hallIDs = append(hallIDs, id)
		}
	} else {
		hallIDs = append([]int64(nil), hallIDs...)
	}
	sort.Slice(hallIDs, func(i, j int) bool { return hallIDs[i] < hallIDs[j] })

	var out []domain.RepeatOffender
	for _, hid := range hallIDs {
		h, ok := t.halls[hid]
		if !ok {
			continue
		}
		ids := make([]string, 0, len(h.identities))
		for id := range h.identities {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			c := h.identities[id]
			threshold := (c.count / t.step) * t.step
			if threshold == 0 {
				continue
			}
			seen := t.reported[id]
			if seen == nil {
				seen = make(map[int]struct{})
				t.reported[id] = seen
			}
			if _, done := seen[threshold]; done {
				continue
			}
			for k := t.step; k <= threshold; k += t.step {
				seen[k] = struct{}{}
			}
			out = append(out, domain.RepeatOffender{
				Identity:     id,
				IdentityName: c.name,
				HallName:     h.location,
				Count:        threshold,
			})
		}
	}
	return out
}

// ResetHall forgets the counts of a hall. Reported thresholds are kept.
func (t *OffenderTracker) ResetHall(hallID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.halls, hallID)
}
