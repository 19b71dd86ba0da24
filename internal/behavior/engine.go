package behavior

import (
	"fmt"
	"time"

	"github.com/xela07ax/proctor/internal/domain"
)

// Rules holds the thresholds of the violation rules.
type Rules struct {
	RepeatWindow        time.Duration // sliding window for violation starts
	RepeatThreshold     int           // fire when starts in window exceed this
	ContinuousThreshold time.Duration // fire when one interval lasts at least this
}

func DefaultRules() Rules {
	return Rules{
		RepeatWindow:        10 * time.Second,
		RepeatThreshold:     3,
		ContinuousThreshold: 3 * time.Second,
	}
}

// Decision is the outcome of feeding one observation to the Engine.
type Decision struct {
	Fire       bool
	ReasonCode domain.ReasonCode
	Reason     string
}

// Engine applies the violation rules to per-track observations.
// One Engine belongs to one camera; it is not meant to be shared between
// frame loops.
type Engine struct {
	rules Rules
	store *Store
}

func NewEngine(rules Rules) *Engine {
	def := DefaultRules()
	if rules.RepeatWindow <= 0 {
		rules.RepeatWindow = def.RepeatWindow
	}
	if rules.RepeatThreshold <= 0 {
		rules.RepeatThreshold = def.RepeatThreshold
	}
	if rules.ContinuousThreshold <= 0 {
		rules.ContinuousThreshold = def.ContinuousThreshold
	}
	return &Engine{rules: rules, store: NewStore()}
}

func (e *Engine) Store() *Store { return e.store }

// Update records one observation for trackID at ts seconds since stream
// start. Timestamps for a track must not decrease.
//
// At most one Decision with Fire set is ever returned per track: once
// evidence is captured the track is silent until it is reaped.
func (e *Engine) Update(trackID int, violating bool, ts float64) Decision {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	st := e.store.get(trackID)

	window := e.rules.RepeatWindow.Seconds()
	kept := st.Events[:0]
	for _, t := range st.Events {
		if ts-t < window {
			kept = append(kept, t)
		}
	}
	st.Events = kept

	switch {
	case violating && !st.IsViolating:
		st.IsViolating = true
		st.ViolationStart = ts
		st.LastViolating = ts
		st.ViolationCount++
		st.Events = append(st.Events, ts)
	case violating:
		st.LastViolating = ts
		st.ContinuousDuration = ts - st.ViolationStart
	case st.IsViolating:
		// the interval ended at the last violating frame, not at this one
		st.IsViolating = false
		st.ContinuousDuration = st.LastViolating - st.ViolationStart
	}

	if st.EvidenceCaptured {
		return Decision{}
	}

	if n := len(st.Events); n > e.rules.RepeatThreshold {
		st.EvidenceCaptured = true
		return Decision{
			Fire:       true,
			ReasonCode: domain.ReasonRepeatedLookAround,
			Reason:     fmt.Sprintf("repeated look-around, %d times in %s", n, e.rules.RepeatWindow),
		}
	}
	if st.ContinuousDuration >= e.rules.ContinuousThreshold.Seconds() {
		st.EvidenceCaptured = true
		return Decision{
			Fire:       true,
			ReasonCode: domain.ReasonContinuousLookAround,
			Reason:     fmt.Sprintf("continuous look-around for %.1f seconds", st.ContinuousDuration),
		}
	}
	return Decision{}
}

// Reap forgets tracks that the tracker no longer reports.
func (e *Engine) Reap(active map[int]struct{}) []int {
	return e.store.Reap(active)
}

func (e *Engine) Report() []domain.TrackReport {
	return e.store.Report()
}
