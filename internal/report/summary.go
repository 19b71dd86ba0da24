// Package report turns the results of a detection session into the final
// human-readable report and its rendered artifacts.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/proctor/internal/domain"
)

// Summary is everything a worker accepted during one session.
type Summary struct {
	CameraID    int64
	HallID      int64
	Location    string
	EvidenceDir string
	StartedAt   time.Time
	EndedAt     time.Time
	Frames      int
	Violations  []domain.ViolationRecord
	Phones      []domain.PhoneEvent
}

// Incident groups the violations of one identity.
type Incident struct {
	Label  string // "Name (id)"
	Events []domain.ViolationRecord
}

// Incidents groups violations by identity, ordered by label.
func (s Summary) Incidents() []Incident {
	byLabel := make(map[string][]domain.ViolationRecord)
	for _, v := range s.Violations {
		label := fmt.Sprintf("%s (%s)", v.IdentityName, v.Identity)
		byLabel[label] = append(byLabel[label], v)
	}
	out := make([]Incident, 0, len(byLabel))
	for label, events := range byLabel {
		out = append(out, Incident{Label: label, Events: events})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Lines renders the summary as report text, one line per element.
func (s Summary) Lines() []string {
	if len(s.Violations) == 0 && len(s.Phones) == 0 {
		return []string{"No events recorded."}
	}

	lines := []string{
		fmt.Sprintf("SESSION SUMMARY: %s, camera %d", s.Location, s.CameraID),
		fmt.Sprintf("   - Total cheating alerts processed: %d", len(s.Violations)),
		fmt.Sprintf("   - Total phone detections: %d", len(s.Phones)),
	}
	if s.EvidenceDir != "" {
		lines = append(lines, fmt.Sprintf("   - Images saved in: %s", s.EvidenceDir))
	}

	if incidents := s.Incidents(); len(incidents) > 0 {
		lines = append(lines, fmt.Sprintf("   - Students involved in cheating: %d", len(incidents)))
		for _, inc := range incidents {
			lines = append(lines, fmt.Sprintf("     - %s: %d incident(s)", inc.Label, len(inc.Events)))
			for _, ev := range inc.Events {
				lines = append(lines, fmt.Sprintf("         - %s -> %s", ev.FormattedTime, ev.Reason))
			}
		}
	}

	if len(s.Phones) > 0 {
		lines = append(lines, "", "Phone Detections:")
		for _, p := range s.Phones {
			lines = append(lines, fmt.Sprintf("   - %s -> Phone detected in %s", p.FormattedTime, p.Location))
		}
	}
	return lines
}
