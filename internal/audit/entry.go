package audit

import (
	"time"

	"github.com/xela07ax/proctor/internal/domain"
)

type Kind string

const (
	KindViolation  Kind = "violation"
	KindPhone      Kind = "phone"
	KindAttendance Kind = "attendance"
)

// Entry is one record waiting to be persisted. Exactly one payload is set,
// matching Kind.
type Entry struct {
	Kind       Kind
	Violation  *domain.ViolationRecord
	Phone      *domain.PhoneEvent
	Attendance *domain.AttendanceRecord
	QueuedAt   time.Time
}

func (e Entry) id() string {
	switch e.Kind {
	case KindViolation:
		return e.Violation.ID
	case KindPhone:
		return e.Phone.ID
	case KindAttendance:
		return e.Attendance.Identity
	}
	return ""
}
