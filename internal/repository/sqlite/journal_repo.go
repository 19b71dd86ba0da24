package sqlite

import (
	"context"
	"fmt"

	"github.com/xela07ax/proctor/internal/audit"
)

// WriteBatch persists one journal batch in a single transaction.
func (s *Store) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		switch e.Kind {
		case audit.KindViolation:
			v := e.Violation
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO cheating_events
				(id, camera_id, track_id, academic_id, timestamp, formatted_time, location, reason_code, details, confidence, image_path, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				v.ID, v.CameraID, v.TrackID, v.Identity, v.Timestamp, v.FormattedTime, v.Location,
				string(v.ReasonCode), v.Reason, v.Confidence, v.EvidencePath, v.RecordedAt.Format(timeLayout),
			); err != nil {
				return fmt.Errorf("sqlite: insert violation: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE students SET cheat_count = cheat_count + 1 WHERE academic_id = ?`, v.Identity); err != nil {
				return fmt.Errorf("sqlite: update student: %w", err)
			}
		case audit.KindPhone:
			p := e.Phone
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO phone_detection (id, camera_id, timestamp, formatted_time, location, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, p.CameraID, p.Timestamp, p.FormattedTime, p.Location, p.RecordedAt.Format(timeLayout),
			); err != nil {
				return fmt.Errorf("sqlite: insert phone event: %w", err)
			}
		case audit.KindAttendance:
			a := e.Attendance
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO attendance_log (academic_id, day, timestamp, formatted_time, location, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (academic_id, day) DO NOTHING`,
				a.Identity, a.RecordedAt.Format("2006-01-02"), a.Timestamp, a.RecordedAt.Format("15:04:05"),
				a.Location, a.RecordedAt.Format(timeLayout),
			); err != nil {
				return fmt.Errorf("sqlite: insert attendance: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) CountViolations(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cheating_events WHERE academic_id = ?`, identity).Scan(&n)
	return n, err
}

func (s *Store) CountAttendance(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_log WHERE academic_id = ?`, identity).Scan(&n)
	return n, err
}

func (s *Store) CountPhoneEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phone_detection`).Scan(&n)
	return n, err
}
