package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xela07ax/proctor/internal/audit"
)

// WriteBatch persists one journal batch in a single transaction. Accepted
// violations also bump the student's counter. Attendance is kept once per
// student per day.
func (s *Store) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var violations, phones, attendance [][]any
	perStudent := make(map[string]int)
	for _, e := range entries {
		switch e.Kind {
		case audit.KindViolation:
			v := e.Violation
			violations = append(violations, []any{
				v.ID, v.CameraID, v.TrackID, v.Identity, v.Timestamp, v.FormattedTime,
				v.Location, string(v.ReasonCode), v.Reason, v.Confidence, v.EvidencePath, v.RecordedAt,
			})
			perStudent[v.Identity]++
		case audit.KindPhone:
			p := e.Phone
			phones = append(phones, []any{p.ID, p.CameraID, p.Timestamp, p.FormattedTime, p.Location, p.RecordedAt})
		case audit.KindAttendance:
			a := e.Attendance
			attendance = append(attendance, []any{
				a.Identity, a.RecordedAt.Format("2006-01-02"), a.Timestamp,
				a.RecordedAt.Format("15:04:05"), a.Location, a.RecordedAt,
			})
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRows(ctx, tx, "cheating_events",
		"id, camera_id, track_id, academic_id, timestamp, formatted_time, location, reason_code, details, confidence, image_path, recorded_at",
		"ON CONFLICT (id) DO NOTHING", violations); err != nil {
		return fmt.Errorf("postgres: insert violations: %w", err)
	}
	if err := insertRows(ctx, tx, "phone_detection",
		"id, camera_id, timestamp, formatted_time, location, recorded_at",
		"ON CONFLICT (id) DO NOTHING", phones); err != nil {
		return fmt.Errorf("postgres: insert phone events: %w", err)
	}
	if err := insertRows(ctx, tx, "attendance_log",
		"academic_id, day, timestamp, formatted_time, location, recorded_at",
		"ON CONFLICT (academic_id, day) DO NOTHING", attendance); err != nil {
		return fmt.Errorf("postgres: insert attendance: %w", err)
	}
	for id, n := range perStudent {
		if _, err := tx.ExecContext(ctx,
			`UPDATE students SET cheat_count = cheat_count + $1 WHERE academic_id = $2`, n, id); err != nil {
			return fmt.Errorf("postgres: update student %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// insertRows builds one multi-row INSERT for the whole slice.
func insertRows(ctx context.Context, tx *sql.Tx, table, columns, suffix string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	numFields := len(rows[0])
	var sb strings.Builder
	vals := make([]any, 0, len(rows)*numFields)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		for j := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*numFields+j+1)
		}
		sb.WriteString(")")
		vals = append(vals, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s", table, columns, sb.String(), suffix)
	_, err := tx.ExecContext(ctx, query, vals...)
	return err
}

// CountViolations returns how many violations are stored for the identity.
func (s *Store) CountViolations(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cheating_events WHERE academic_id = $1`, identity).Scan(&n)
	return n, err
}

// CountAttendance returns how many days the identity was marked present.
func (s *Store) CountAttendance(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_log WHERE academic_id = $1`, identity).Scan(&n)
	return n, err
}
