package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xela07ax/proctor/internal/domain"
)

// LookupIdentityName returns the student's name, or "" when the identity
// is not registered.
func (s *Store) LookupIdentityName(ctx context.Context, identity string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM students WHERE academic_id = ?`, identity).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// Students lists the roster, most violations first.
func (s *Store) Students(ctx context.Context) ([]domain.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT academic_id, name, committee, cheat_count FROM students ORDER BY cheat_count DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		var st domain.Student
		if err := rows.Scan(&st.Identity, &st.Name, &st.Committee, &st.ViolationCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertStudent registers a student or updates the name and committee.
// The violation count is left alone.
func (s *Store) UpsertStudent(ctx context.Context, st domain.Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (academic_id, name, committee) VALUES (?, ?, ?)
		ON CONFLICT (academic_id) DO UPDATE SET name = EXCLUDED.name, committee = EXCLUDED.committee`,
		st.Identity, st.Name, st.Committee)
	return err
}
