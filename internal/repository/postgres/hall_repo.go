package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/proctor/internal/domain"
)

func (s *Store) GetHall(ctx context.Context, id int64) (domain.Hall, error) {
	var h domain.Hall
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, floor, detection_enabled FROM halls WHERE id = $1`, id,
	).Scan(&h.ID, &h.Name, &h.Floor, &h.DetectionEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Hall{}, fmt.Errorf("hall %d: %w", id, ErrNotFound)
	}
	return h, err
}

func (s *Store) ListHalls(ctx context.Context) ([]domain.Hall, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, floor, detection_enabled FROM halls ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hall
	for rows.Next() {
		var h domain.Hall
		if err := rows.Scan(&h.ID, &h.Name, &h.Floor, &h.DetectionEnabled); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CreateHall inserts a hall and returns it with its id.
func (s *Store) CreateHall(ctx context.Context, h domain.Hall) (domain.Hall, error) {
	if h.Floor == "" {
		h.Floor = "Unknown"
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO halls (name, floor, detection_enabled) VALUES ($1, $2, $3) RETURNING id`,
		h.Name, h.Floor, h.DetectionEnabled,
	).Scan(&h.ID)
	return h, err
}

// EnabledHallIDs is the cold-start source for the hall detection flags.
func (s *Store) EnabledHallIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM halls WHERE detection_enabled ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetHallDetection persists the hall's detection flag.
func (s *Store) SetHallDetection(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE halls SET detection_enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update hall: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("hall %d: %w", id, ErrNotFound)
	}
	return nil
}

const cameraColumns = `id, name, COALESCE(hall_id, 0), stream, video_path, is_live`

func scanCamera(row interface{ Scan(...any) error }) (domain.Camera, error) {
	var c domain.Camera
	err := row.Scan(&c.ID, &c.Name, &c.HallID, &c.Stream, &c.VideoPath, &c.IsLive)
	return c, err
}

func (s *Store) GetCamera(ctx context.Context, id int64) (domain.Camera, error) {
	c, err := scanCamera(s.db.QueryRowContext(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Camera{}, fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *Store) ListHallCameras(ctx context.Context, hallID int64) ([]domain.Camera, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE hall_id = $1 ORDER BY id`, hallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCamera(ctx context.Context, c domain.Camera) (domain.Camera, error) {
	var hall any
	if c.HallID != 0 {
		hall = c.HallID
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO cameras (name, hall_id, stream, video_path, is_live) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Name, hall, c.Stream, c.VideoPath, c.IsLive,
	).Scan(&c.ID)
	return c, err
}
