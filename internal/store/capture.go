package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/picture"
)

// Capture is a confirmed picture stored on disk.
type Capture struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Format    picture.Format  `json:"format"`
	Facing    geometry.Facing `json:"facing"`
	Rotation  int             `json:"rotation"`
	Mirrored  bool            `json:"mirrored"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	CreatedAt time.Time       `json:"created_at"`
}

// CaptureRepository provides CRUD operations for captures.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

const captureColumns = `id, path, format, facing, rotation, mirrored, width, height, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*Capture, error) {
	c := &Capture{}
	var format, facing string

	err := row.Scan(&c.ID, &c.Path, &format, &facing, &c.Rotation, &c.Mirrored, &c.Width, &c.Height, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Format = picture.Format(format)
	f, err := geometry.ParseFacing(facing)
	if err != nil {
		return nil, err
	}
	c.Facing = f
	return c, nil
}

// Create inserts a new capture. CreatedAt is set when zero.
func (r *CaptureRepository) Create(c *Capture) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO captures (`+captureColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Path, string(c.Format), c.Facing.String(), c.Rotation, c.Mirrored, c.Width, c.Height, c.CreatedAt,
	)
	return err
}

// GetByID retrieves a capture by its ID.
func (r *CaptureRepository) GetByID(id string) (*Capture, error) {
	c, err := scanCapture(r.db.QueryRow(
		`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List retrieves captures newest first. A limit of zero or less returns all.
func (r *CaptureRepository) List(limit int) ([]*Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}

// Count returns the number of stored captures.
func (r *CaptureRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&n)
	return n, err
}

// Delete removes a capture row by its ID. The file on disk is left alone.
func (r *CaptureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
