// Package devices persists registered device records in SQLite.
//
// A record ties a hardware device ID to the owning user and a display
// name. Live channel state never touches this table; that belongs to
// the in-memory state cache.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for device record operations.
var (
	// ErrNotFound indicates no record exists for the device ID.
	ErrNotFound = errors.New("devices: not found")

	// ErrDuplicate indicates the device ID is already registered.
	ErrDuplicate = errors.New("devices: already registered")
)

// Record is one registered device.
type Record struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for device record operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	List(ctx context.Context) ([]Record, error)
	Rename(ctx context.Context, deviceID, name string) error
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository stores device records in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new device record repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new device record. The ID and timestamps are
// generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "dev-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, device_id, user_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.UserID, rec.Name,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.DeviceID)
		}
		return fmt.Errorf("inserting device record: %w", err)
	}
	return nil
}

// GetByDeviceID retrieves a record by hardware device ID.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, device_id, user_id, name, created_at, updated_at
		 FROM devices WHERE device_id = ?`, deviceID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
		}
		return nil, fmt.Errorf("querying device record: %w", err)
	}
	return rec, nil
}

// ListByUser retrieves all records owned by a user, oldest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	return r.list(ctx,
		`SELECT id, device_id, user_id, name, created_at, updated_at
		 FROM devices WHERE user_id = ? ORDER BY created_at`, userID)
}

// List retrieves all records, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	return r.list(ctx,
		`SELECT id, device_id, user_id, name, created_at, updated_at
		 FROM devices ORDER BY created_at`)
}

// Rename updates a record's display name.
func (r *SQLiteRepository) Rename(ctx context.Context, deviceID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, updated_at = ? WHERE device_id = ?`,
		name, time.Now().UTC().Format(time.RFC3339), deviceID)
	if err != nil {
		return fmt.Errorf("renaming device: %w", err)
	}
	return requireAffected(res, deviceID)
}

// Delete removes a device record.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(res, deviceID)
}

func requireAffected(res sql.Result, deviceID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device records: %w", err)
	}
	return records, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var createdAt, updatedAt string

	if err := s.Scan(&rec.ID, &rec.DeviceID, &rec.UserID, &rec.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	return &rec, nil
}
