package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/houseflow/lighthouse/internal/infrastructure/database"
)

// Repository defines device persistence.
type Repository interface {
	// Create inserts a new device.
	// Returns ErrDeviceExists for a duplicate ID and ErrOwnerNotFound when
	// UserID does not name an existing user.
	Create(ctx context.Context, device *Device) error

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// ListByUser returns a user's devices ordered by name.
	ListByUser(ctx context.Context, userID string) ([]Device, error)

	// Delete returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, user_id, name, type, traits, room, password_hash, created_at"

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	traits := device.Traits
	if traits == nil {
		traits = []Trait{}
	}
	traitsJSON, err := json.Marshal(traits)
	if err != nil {
		return fmt.Errorf("marshalling traits: %w", err)
	}

	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.UserID, device.Name, string(device.Type), string(traitsJSON),
		device.Room, device.PasswordHash, device.CreatedAt.UTC().Format(time.RFC3339),
	)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return ErrDeviceExists
	case database.IsForeignKeyViolation(err):
		return ErrOwnerNotFound
	default:
		return fmt.Errorf("inserting device: %w", err)
	}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// ListByUser retrieves all devices owned by userID.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY name, id", userID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var typ, traitsJSON, createdAt string

	if err := s.Scan(&d.ID, &d.UserID, &d.Name, &typ, &traitsJSON, &d.Room, &d.PasswordHash, &createdAt); err != nil {
		return nil, err
	}

	d.Type = Type(typ)
	if err := json.Unmarshal([]byte(traitsJSON), &d.Traits); err != nil {
		return nil, fmt.Errorf("unmarshalling traits: %w", err)
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &d, nil
}
