package device

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/houseflow/lighthouse/internal/infrastructure/database"
	_ "github.com/houseflow/lighthouse/migrations" // registers the schema
)

// setupTestDB opens a migrated temporary database with one user, "usr-1".
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "devices.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	insertUser(t, db.DB, "usr-1")
	return db.DB
}

func insertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		id, id, id+"@example.com", "x", time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("inserting user %s: %v", id, err)
	}
}

func testDevice(userID, name string) *Device {
	return &Device{
		ID:           GenerateID(),
		UserID:       userID,
		Name:         name,
		Type:         TypeLight,
		Traits:       []Trait{TraitOnOff, TraitBrightness},
		Room:         "kitchen",
		PasswordHash: "$argon2id$placeholder",
	}
}
