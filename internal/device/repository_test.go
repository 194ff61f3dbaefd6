package device

import (
	"context"
	"errors"
	"testing"
)

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := testDevice("usr-1", "Kitchen light")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != d.Name || got.Type != TypeLight || got.Room != "kitchen" || got.UserID != "usr-1" {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Traits) != 2 || got.Traits[0] != TraitOnOff || got.Traits[1] != TraitBrightness {
		t.Errorf("Traits = %v, want [on_off brightness]", got.Traits)
	}
	if got.PasswordHash != d.PasswordHash {
		t.Error("PasswordHash not persisted")
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, d.CreatedAt)
	}
}

func TestSQLiteRepository_Errors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() error = %v, want ErrDeviceNotFound", err)
	}

	d := testDevice("usr-1", "Lamp")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	dup := testDevice("usr-1", "Other")
	dup.ID = d.ID
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}

	orphan := testDevice("ghost", "Orphan")
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrOwnerNotFound) {
		t.Errorf("orphan Create() error = %v, want ErrOwnerNotFound", err)
	}
}

func TestSQLiteRepository_ListByUserAndDelete(t *testing.T) {
	db := setupTestDB(t)
	insertUser(t, db, "usr-2")
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice("usr-1", "Porch"),
		testDevice("usr-1", "Attic"),
		testDevice("usr-2", "Garage"),
	} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
	}

	list, err := repo.ListByUser(ctx, "usr-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "Attic" || list[1].Name != "Porch" {
		t.Fatalf("ListByUser() = %v, want Attic, Porch", list)
	}

	if err := repo.Delete(ctx, list[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	list, err = repo.ListByUser(ctx, "usr-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("after delete: %d devices, want 1", len(list))
	}

	empty, err := repo.ListByUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListByUser(nobody) = %#v, want empty non-nil slice", empty)
	}
}
