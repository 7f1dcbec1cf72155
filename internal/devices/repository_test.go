package devices_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hexahaven/havensync-core/internal/devices"
	"github.com/hexahaven/havensync-core/internal/infrastructure/database"
)

func openTestRepo(t *testing.T) *devices.SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "devices_test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return devices.NewSQLiteRepository(db.DB)
}

func TestCreateAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := &devices.Record{DeviceID: "hexa5chn-a1b2c3", UserID: "user-1", Name: "Living Room"}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("Create() should generate an ID")
	}

	got, err := repo.GetByDeviceID(ctx, "hexa5chn-a1b2c3")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.UserID != "user-1" || got.Name != "Living Room" {
		t.Errorf("record = %+v, want user-1/Living Room", got)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := &devices.Record{DeviceID: "hexa3chn-x", UserID: "user-1", Name: "A"}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := &devices.Record{DeviceID: "hexa3chn-x", UserID: "user-2", Name: "B"}
	if err := repo.Create(ctx, dup); !errors.Is(err, devices.ErrDuplicate) {
		t.Errorf("Create() duplicate error = %v, want ErrDuplicate", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetByDeviceID(context.Background(), "missing")
	if !errors.Is(err, devices.ErrNotFound) {
		t.Errorf("GetByDeviceID() error = %v, want ErrNotFound", err)
	}
}

func TestListByUser(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	seed := []devices.Record{
		{DeviceID: "dev-a", UserID: "user-1", Name: "A"},
		{DeviceID: "dev-b", UserID: "user-1", Name: "B"},
		{DeviceID: "dev-c", UserID: "user-2", Name: "C"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListByUser() returned %d records, want 2", len(got))
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d records, want 3", len(all))
	}
}

func TestRenameAndDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := &devices.Record{DeviceID: "dev-a", UserID: "user-1", Name: "Old"}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Rename(ctx, "dev-a", "New"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	got, _ := repo.GetByDeviceID(ctx, "dev-a")
	if got.Name != "New" {
		t.Errorf("Name = %q, want New", got.Name)
	}

	if err := repo.Rename(ctx, "missing", "X"); !errors.Is(err, devices.ErrNotFound) {
		t.Errorf("Rename() missing error = %v, want ErrNotFound", err)
	}

	if err := repo.Delete(ctx, "dev-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByDeviceID(ctx, "dev-a"); !errors.Is(err, devices.ErrNotFound) {
		t.Errorf("GetByDeviceID() after delete error = %v, want ErrNotFound", err)
	}
}
