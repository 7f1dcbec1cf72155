package audit_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/infrastructure/database"
)

func openTestRepo(t *testing.T) *audit.SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit_test.db"),
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

	return audit.NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := &audit.Entry{
		UserID:   "user-1",
		DeviceID: "hexa5chn-a1b2c3",
		Action:   "turn_on",
		Status:   audit.StatusSuccess,
		Detail:   map[string]any{"channel": float64(3)},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Create() should generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	result, err := repo.List(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.UserID != "user-1" || got.DeviceID != "hexa5chn-a1b2c3" {
		t.Errorf("entry identity = %s/%s, want user-1/hexa5chn-a1b2c3", got.UserID, got.DeviceID)
	}
	if got.Action != "turn_on" || got.Status != audit.StatusSuccess {
		t.Errorf("entry outcome = %s/%s, want turn_on/success", got.Action, got.Status)
	}
	if got.Detail["channel"] != float64(3) {
		t.Errorf("Detail[channel] = %v, want 3", got.Detail["channel"])
	}
}

func TestList_Filters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	seed := []audit.Entry{
		{UserID: "user-1", DeviceID: "dev-a", Action: "turn_on", Status: audit.StatusSuccess},
		{UserID: "user-1", DeviceID: "dev-b", Action: "turn_off", Status: audit.StatusFailed},
		{UserID: "user-2", DeviceID: "dev-a", Action: "set_brightness", Status: audit.StatusSuccess},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter audit.Filter
		want   int
	}{
		{"by user", audit.Filter{UserID: "user-1"}, 2},
		{"by device", audit.Filter{DeviceID: "dev-a"}, 2},
		{"by action", audit.Filter{Action: "set_brightness"}, 1},
		{"by status", audit.Filter{Status: audit.StatusFailed}, 1},
		{"combined", audit.Filter{UserID: "user-1", Status: audit.StatusSuccess}, 1},
		{"no match", audit.Filter{UserID: "nobody"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("List() total = %d, want %d", result.Total, tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &audit.Entry{DeviceID: "dev-a", Action: "turn_on", Status: audit.StatusSuccess}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, audit.Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 2 || result.Total != 5 {
		t.Errorf("page = %d entries of total %d, want 2 of 5", len(result.Entries), result.Total)
	}

	result, err = repo.List(ctx, audit.Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Errorf("last page = %d entries, want 1", len(result.Entries))
	}
}
