package sqlite

import (
	"context"
	"testing"

	"github.com/deskbridge/deskbridge/internal/types"
)

// newTestStore creates a Store backed by a temp-file database. File-based
// databases are more reliable than in-memory for connection pool scenarios,
// and t.TempDir gives each test its own isolated file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}

// seedStage creates a team and a stage attached to it, returning the stage ID.
func seedStage(t *testing.T, store *Store, name string) int64 {
	t.Helper()
	ctx := context.Background()

	team, err := store.FirstTeam(ctx)
	if err != nil {
		if _, err := store.UnderlyingDB().ExecContext(ctx,
			`INSERT INTO teams (name) VALUES ('Helpdesk')`); err != nil {
			t.Fatalf("Failed to seed team: %v", err)
		}
		team, err = store.FirstTeam(ctx)
		if err != nil {
			t.Fatalf("Failed to load seeded team: %v", err)
		}
	}

	id, err := store.CreateStage(ctx, &types.Stage{Name: name, TeamID: &team.ID})
	if err != nil {
		t.Fatalf("Failed to seed stage: %v", err)
	}
	return id
}
