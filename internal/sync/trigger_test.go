package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/desk"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/jira/jiratest"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/storage/sqlite"
)

type fakeTrigger struct {
	calls int
}

func (f *fakeTrigger) TriggerNow() { f.calls++ }

func newBareStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStartSyncTriggersScheduler(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	store, _, _ := newTestEngine(t, srv)

	trig := &fakeTrigger{}
	err := StartSync(context.Background(), store, trig, zap.NewNop())
	if err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	if trig.calls != 1 {
		t.Errorf("expected 1 trigger, got %d", trig.calls)
	}
}

func TestStartSyncWithoutConfigIsSilentNoop(t *testing.T) {
	store := newBareStore(t)

	trig := &fakeTrigger{}
	err := StartSync(context.Background(), store, trig, zap.NewNop())
	if err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if trig.calls != 0 {
		t.Error("trigger must not fire without an active config")
	}
}

func TestStartSyncProbeFailureBlocks(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.MyselfCode = http.StatusUnauthorized
	store, _, _ := newTestEngine(t, srv)

	trig := &fakeTrigger{}
	err := StartSync(context.Background(), store, trig, zap.NewNop())
	if err == nil {
		t.Fatal("expected probe failure to surface")
	}
	if trig.calls != 0 {
		t.Error("trigger must not fire on probe failure")
	}
}

func TestConnectionSyncsProjects(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.ProjectList = []jira.Project{{ID: "100", Key: "OPS", Name: "Operations"}}
	store, _, orch := newTestEngine(t, srv)
	ctx := context.Background()

	if err := TestConnection(ctx, store, orch); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}

	p, err := store.GetProjectByJiraKey(ctx, "OPS")
	if err != nil {
		t.Fatalf("project should have been synced: %v", err)
	}
	if p.Name != "Operations" {
		t.Errorf("unexpected project name %q", p.Name)
	}
}

func TestConnectionWithoutConfigFails(t *testing.T) {
	store := newBareStore(t)
	log := zap.NewNop()
	orch := NewOrchestrator(store, desk.New(store, log), log)

	err := TestConnection(context.Background(), store, orch)
	if !errors.Is(err, storage.ErrNoActiveConfig) {
		t.Errorf("expected ErrNoActiveConfig, got %v", err)
	}
}
