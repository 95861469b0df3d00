package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/storage"
)

// Trigger reschedules the next background run to now. Implemented by the
// scheduler; declared here so sync does not depend on it.
type Trigger interface {
	TriggerNow()
}

// StartSync is the idempotent "sync now" action: probe connectivity, then
// collapse the next background run to immediately. It returns before any
// issue is synced; the run happens out of band. Probe failures are
// blocking errors, a missing config is a silent no-op.
func StartSync(ctx context.Context, store storage.Storage, sched Trigger, log *zap.Logger) error {
	cfg, err := store.ActiveSyncConfig(ctx)
	if errors.Is(err, storage.ErrNoActiveConfig) {
		log.Info("no active sync configuration, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	client := jira.NewClient(cfg.URL, cfg.Email, cfg.APIToken)
	status, err := client.Myself(ctx)
	if err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	if status != 200 {
		return fmt.Errorf("could not connect: status %d", status)
	}

	sched.TriggerNow()
	log.Info("sync initiated, tickets will update shortly")
	return nil
}

// TestConnection probes the remote account and, on success, also refreshes
// the project list, mirroring what a connection test is expected to prove.
func TestConnection(ctx context.Context, store storage.Storage, o *Orchestrator) error {
	cfg, err := store.ActiveSyncConfig(ctx)
	if err != nil {
		return err
	}

	client := jira.NewClient(cfg.URL, cfg.Email, cfg.APIToken)
	status, err := client.Myself(ctx)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	if status != 200 {
		return fmt.Errorf("connection failed: status %d", status)
	}

	return o.RunProjects(ctx)
}
