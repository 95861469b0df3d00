// Package sync implements the pull pipeline: paginated JQL search, a
// bounded worker pool per page, per-issue reconciliation with transaction
// isolation, attachment harvesting and comment rendering.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deskbridge/deskbridge/internal/desk"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// DefaultWorkers is the per-page worker pool size. The fixed pool doubles
// as the de facto remote rate limit.
const DefaultWorkers = 10

// searchJQL orders by update time; the pull always re-fetches everything,
// the watermark is display-only.
const searchJQL = "ORDER BY updated DESC"

// Result summarizes one pull run.
type Result struct {
	Processed int
	Failed    int
}

// Orchestrator drives full pull runs against the active configuration.
type Orchestrator struct {
	store storage.Storage
	desk  *desk.Service
	log   *zap.Logger

	BatchSize int
	Workers   int

	// newClient is swapped in tests to point at a mock server.
	newClient func(cfg *types.SyncConfig) *jira.Client
}

func NewOrchestrator(store storage.Storage, svc *desk.Service, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		desk:      svc,
		log:       log,
		BatchSize: jira.DefaultBatchSize,
		Workers:   DefaultWorkers,
		newClient: func(cfg *types.SyncConfig) *jira.Client {
			return jira.NewClient(cfg.URL, cfg.Email, cfg.APIToken)
		},
	}
}

// Run executes one full pull: project sync, then issue pages in strict
// sequence with a bounded worker pool per page. With no active config it
// is a silent no-op. Individual issue failures are logged and counted,
// never aborting the run; the watermark is written at the end either way.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cfg, err := o.store.ActiveSyncConfig(ctx)
	if errors.Is(err, storage.ErrNoActiveConfig) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	client := o.newClient(cfg)

	if err := o.syncProjects(ctx, client); err != nil {
		o.log.Error("project sync failed", zap.Error(err))
	}

	rec := newReconciler(o.store, client, o.desk, o.log)

	result := &Result{}
	var failed int64
	startAt := 0
	for {
		status, resp, err := client.SearchIssues(ctx, searchJQL, startAt, o.BatchSize)
		if err != nil {
			return result, err
		}
		if status != 200 {
			return result, fmt.Errorf("issue search returned status %d", status)
		}
		if len(resp.Issues) == 0 {
			break
		}

		// One issue per worker, end to end. Workers always return nil so
		// one issue's failure never cancels its page siblings.
		g := &errgroup.Group{}
		g.SetLimit(o.Workers)
		for i := range resp.Issues {
			issue := &resp.Issues[i]
			g.Go(func() error {
				if err := rec.processIssue(ctx, issue); err != nil {
					o.log.Error("failed to process issue",
						zap.String("key", issue.Key), zap.Error(err))
					atomic.AddInt64(&failed, 1)
				}
				return nil
			})
		}
		_ = g.Wait()

		result.Processed += len(resp.Issues)
		if result.Processed >= resp.Total {
			break
		}
		startAt += o.BatchSize
	}
	result.Failed = int(failed)

	if err := o.store.SetLastSync(ctx, cfg.ID, time.Now().UTC()); err != nil {
		o.log.Error("failed to record sync watermark", zap.Error(err))
	}

	o.log.Info("pull run finished",
		zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	return result, nil
}

// RunProjects pulls only the project list. Silent no-op without config.
func (o *Orchestrator) RunProjects(ctx context.Context) error {
	cfg, err := o.store.ActiveSyncConfig(ctx)
	if errors.Is(err, storage.ErrNoActiveConfig) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.syncProjects(ctx, o.newClient(cfg))
}

// syncProjects upserts the remote project list by key.
func (o *Orchestrator) syncProjects(ctx context.Context, client *jira.Client) error {
	status, projects, err := client.Projects(ctx)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("project list returned status %d", status)
	}

	for _, p := range projects {
		existing, err := o.store.GetProjectByJiraKey(ctx, p.Key)
		switch {
		case err == nil:
			err = o.desk.WriteProject(ctx, types.OriginSync, existing.ID, map[string]interface{}{
				"name":            p.Name,
				"jira_key":        p.Key,
				"jira_id":         p.ID,
				"is_jira_project": true,
			})
			if err != nil {
				return err
			}
		case errors.Is(err, storage.ErrNotFound):
			_, err = o.store.CreateProject(ctx, &types.Project{
				Name:          p.Name,
				JiraKey:       p.Key,
				JiraID:        p.ID,
				IsJiraProject: true,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}
