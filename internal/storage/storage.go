// Package storage provides the local store contract for the sync engine.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds interface and error types referenced by both the implementation and
// its consumers (internal/sync, internal/push, internal/desk, cmd).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deskbridge/deskbridge/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoActiveConfig is returned when no sync configuration is active.
// All sync entry points no-op silently on it.
var ErrNoActiveConfig = errors.New("no active sync configuration")

// Ops is the set of record operations available both on the store directly
// (autocommit) and inside a transaction.
type Ops interface {
	// Sync configuration
	ActiveSyncConfig(ctx context.Context) (*types.SyncConfig, error)
	SaveSyncConfig(ctx context.Context, cfg *types.SyncConfig) error
	SetLastSync(ctx context.Context, configID int64, at time.Time) error

	// Projects
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetProjectByJiraKey(ctx context.Context, key string) (*types.Project, error)
	CreateProject(ctx context.Context, p *types.Project) (int64, error)
	UpdateProject(ctx context.Context, id int64, updates map[string]interface{}) error

	// Tickets
	GetTicket(ctx context.Context, id int64) (*types.Ticket, error)
	GetTicketByJiraKey(ctx context.Context, key string) (*types.Ticket, error)
	CreateTicket(ctx context.Context, t *types.Ticket) (int64, error)
	UpdateTicket(ctx context.Context, id int64, updates map[string]interface{}) error

	// Stages, teams, users
	GetStage(ctx context.Context, id int64) (*types.Stage, error)
	FindStageByName(ctx context.Context, name string) (*types.Stage, error)
	CreateStage(ctx context.Context, s *types.Stage) (int64, error)
	FirstTeam(ctx context.Context) (*types.Team, error)
	FindUserByEmail(ctx context.Context, email string) (*types.User, error)

	// Attachments
	CreateAttachment(ctx context.Context, a *types.Attachment) (int64, error)
	GetAttachment(ctx context.Context, id int64) (*types.Attachment, error)
	// RehomeAttachments moves attachments of resType still owned by the
	// sentinel owner and created at or after since onto ownerID. Returns
	// the number of records moved.
	RehomeAttachments(ctx context.Context, resType string, ownerID int64, since time.Time) (int64, error)
}

// Transaction exposes Ops scoped to a single database transaction.
// Changes are invisible to other connections until commit.
type Transaction interface {
	Ops
}

// Storage is the full store contract. RunInTransaction gives each caller
// an isolated transaction handle: commit on a nil return, rollback on error
// or panic, with the handle released on all exit paths. The sync engine
// relies on this to keep one issue's failure from rolling back another's
// committed work.
type Storage interface {
	Ops

	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
}
