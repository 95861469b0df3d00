// Package desk is the single write choke point for local tickets and
// projects. Every mutation passes through here with an explicit origin;
// user-origin writes on remote-linked records invoke the registered push
// hook inside the same transaction, so a push failure rolls the local
// change back.
package desk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// Hook is invoked after a user-origin mutation of a remote-linked record,
// within the mutation's transaction. Returning an error aborts the write.
type Hook interface {
	TicketChanged(ctx context.Context, st storage.Ops, before, after *types.Ticket, updates map[string]interface{}) error
	ProjectChanged(ctx context.Context, st storage.Ops, before, after *types.Project, updates map[string]interface{}) error
}

// Service applies local mutations and dispatches the push hook.
type Service struct {
	store storage.Storage
	log   *zap.Logger
	hook  Hook
}

// New creates a Service. The hook is wired separately via SetHook since the
// push mapper needs the service as its local writer.
func New(store storage.Storage, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// SetHook registers the push hook. A nil hook disables push entirely.
func (s *Service) SetHook(h Hook) {
	s.hook = h
}

// WriteTicket applies a partial ticket update in its own transaction.
// For user-origin writes the push hook runs inside that transaction.
func (s *Service) WriteTicket(ctx context.Context, origin types.WriteOrigin, id int64, updates map[string]interface{}) error {
	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return s.WriteTicketIn(ctx, tx, origin, id, updates)
	})
}

// WriteTicketIn applies a partial ticket update on an existing handle.
// The reconciler calls this with its per-issue transaction and OriginSync;
// sync-origin writes never re-trigger the push hook.
func (s *Service) WriteTicketIn(ctx context.Context, st storage.Ops, origin types.WriteOrigin, id int64, updates map[string]interface{}) error {
	before, err := st.GetTicket(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load ticket %d: %w", id, err)
	}

	if err := st.UpdateTicket(ctx, id, updates); err != nil {
		return err
	}

	if origin == types.OriginSync || s.hook == nil {
		return nil
	}

	after, err := st.GetTicket(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload ticket %d: %w", id, err)
	}
	if !after.Linked() {
		return nil
	}

	return s.hook.TicketChanged(ctx, st, before, after, updates)
}

// CreateTicketIn inserts a ticket on an existing handle. Creation never
// triggers push: linked tickets only come into existence through pull.
func (s *Service) CreateTicketIn(ctx context.Context, st storage.Ops, origin types.WriteOrigin, t *types.Ticket) (int64, error) {
	return st.CreateTicket(ctx, t)
}

// WriteProject applies a partial project update in its own transaction.
func (s *Service) WriteProject(ctx context.Context, origin types.WriteOrigin, id int64, updates map[string]interface{}) error {
	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return s.WriteProjectIn(ctx, tx, origin, id, updates)
	})
}

// WriteProjectIn applies a partial project update on an existing handle.
func (s *Service) WriteProjectIn(ctx context.Context, st storage.Ops, origin types.WriteOrigin, id int64, updates map[string]interface{}) error {
	before, err := st.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load project %d: %w", id, err)
	}

	if err := st.UpdateProject(ctx, id, updates); err != nil {
		return err
	}

	if origin == types.OriginSync || s.hook == nil {
		return nil
	}

	after, err := st.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload project %d: %w", id, err)
	}
	if !after.Linked() {
		return nil
	}

	return s.hook.ProjectChanged(ctx, st, before, after, updates)
}
