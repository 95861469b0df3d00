package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/desk"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// rehomeLookback bounds the re-home pass to attachments created by the
// current run; older sentinel-owned strays are left alone.
const rehomeLookback = 5 * time.Minute

// reconciler turns one remote issue into local state. A fresh reconciler
// is built per run so the stage and user caches never go stale across runs.
type reconciler struct {
	store  storage.Storage
	client *jira.Client
	desk   *desk.Service
	log    *zap.Logger

	stages *stageCache
	users  *userCache
}

func newReconciler(store storage.Storage, client *jira.Client, svc *desk.Service, log *zap.Logger) *reconciler {
	return &reconciler{
		store:  store,
		client: client,
		desk:   svc,
		log:    log,
		stages: newStageCache(),
		users:  newUserCache(),
	}
}

// processIssue runs the full per-issue flow. Comment and attachment
// harvesting, the upsert and the attachment re-home all run on one
// dedicated transaction, so a failed issue rolls back its staged
// attachments too and cannot touch siblings.
func (r *reconciler) processIssue(ctx context.Context, issue *jira.Issue) error {
	fields := issue.Fields

	summary := strings.TrimSpace(fields.Summary)
	if summary == "" {
		summary = fmt.Sprintf("Ticket %s", issue.Key)
	}

	statusName := "Open"
	if fields.Status != nil && fields.Status.Name != "" {
		statusName = fields.Status.Name
	}
	stageID, err := r.resolveStage(ctx, statusName)
	if err != nil {
		return fmt.Errorf("resolve stage %q: %w", statusName, err)
	}

	var userID *int64
	if fields.Assignee != nil && fields.Assignee.EmailAddress != "" {
		userID, err = r.resolveUser(ctx, fields.Assignee.EmailAddress)
		if err != nil {
			return fmt.Errorf("resolve assignee %q: %w", fields.Assignee.EmailAddress, err)
		}
	}

	description := jira.FlattenDescription(fields.Description)

	createdAt := time.Now().UTC()
	if fields.Created != "" {
		if t, err := jira.ParseTime(fields.Created); err == nil {
			createdAt = t
		}
	}

	priority := ""
	if fields.Priority != nil {
		priority = fields.Priority.Name
	}

	return r.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		// Staged attachment records live on this transaction, so they
		// vanish with the rollback when the issue fails.
		h := newHarvester(tx, r.client, r.log)
		comments := r.fetchComments(ctx, issue.Key, h)
		r.fetchNativeAttachments(ctx, issue.Key, h)
		rendered := renderPanels(comments, h.all)

		updates := map[string]interface{}{
			"name":            summary,
			"description":     description,
			"jira_key":        issue.Key,
			"jira_id":         issue.ID,
			"jira_status":     statusName,
			"jira_priority":   priority,
			"jira_created_at": createdAt,
			"stage_id":        stageID,
			"user_id":         userID,
			"is_jira_ticket":  true,
			"jira_comments":   rendered,
		}

		var ticketID int64
		existing, err := tx.GetTicketByJiraKey(ctx, issue.Key)
		switch {
		case err == nil:
			if err := r.desk.WriteTicketIn(ctx, tx, types.OriginSync, existing.ID, updates); err != nil {
				return err
			}
			ticketID = existing.ID
		case errors.Is(err, storage.ErrNotFound):
			ticketID, err = r.desk.CreateTicketIn(ctx, tx, types.OriginSync, &types.Ticket{
				Name:          summary,
				Description:   description,
				StageID:       stageID,
				UserID:        userID,
				JiraKey:       issue.Key,
				JiraID:        issue.ID,
				JiraStatus:    statusName,
				JiraPriority:  priority,
				JiraCreatedAt: &createdAt,
				IsJiraTicket:  true,
				JiraComments:  rendered,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}

		_, err = tx.RehomeAttachments(ctx, types.OwnerTicket, ticketID,
			time.Now().UTC().Add(-rehomeLookback))
		return err
	})
}

// resolveStage maps a remote status name to a local stage, creating one
// when no stage of that name exists.
func (r *reconciler) resolveStage(ctx context.Context, name string) (int64, error) {
	if id, ok := r.stages.get(name); ok {
		return id, nil
	}

	stage, err := r.store.FindStageByName(ctx, name)
	if err == nil {
		r.stages.put(name, stage.ID)
		return stage.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	s := &types.Stage{Name: name, Sequence: 10}
	if team, err := r.store.FirstTeam(ctx); err == nil {
		s.TeamID = &team.ID
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	id, err := r.store.CreateStage(ctx, s)
	if err != nil {
		return 0, err
	}
	r.stages.put(name, id)
	return id, nil
}

// resolveUser maps an assignee email to a local user ID. "No such user"
// is cached too, so one run queries each unknown email at most once.
func (r *reconciler) resolveUser(ctx context.Context, email string) (*int64, error) {
	if id, ok := r.users.get(email); ok {
		return id, nil
	}

	user, err := r.store.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		r.users.put(email, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.users.put(email, &user.ID)
	return &user.ID, nil
}

// fetchComments pulls the comment thread, harvests attachments from ADF
// and plain bodies, and prepares comments for rendering. Fetch failures
// degrade to an empty thread; the issue still syncs.
func (r *reconciler) fetchComments(ctx context.Context, key string, h *harvester) []renderedComment {
	status, comments, err := r.client.IssueComments(ctx, key)
	if err != nil {
		r.log.Error("failed to fetch comments", zap.String("key", key), zap.Error(err))
		return nil
	}
	if status != 200 {
		r.log.Error("failed to fetch comments", zap.String("key", key), zap.Int("status", status))
		return nil
	}

	out := make([]renderedComment, 0, len(comments))
	for _, c := range comments {
		rc := renderedComment{
			Author:  c.Author.DisplayName,
			Created: commentCreated(c.Created),
		}
		if rc.Author == "" {
			rc.Author = "Unknown"
		}

		if doc := jira.ParseDocument(c.Body); doc != nil {
			rc.Body = jira.CommentText(doc)
			rc.Attachments = h.fromCommentDoc(ctx, doc, c.ID)
		} else if plain, ok := jira.PlainBody(c.Body); ok {
			rc.Body, rc.Attachments = h.fromPlainBody(ctx, plain, c.ID)
		}

		out = append(out, rc)
	}
	return out
}

// fetchNativeAttachments pulls the issue detail for its attachment list.
func (r *reconciler) fetchNativeAttachments(ctx context.Context, key string, h *harvester) {
	status, issue, err := r.client.Issue(ctx, key)
	if err != nil {
		r.log.Error("failed to fetch issue detail", zap.String("key", key), zap.Error(err))
		return
	}
	if status != 200 {
		r.log.Error("failed to fetch issue detail", zap.String("key", key), zap.Int("status", status))
		return
	}
	h.fromIssueAttachments(ctx, issue.Fields.Attachment)
}
