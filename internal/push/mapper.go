// Package push maps local mutations of linked records onto remote API
// calls. It runs inline on the mutating transaction via the desk hook, so
// remote failures surface to the user making the edit.
package push

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// LocalWriter is the slice of the desk service the mapper needs to clear
// the pending-comment field after a successful post. Defined here so desk
// does not import push.
type LocalWriter interface {
	WriteTicketIn(ctx context.Context, st storage.Ops, origin types.WriteOrigin, id int64, updates map[string]interface{}) error
}

// Mapper translates ticket and project field changes into remote calls.
type Mapper struct {
	writer      LocalWriter
	log         *zap.Logger
	requestSync func() // reschedules the next pull to now; may be nil

	// newClient is swapped in tests to point at a mock server.
	newClient func(cfg *types.SyncConfig) *jira.Client

	htmlPolicy *bluemonday.Policy
}

// NewMapper creates a Mapper. requestSync is invoked after a comment lands
// remotely so the posted comment shows up in the rendered panel promptly.
func NewMapper(writer LocalWriter, requestSync func(), log *zap.Logger) *Mapper {
	return &Mapper{
		writer:      writer,
		log:         log,
		requestSync: requestSync,
		newClient: func(cfg *types.SyncConfig) *jira.Client {
			return jira.NewClient(cfg.URL, cfg.Email, cfg.APIToken)
		},
		htmlPolicy: bluemonday.StrictPolicy(),
	}
}

// TicketChanged pushes a user edit of a linked ticket. The active config is
// looked up per mutation; with none active the mapper is a silent no-op.
func (m *Mapper) TicketChanged(ctx context.Context, st storage.Ops, before, after *types.Ticket, updates map[string]interface{}) error {
	cfg, err := st.ActiveSyncConfig(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveConfig) {
			return nil
		}
		return err
	}
	client := m.newClient(cfg)

	if _, ok := updates["new_jira_comment"]; ok && after.NewJiraComment != "" {
		if err := m.pushComment(ctx, st, client, after); err != nil {
			return err
		}
	}

	fields := make(map[string]interface{})
	if _, ok := updates["name"]; ok {
		fields["summary"] = after.Name
	}
	if _, ok := updates["description"]; ok {
		fields["description"] = jira.ComposeDocument(m.stripHTML(after.Description))
	}
	if len(fields) > 0 {
		status, err := client.UpdateIssueFields(ctx, after.JiraKey, fields)
		if err != nil {
			return err
		}
		if status < 200 || status > 299 {
			m.log.Warn("remote rejected field update",
				zap.String("key", after.JiraKey), zap.Int("status", status))
		}
	}

	if _, ok := updates["stage_id"]; ok {
		if err := m.pushTransition(ctx, st, client, after); err != nil {
			return err
		}
	}

	return nil
}

// pushComment posts the staged comment; a 201 clears the staging field and
// requests a fresh pull. Any other status leaves the comment staged for the
// next edit to retry.
func (m *Mapper) pushComment(ctx context.Context, st storage.Ops, client *jira.Client, t *types.Ticket) error {
	doc := jira.ComposeDocument(t.NewJiraComment)
	status, err := client.PostComment(ctx, t.JiraKey, doc)
	if err != nil {
		return err
	}
	if status != 201 {
		m.log.Warn("remote rejected comment",
			zap.String("key", t.JiraKey), zap.Int("status", status))
		return nil
	}

	err = m.writer.WriteTicketIn(ctx, st, types.OriginSync, t.ID,
		map[string]interface{}{"new_jira_comment": ""})
	if err != nil {
		return err
	}
	if m.requestSync != nil {
		m.requestSync()
	}
	return nil
}

// pushTransition maps a stage change onto a workflow transition whose
// target state name equals the stage name exactly. No match is a silent
// no-op: the remote workflow has no equivalent move.
func (m *Mapper) pushTransition(ctx context.Context, st storage.Ops, client *jira.Client, t *types.Ticket) error {
	stage, err := st.GetStage(ctx, t.StageID)
	if err != nil {
		return err
	}

	status, transitions, err := client.Transitions(ctx, t.JiraKey)
	if err != nil {
		return err
	}
	if status != 200 {
		m.log.Warn("failed to list transitions",
			zap.String("key", t.JiraKey), zap.Int("status", status))
		return nil
	}

	for _, tr := range transitions {
		if tr.To != nil && tr.To.Name == stage.Name {
			status, err := client.ApplyTransition(ctx, t.JiraKey, tr.ID)
			if err != nil {
				return err
			}
			if status < 200 || status > 299 {
				m.log.Warn("remote rejected transition",
					zap.String("key", t.JiraKey),
					zap.String("transition", tr.ID), zap.Int("status", status))
			}
			return nil
		}
	}
	return nil
}

// ProjectChanged pushes a name/description edit of a linked project. Both
// values go out together, the untouched one from the current local record.
func (m *Mapper) ProjectChanged(ctx context.Context, st storage.Ops, before, after *types.Project, updates map[string]interface{}) error {
	_, nameChanged := updates["name"]
	_, descChanged := updates["description"]
	if !nameChanged && !descChanged {
		return nil
	}

	cfg, err := st.ActiveSyncConfig(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveConfig) {
			return nil
		}
		return err
	}
	client := m.newClient(cfg)

	status, err := client.UpdateProject(ctx, after.JiraKey, after.Name, after.Description)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		m.log.Warn("remote rejected project update",
			zap.String("key", after.JiraKey), zap.Int("status", status))
	}
	return nil
}

// stripHTML reduces a rich local description to plain text: tags removed,
// entities unescaped, whitespace collapsed to single spaces.
func (m *Mapper) stripHTML(s string) string {
	stripped := m.htmlPolicy.Sanitize(s)
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}
