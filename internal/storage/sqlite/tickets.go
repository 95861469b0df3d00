package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

const ticketColumns = `id, name, description, stage_id, user_id, jira_key, jira_id,
	jira_status, jira_priority, jira_created_at, is_jira_ticket,
	jira_comments, new_jira_comment, created_at, updated_at`

var ticketUpdateColumns = map[string]bool{
	"name":             true,
	"description":      true,
	"stage_id":         true,
	"user_id":          true,
	"jira_key":         true,
	"jira_id":          true,
	"jira_status":      true,
	"jira_priority":    true,
	"jira_created_at":  true,
	"is_jira_ticket":   true,
	"jira_comments":    true,
	"new_jira_comment": true,
}

// GetTicket returns the ticket with the given local ID.
func (o ops) GetTicket(ctx context.Context, id int64) (*types.Ticket, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

// GetTicketByJiraKey returns the ticket linked to the given remote issue key.
func (o ops) GetTicketByJiraKey(ctx context.Context, key string) (*types.Ticket, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE jira_key = ?`, key)
	return scanTicket(row)
}

// CreateTicket inserts a ticket and returns its new ID.
func (o ops) CreateTicket(ctx context.Context, t *types.Ticket) (int64, error) {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	res, err := o.q.ExecContext(ctx, `
		INSERT INTO tickets (name, description, stage_id, user_id, jira_key, jira_id,
			jira_status, jira_priority, jira_created_at, is_jira_ticket,
			jira_comments, new_jira_comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, t.StageID, t.UserID, nullableString(t.JiraKey), t.JiraID,
		t.JiraStatus, t.JiraPriority, t.JiraCreatedAt, t.IsJiraTicket,
		t.JiraComments, t.NewJiraComment, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ticket: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get ticket id: %w", err)
	}
	t.ID = id
	return id, nil
}

// UpdateTicket applies a partial column update. updated_at is bumped on
// every call.
func (o ops) UpdateTicket(ctx context.Context, id int64, updates map[string]interface{}) error {
	set, args, err := buildSetClause(updates, ticketUpdateColumns)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	args = append(args, time.Now().UTC(), id)

	res, err := o.q.ExecContext(ctx,
		`UPDATE tickets SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanTicket(row *sql.Row) (*types.Ticket, error) {
	var t types.Ticket
	var userID sql.NullInt64
	var jiraKey sql.NullString
	var jiraCreated sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.StageID, &userID,
		&jiraKey, &t.JiraID, &t.JiraStatus, &t.JiraPriority, &jiraCreated,
		&t.IsJiraTicket, &t.JiraComments, &t.NewJiraComment,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	t.JiraKey = jiraKey.String
	if jiraCreated.Valid {
		ts := jiraCreated.Time.UTC()
		t.JiraCreatedAt = &ts
	}
	return &t, nil
}

// nullableString maps "" to NULL so partial unique indexes on the column
// ignore unlinked rows.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
