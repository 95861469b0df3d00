package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

var projectUpdateColumns = map[string]bool{
	"name":            true,
	"description":     true,
	"jira_key":        true,
	"jira_id":         true,
	"is_jira_project": true,
}

// GetProject returns the project with the given local ID.
func (o ops) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, name, description, jira_key, jira_id, is_jira_project
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByJiraKey returns the project linked to the given remote key.
func (o ops) GetProjectByJiraKey(ctx context.Context, key string) (*types.Project, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, name, description, jira_key, jira_id, is_jira_project
		FROM projects WHERE jira_key = ?`, key)
	return scanProject(row)
}

// CreateProject inserts a project and returns its new ID.
func (o ops) CreateProject(ctx context.Context, p *types.Project) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO projects (name, description, jira_key, jira_id, is_jira_project)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Description, nullableString(p.JiraKey), p.JiraID, p.IsJiraProject)
	if err != nil {
		return 0, fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get project id: %w", err)
	}
	p.ID = id
	return id, nil
}

// UpdateProject applies a partial column update.
func (o ops) UpdateProject(ctx context.Context, id int64, updates map[string]interface{}) error {
	set, args, err := buildSetClause(updates, projectUpdateColumns)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	args = append(args, id)

	res, err := o.q.ExecContext(ctx,
		`UPDATE projects SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
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

func scanProject(row *sql.Row) (*types.Project, error) {
	var p types.Project
	var jiraKey sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &jiraKey, &p.JiraID, &p.IsJiraProject)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	p.JiraKey = jiraKey.String
	return &p, nil
}
