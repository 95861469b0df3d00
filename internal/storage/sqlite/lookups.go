package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// GetStage returns the stage with the given ID.
func (o ops) GetStage(ctx context.Context, id int64) (*types.Stage, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, name, sequence, team_id FROM stages WHERE id = ?`, id)
	return scanStage(row)
}

// FindStageByName returns the lowest-sequence stage with an exact name match.
func (o ops) FindStageByName(ctx context.Context, name string) (*types.Stage, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, name, sequence, team_id FROM stages
		WHERE name = ?
		ORDER BY sequence, id
		LIMIT 1`, name)
	return scanStage(row)
}

// CreateStage inserts a stage and returns its new ID.
func (o ops) CreateStage(ctx context.Context, s *types.Stage) (int64, error) {
	if s.Sequence == 0 {
		s.Sequence = 10
	}
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO stages (name, sequence, team_id) VALUES (?, ?, ?)`,
		s.Name, s.Sequence, s.TeamID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert stage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get stage id: %w", err)
	}
	s.ID = id
	return id, nil
}

// FirstTeam returns the first helpdesk team by sequence. Auto-created stages
// attach to it.
func (o ops) FirstTeam(ctx context.Context) (*types.Team, error) {
	var t types.Team
	err := o.q.QueryRowContext(ctx,
		`SELECT id, name FROM teams ORDER BY sequence, id LIMIT 1`).
		Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load first team: %w", err)
	}
	return &t, nil
}

// FindUserByEmail returns the local user with the given email.
func (o ops) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	var u types.User
	err := o.q.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &u, nil
}

func scanStage(row *sql.Row) (*types.Stage, error) {
	var s types.Stage
	var teamID sql.NullInt64
	err := row.Scan(&s.ID, &s.Name, &s.Sequence, &teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}
	if teamID.Valid {
		s.TeamID = &teamID.Int64
	}
	return &s, nil
}
