package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

func TestTicketRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stageID := seedStage(t, store, "New")

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := store.CreateTicket(ctx, &types.Ticket{
		Name:          "Printer jam",
		Description:   "Paper stuck in tray 2",
		StageID:       stageID,
		JiraKey:       "OPS-1",
		JiraID:        "10001",
		JiraStatus:    "To Do",
		JiraPriority:  "High",
		JiraCreatedAt: &created,
		IsJiraTicket:  true,
	})
	require.NoError(t, err)

	got, err := store.GetTicketByJiraKey(ctx, "OPS-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Printer jam", got.Name)
	assert.True(t, got.Linked())
	require.NotNil(t, got.JiraCreatedAt)
	assert.True(t, got.JiraCreatedAt.Equal(created))
	assert.Nil(t, got.UserID)
}

func TestTicketNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetTicket(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetTicketByJiraKey(ctx, "OPS-404")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTicketPartial(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stageID := seedStage(t, store, "New")

	id, err := store.CreateTicket(ctx, &types.Ticket{Name: "Before", StageID: stageID})
	require.NoError(t, err)

	err = store.UpdateTicket(ctx, id, map[string]interface{}{
		"name":        "After",
		"jira_status": "In Progress",
	})
	require.NoError(t, err)

	got, err := store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)
	assert.Equal(t, "In Progress", got.JiraStatus)
	// Untouched columns survive partial updates.
	assert.Equal(t, stageID, got.StageID)
}

func TestUpdateTicketRejectsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	stageID := seedStage(t, store, "New")

	id, err := store.CreateTicket(ctx, &types.Ticket{Name: "x", StageID: stageID})
	require.NoError(t, err)

	err = store.UpdateTicket(ctx, id, map[string]interface{}{"evil; DROP TABLE": 1})
	assert.Error(t, err)
}

func TestSyncConfigActivation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ActiveSyncConfig(ctx)
	require.ErrorIs(t, err, storage.ErrNoActiveConfig)

	first := &types.SyncConfig{Name: "prod", URL: "https://x.atlassian.net", Email: "a@b.c", APIToken: "tok", Active: true}
	require.NoError(t, store.SaveSyncConfig(ctx, first))
	require.NotZero(t, first.ID, "expected ID to be set on insert")

	// Activating a second config deactivates the first.
	second := &types.SyncConfig{Name: "staging", URL: "https://y.atlassian.net", Email: "a@b.c", APIToken: "tok2", Active: true}
	require.NoError(t, store.SaveSyncConfig(ctx, second))

	active, err := store.ActiveSyncConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "staging", active.Name)
}

func TestSetLastSync(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cfg := &types.SyncConfig{Name: "prod", URL: "https://x.atlassian.net", Email: "a@b.c", APIToken: "tok", Active: true}
	require.NoError(t, store.SaveSyncConfig(ctx, cfg))

	at := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSync(ctx, cfg.ID, at))

	active, err := store.ActiveSyncConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, active.LastSyncAt)
	assert.True(t, active.LastSyncAt.Equal(at))

	err = store.SetLastSync(ctx, 9999, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindStageAndUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedStage(t, store, "Done")

	stage, err := store.FindStageByName(ctx, "Done")
	require.NoError(t, err)
	assert.Equal(t, "Done", stage.Name)

	_, err = store.FindStageByName(ctx, "Missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.UnderlyingDB().ExecContext(ctx,
		`INSERT INTO users (name, email) VALUES ('Ann', 'ann@example.com')`)
	require.NoError(t, err)

	u, err := store.FindUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	_, err = store.FindUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
