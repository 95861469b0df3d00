package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/desk"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/jira/jiratest"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/storage/sqlite"
	"github.com/deskbridge/deskbridge/internal/types"
)

// newTestEngine wires a temp store, desk service and orchestrator against
// the mock server, with an active config pointing at it.
func newTestEngine(t *testing.T, srv *jiratest.Server) (*sqlite.Store, *desk.Service, *Orchestrator) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	err = store.SaveSyncConfig(ctx, &types.SyncConfig{
		Name: "mock", URL: srv.URL, Email: "t@example.com", APIToken: "tok", Active: true,
	})
	if err != nil {
		t.Fatalf("save config: %v", err)
	}

	log := zap.NewNop()
	svc := desk.New(store, log)
	return store, svc, NewOrchestrator(store, svc, log)
}

func makeIssue(key, summary, status string) jira.Issue {
	return jira.Issue{
		ID:  "id-" + key,
		Key: key,
		Fields: jira.Fields{
			Summary: summary,
			Status:  &jira.Status{Name: status},
			Created: "2024-01-15T10:30:00.000+0000",
		},
	}
}

func TestRunNoActiveConfigIsSilentNoop(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := zap.NewNop()
	orch := NewOrchestrator(store, desk.New(store, log), log)
	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestRunPaginationRequestCount(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()

	for i := 0; i < 250; i++ {
		srv.Issues = append(srv.Issues, makeIssue(fmt.Sprintf("OPS-%d", i+1), "issue", "Open"))
	}

	store, _, orch := newTestEngine(t, srv)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 250 {
		t.Errorf("expected 250 processed, got %d", result.Processed)
	}
	if result.Failed != 0 {
		t.Errorf("expected 0 failed, got %d", result.Failed)
	}
	// 250 issues at batch size 100: pages of 100, 100, 50 and no fourth
	// request.
	if srv.SearchRequests != 3 {
		t.Errorf("expected exactly 3 search requests, got %d", srv.SearchRequests)
	}

	cfg, err := store.ActiveSyncConfig(context.Background())
	if err != nil {
		t.Fatalf("ActiveSyncConfig: %v", err)
	}
	if cfg.LastSyncAt == nil {
		t.Error("expected watermark to be written")
	}
}

func TestRunCreatesTicketWithSummaryFallback(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.Issues = []jira.Issue{makeIssue("OPS-1", "", "Open")}

	store, _, orch := newTestEngine(t, srv)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	ctx := context.Background()
	ticket, err := store.GetTicketByJiraKey(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("GetTicketByJiraKey: %v", err)
	}
	if ticket.Name != "Ticket OPS-1" {
		t.Errorf("expected summary fallback, got %q", ticket.Name)
	}
	if !ticket.Linked() {
		t.Error("expected ticket to be linked")
	}

	stage, err := store.GetStage(ctx, ticket.StageID)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if stage.Name != "Open" {
		t.Errorf("expected auto-created stage 'Open', got %q", stage.Name)
	}
	if stage.Sequence != 10 {
		t.Errorf("expected sequence 10, got %d", stage.Sequence)
	}
}

func TestRunUpdatesExistingTicket(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.Issues = []jira.Issue{makeIssue("OPS-1", "new summary", "Done")}

	store, _, orch := newTestEngine(t, srv)
	ctx := context.Background()

	stageID := mustSeedStage(t, store, "Open")
	_, err := store.CreateTicket(ctx, &types.Ticket{
		Name: "old summary", StageID: stageID, JiraKey: "OPS-1", IsJiraTicket: true,
	})
	if err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	if _, err := orch.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ticket, err := store.GetTicketByJiraKey(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("GetTicketByJiraKey: %v", err)
	}
	if ticket.Name != "new summary" {
		t.Errorf("expected updated summary, got %q", ticket.Name)
	}
	if ticket.JiraStatus != "Done" {
		t.Errorf("expected status Done, got %q", ticket.JiraStatus)
	}
}

// failingStore injects a deterministic error into one issue's transaction.
type failingStore struct {
	storage.Storage
	failKey string
}

func (f *failingStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return f.Storage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(&failingTx{Transaction: tx, failKey: f.failKey})
	})
}

type failingTx struct {
	storage.Transaction
	failKey string
}

func (f *failingTx) GetTicketByJiraKey(ctx context.Context, key string) (*types.Ticket, error) {
	if key == f.failKey {
		return nil, errors.New("injected failure")
	}
	return f.Transaction.GetTicketByJiraKey(ctx, key)
}

func TestRunIssueFailureDoesNotAffectSiblings(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.Issues = []jira.Issue{
		makeIssue("OPS-1", "first", "Open"),
		makeIssue("OPS-2", "second", "Open"),
		makeIssue("OPS-3", "third", "Open"),
	}

	store, _, _ := newTestEngine(t, srv)
	log := zap.NewNop()
	wrapped := &failingStore{Storage: store, failKey: "OPS-2"}
	orch := NewOrchestrator(wrapped, desk.New(wrapped, log), log)

	ctx := context.Background()
	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if result.Processed != 3 {
		t.Errorf("expected 3 processed, got %d", result.Processed)
	}

	for _, key := range []string{"OPS-1", "OPS-3"} {
		if _, err := store.GetTicketByJiraKey(ctx, key); err != nil {
			t.Errorf("sibling %s should be committed: %v", key, err)
		}
	}
	if _, err := store.GetTicketByJiraKey(ctx, "OPS-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed issue should not exist, got %v", err)
	}
}

func TestRunFailedIssueLeavesNoStrayAttachments(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.Files["spec.pdf"] = []byte("pdf-bytes")

	failing := makeIssue("OPS-1", "doomed", "Open")
	failing.Fields.Attachment = []jira.Attachment{
		{ID: "1", Filename: "spec.pdf", MimeType: "application/pdf", Content: srv.FileURL("spec.pdf")},
	}
	srv.Issues = []jira.Issue{
		failing,
		makeIssue("OPS-2", "clean", "Open"),
	}

	store, _, _ := newTestEngine(t, srv)
	log := zap.NewNop()
	wrapped := &failingStore{Storage: store, failKey: "OPS-1"}
	orch := NewOrchestrator(wrapped, desk.New(wrapped, log), log)

	ctx := context.Background()
	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}

	// The failed issue's staged attachment rolled back with its
	// transaction: no sentinel-owned rows survive for the attachment-free
	// sibling's re-home pass to adopt.
	var count int
	err = store.UnderlyingDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attachments`).Scan(&count)
	if err != nil {
		t.Fatalf("count attachments: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no attachment records after rollback, got %d", count)
	}

	ticket, err := store.GetTicketByJiraKey(ctx, "OPS-2")
	if err != nil {
		t.Fatalf("sibling should be committed: %v", err)
	}
	err = store.UnderlyingDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attachments WHERE res_type = ? AND res_id = ?`,
		types.OwnerTicket, ticket.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count owned attachments: %v", err)
	}
	if count != 0 {
		t.Errorf("sibling without remote attachments owns %d record(s)", count)
	}
}

func TestRunSyncsProjects(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.ProjectList = []jira.Project{
		{ID: "100", Key: "OPS", Name: "Operations"},
		{ID: "101", Key: "HR", Name: "People"},
	}

	store, _, orch := newTestEngine(t, srv)
	ctx := context.Background()

	if err := orch.RunProjects(ctx); err != nil {
		t.Fatalf("RunProjects failed: %v", err)
	}

	p, err := store.GetProjectByJiraKey(ctx, "OPS")
	if err != nil {
		t.Fatalf("GetProjectByJiraKey: %v", err)
	}
	if p.Name != "Operations" || !p.Linked() {
		t.Errorf("unexpected project %+v", p)
	}

	// Re-running updates in place instead of duplicating.
	srv.ProjectList[0].Name = "Ops Renamed"
	if err := orch.RunProjects(ctx); err != nil {
		t.Fatalf("RunProjects (second) failed: %v", err)
	}
	p, err = store.GetProjectByJiraKey(ctx, "OPS")
	if err != nil {
		t.Fatalf("GetProjectByJiraKey: %v", err)
	}
	if p.Name != "Ops Renamed" {
		t.Errorf("expected renamed project, got %q", p.Name)
	}
}

func TestRunHarvestsAndRehomesAttachments(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()

	srv.Files["spec.pdf"] = []byte("pdf-bytes")
	srv.Files["photo.png"] = []byte("png-bytes")

	issue := makeIssue("OPS-1", "with attachments", "Open")
	issue.Fields.Attachment = []jira.Attachment{
		{ID: "1", Filename: "spec.pdf", MimeType: "application/pdf", Content: srv.FileURL("spec.pdf")},
	}
	srv.Issues = []jira.Issue{issue}
	srv.Comments["OPS-1"] = []jira.Comment{
		{
			ID:      "500",
			Author:  jira.User{DisplayName: "Ann"},
			Body:    json.RawMessage(fmt.Sprintf(`"see %s please"`, srv.FileURL("photo.png"))),
			Created: "2024-01-15T10:30:00.000+0000",
		},
	}

	store, _, orch := newTestEngine(t, srv)
	ctx := context.Background()

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %d", result.Failed)
	}

	ticket, err := store.GetTicketByJiraKey(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("GetTicketByJiraKey: %v", err)
	}

	// Exactly two records, both re-homed, none left at the sentinel.
	rows, err := store.UnderlyingDB().QueryContext(ctx,
		`SELECT res_id FROM attachments`)
	if err != nil {
		t.Fatalf("query attachments: %v", err)
	}
	defer rows.Close()
	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		owners = append(owners, id)
	}
	if len(owners) != 2 {
		t.Fatalf("expected 2 attachment records, got %d", len(owners))
	}
	for _, owner := range owners {
		if owner != ticket.ID {
			t.Errorf("attachment owner %d, want %d", owner, ticket.ID)
		}
	}

	// The harvested URL is stripped from the rendered comment body and the
	// panel links both attachments.
	if strings.Contains(ticket.JiraComments, srv.FileURL("photo.png")) {
		t.Error("harvested URL should be stripped from the rendered body")
	}
	if !strings.Contains(ticket.JiraComments, "photo.png") {
		t.Error("expected comment attachment link in panel")
	}
	if !strings.Contains(ticket.JiraComments, "spec.pdf") {
		t.Error("expected native attachment link in panel")
	}
	if !strings.Contains(ticket.JiraComments, "?download=true") {
		t.Error("expected download links in panel")
	}
	if strings.Contains(ticket.JiraComments, "No attachments found") {
		t.Error("placeholder should not appear when attachments exist")
	}
}

func TestRunRendersPlaceholderWithoutAttachments(t *testing.T) {
	srv := jiratest.NewServer()
	defer srv.Close()
	srv.Issues = []jira.Issue{makeIssue("OPS-1", "plain", "Open")}

	store, _, orch := newTestEngine(t, srv)
	ctx := context.Background()
	if _, err := orch.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ticket, err := store.GetTicketByJiraKey(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("GetTicketByJiraKey: %v", err)
	}
	if !strings.Contains(ticket.JiraComments, "No attachments found") {
		t.Error("expected placeholder in attachments panel")
	}
}

func mustSeedStage(t *testing.T, store *sqlite.Store, name string) int64 {
	t.Helper()
	id, err := store.CreateStage(context.Background(), &types.Stage{Name: name})
	if err != nil {
		t.Fatalf("seed stage: %v", err)
	}
	return id
}
