// Package types defines the local helpdesk records that the sync engine
// reads and writes. The remote (Jira) schema lives in internal/jira.
package types

import "time"

// WriteOrigin identifies where a local mutation came from. Every write to a
// ticket or project carries one explicitly; writes originating from a pull
// sync must not re-trigger the push mapper.
type WriteOrigin int

const (
	// OriginUser marks a mutation made by a user or local workflow.
	OriginUser WriteOrigin = iota
	// OriginSync marks a mutation made by the pull-sync pipeline itself.
	OriginSync
)

// PendingOwnerID is the sentinel attachment owner used when the owning
// ticket does not exist locally yet. Attachments created against it are
// re-homed in one pass once the real ticket ID is known.
const PendingOwnerID int64 = 0

// OwnerTicket is the owner entity type for ticket attachments.
const OwnerTicket = "helpdesk.ticket"

// Ticket is a local helpdesk ticket, optionally linked to a remote issue.
//
// JiraKey is non-empty exactly when IsJiraTicket is set. Linked tickets are
// created and updated by the reconciler during pull and pushed back on user
// mutation.
type Ticket struct {
	ID          int64
	Name        string
	Description string
	StageID     int64
	UserID      *int64 // assignee; nil when unassigned or unknown locally

	JiraKey       string // unique when set; empty for non-synced tickets
	JiraID        string
	JiraStatus    string
	JiraPriority  string
	JiraCreatedAt *time.Time
	IsJiraTicket  bool

	// JiraComments is the rendered HTML blob (comments + attachments panels).
	JiraComments string
	// NewJiraComment is a write-only staging field: set locally, posted to
	// the remote issue, and cleared after a successful push.
	NewJiraComment string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether the ticket is bound to a remote issue.
func (t *Ticket) Linked() bool {
	return t.IsJiraTicket && t.JiraKey != ""
}

// Project is a local project, optionally linked to a remote project.
// Same linkage invariant as Ticket.
type Project struct {
	ID            int64
	Name          string
	Description   string
	JiraKey       string
	JiraID        string
	IsJiraProject bool
}

// Linked reports whether the project is bound to a remote project.
func (p *Project) Linked() bool {
	return p.IsJiraProject && p.JiraKey != ""
}

// Stage is a helpdesk pipeline stage. Stages are auto-created during pull
// when a remote status has no local counterpart.
type Stage struct {
	ID       int64
	Name     string
	Sequence int
	TeamID   *int64
}

// Team groups stages; auto-created stages attach to an arbitrary existing team.
type Team struct {
	ID   int64
	Name string
}

// User is a local user, matched against remote assignees by email.
type User struct {
	ID    int64
	Name  string
	Email string
}

// Attachment is a downloaded binary staged for local storage.
//
// ResID may be PendingOwnerID until the owning ticket exists; the
// reconciler back-fills it in one batch pass after the upsert.
type Attachment struct {
	ID        int64
	Name      string
	Content   []byte
	MimeType  string
	ResType   string
	ResID     int64
	CreatedAt time.Time
}

// SyncConfig holds the remote connection settings. At most one config may
// be active per company (enforced by the store).
type SyncConfig struct {
	ID         int64
	Name       string
	URL        string
	Email      string
	APIToken   string
	Active     bool
	CompanyID  int64
	LastSyncAt *time.Time
}
