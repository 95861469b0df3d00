// Package jira provides the authenticated Jira REST client, the remote
// issue schema, and the ADF (Atlassian Document Format) converters used by
// the sync engine.
package jira

import "encoding/json"

// DefaultBatchSize is the page size for JQL search pagination.
const DefaultBatchSize = 100

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"` // e.g., "PROJ-123"
	Self   string `json:"self"`
	Fields Fields `json:"fields"`
}

// Fields contains the issue field values.
type Fields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"` // ADF doc or plain string
	Status      *Status         `json:"status"`
	Priority    *Priority       `json:"priority"`
	Assignee    *User           `json:"assignee"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
	Attachment  []Attachment    `json:"attachment"`
}

// Status represents a Jira workflow status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Priority represents a Jira priority.
type Priority struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User represents a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Attachment is an entry in an issue's native attachment list. Content is
// a download URL that may live outside the REST API namespace.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// Comment is a comment on an issue. Body is ADF on Jira Cloud and a plain
// string on Server/DC; both forms are handled by the harvester.
type Comment struct {
	ID      string          `json:"id"`
	Author  User            `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
}

// CommentsResponse is the response from the issue comment endpoint.
type CommentsResponse struct {
	Comments []Comment `json:"comments"`
}

// SearchResponse is the response from the JQL search endpoint.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Project represents a Jira project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Transition is an available workflow transition for an issue.
type Transition struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	To   *Status `json:"to"`
}

// TransitionsResponse is the response from the transitions endpoint.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// Document represents an ADF document: a tree of typed block nodes.
type Document struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Content []Node `json:"content"`
}

// Node represents a node in an ADF document. The node kinds the engine
// understands are paragraph, orderedList, listItem, mediaGroup, text and
// media; unknown kinds pass through untouched.
type Node struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []Node                 `json:"content,omitempty"`
}

// AttrString returns a string attribute of the node, or "" when absent.
func (n *Node) AttrString(key string) string {
	if n.Attrs == nil {
		return ""
	}
	if s, ok := n.Attrs[key].(string); ok {
		return s
	}
	return ""
}
