package sync

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/deskbridge/deskbridge/internal/jira"
)

const commentTimeFormat = "2006-01-02 15:04:05"

// renderedComment is one comment prepared for the panel: body already has
// harvested URLs stripped, attachments are the ones found in this comment.
type renderedComment struct {
	Author      string
	Created     time.Time
	Body        string
	Attachments []harvested
}

// renderPanels produces the HTML blob stored on the ticket: a comments
// panel and a deduplicated attachments panel side by side.
func renderPanels(comments []renderedComment, all []harvested) string {
	var b strings.Builder

	b.WriteString(`<div class="jira-container">`)
	b.WriteString(`<div class="jira-comments"><h3>COMMENTS</h3>`)
	for _, c := range comments {
		if strings.TrimSpace(c.Body) == "" && len(c.Attachments) == 0 {
			continue
		}
		fmt.Fprintf(&b, `<div class="jira-comment"><p class="comment-header"><strong>%s</strong><span> - %s</span></p><p class="comment-body">%s</p>`,
			html.EscapeString(c.Author),
			c.Created.Format(commentTimeFormat),
			html.EscapeString(strings.TrimSpace(c.Body)))
		for _, a := range c.Attachments {
			fmt.Fprintf(&b, `<p class="comment-attachment"><a href="%s" target="_blank">%s</a></p>`,
				a.Link, html.EscapeString(a.Name))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)

	b.WriteString(`<div class="jira-attachments"><h3>ALL ATTACHMENTS</h3>`)
	deduped := dedupe(all)
	if len(deduped) == 0 {
		b.WriteString(`<p>No attachments found</p>`)
	} else {
		b.WriteString(`<div class="attachments-list">`)
		for _, a := range deduped {
			fmt.Fprintf(&b, `<div class="attachment-item"><a href="%s" target="_blank">%s</a></div>`,
				a.Link, html.EscapeString(a.Name))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div></div>`)

	return b.String()
}

// dedupe drops repeat discoveries of the same remote URL, keeping first
// occurrence order.
func dedupe(atts []harvested) []harvested {
	seen := make(map[string]bool, len(atts))
	out := make([]harvested, 0, len(atts))
	for _, a := range atts {
		key := a.URL
		if key == "" {
			key = a.Link
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// commentCreated parses a comment timestamp, falling back to now so a bad
// timestamp never drops the comment.
func commentCreated(ts string) time.Time {
	t, err := jira.ParseTime(ts)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
