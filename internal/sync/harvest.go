package sync

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// attachmentURLPattern matches bare URLs in plain comment text whose last
// path segment carries a known file extension.
var attachmentURLPattern = regexp.MustCompile(`(https?://[^\s]+\.(?i:jpg|jpeg|png|gif|pdf|docx?|xlsx?|zip))`)

// harvested is one discovered attachment: the local record already exists
// (possibly sentinel-owned), link and name feed the rendered panels.
type harvested struct {
	Name string
	Link string
	URL  string
}

// harvester collects attachment candidates for a single issue from three
// sources: structured comment bodies, plain-text comment URLs, and the
// native attachment list. Download and record creation happen immediately
// so binaries are not held in memory across the issue pass; ownership is
// fixed up later by the re-home batch.
type harvester struct {
	store  storage.Ops
	client *jira.Client
	log    *zap.Logger

	all []harvested
}

func newHarvester(store storage.Ops, client *jira.Client, log *zap.Logger) *harvester {
	return &harvester{store: store, client: client, log: log}
}

// fromCommentDoc walks a structured comment body for media nodes. Returns
// the attachments scoped to this comment; they are also appended to the
// issue-wide list.
func (h *harvester) fromCommentDoc(ctx context.Context, doc *jira.Document, commentID string) []harvested {
	var found []harvested
	for i := range doc.Content {
		block := &doc.Content[i]
		switch block.Type {
		case "mediaGroup", "attachment", "file", "media":
		default:
			continue
		}
		for j := range block.Content {
			item := &block.Content[j]
			if item.Type != "media" && item.Type != "file" {
				continue
			}
			url := item.AttrString("url")
			if url == "" {
				continue
			}
			name := item.AttrString("name")
			if name == "" {
				name = fmt.Sprintf("attachment_%s", commentID)
			}
			if att, ok := h.download(ctx, url, name, ""); ok {
				found = append(found, att)
			}
		}
	}
	return found
}

// fromPlainBody regex-scans a plain-text comment for downloadable URLs.
// Successfully downloaded URLs are stripped out of the returned body.
func (h *harvester) fromPlainBody(ctx context.Context, body, commentID string) (string, []harvested) {
	var found []harvested
	for _, url := range attachmentURLPattern.FindAllString(body, -1) {
		name := url[strings.LastIndex(url, "/")+1:]
		if name == "" {
			name = fmt.Sprintf("attachment_%s", commentID)
		}
		att, ok := h.download(ctx, url, name, "")
		if !ok {
			continue
		}
		found = append(found, att)
		body = strings.ReplaceAll(body, url, "")
	}
	return body, found
}

// fromIssueAttachments ingests the native attachment list of the issue
// detail response. Name and MIME type come straight from the entries.
func (h *harvester) fromIssueAttachments(ctx context.Context, atts []jira.Attachment) {
	for _, a := range atts {
		if a.Content == "" {
			continue
		}
		h.download(ctx, a.Content, a.Filename, a.MimeType)
	}
}

// download fetches one URL in streaming mode and creates the local record
// with the pending-owner sentinel. Any failure logs and skips this
// attachment only.
func (h *harvester) download(ctx context.Context, url, name, mimeHint string) (harvested, bool) {
	status, rc, contentType, err := h.client.Download(ctx, url)
	if err != nil {
		h.log.Error("failed to download attachment",
			zap.String("url", url), zap.Error(err))
		return harvested{}, false
	}
	defer func() { _ = rc.Close() }()

	if status != 200 {
		h.log.Error("failed to download attachment",
			zap.String("url", url), zap.Int("status", status))
		return harvested{}, false
	}

	content, err := io.ReadAll(rc)
	if err != nil {
		h.log.Error("failed to read attachment body",
			zap.String("url", url), zap.Error(err))
		return harvested{}, false
	}

	mimeType := mimeHint
	if mimeType == "" {
		mimeType = contentType
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	rec := &types.Attachment{
		Name:     name,
		Content:  content,
		MimeType: mimeType,
		ResType:  types.OwnerTicket,
		ResID:    types.PendingOwnerID,
	}
	id, err := h.store.CreateAttachment(ctx, rec)
	if err != nil {
		h.log.Error("failed to store attachment",
			zap.String("url", url), zap.Error(err))
		return harvested{}, false
	}

	att := harvested{
		Name: name,
		Link: fmt.Sprintf("/attachments/%d?download=true", id),
		URL:  url,
	}
	h.all = append(h.all, att)
	return att, true
}
