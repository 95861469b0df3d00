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

// CreateAttachment inserts an attachment record and returns its new ID.
// ResID may be the pending-owner sentinel when the owning record does not
// exist yet.
func (o ops) CreateAttachment(ctx context.Context, a *types.Attachment) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO attachments (name, content, mime_type, res_type, res_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, a.Content, a.MimeType, a.ResType, a.ResID, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert attachment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attachment id: %w", err)
	}
	a.ID = id
	return id, nil
}

// GetAttachment returns the attachment with the given ID, content included.
func (o ops) GetAttachment(ctx context.Context, id int64) (*types.Attachment, error) {
	var a types.Attachment
	err := o.q.QueryRowContext(ctx, `
		SELECT id, name, content, mime_type, res_type, res_id, created_at
		FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Content, &a.MimeType, &a.ResType, &a.ResID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan attachment: %w", err)
	}
	return &a, nil
}

// RehomeAttachments moves sentinel-owned attachments of resType created at
// or after since onto ownerID. The time window keeps the pass from adopting
// strays left behind by unrelated earlier runs.
func (o ops) RehomeAttachments(ctx context.Context, resType string, ownerID int64, since time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE attachments SET res_id = ?
		WHERE res_type = ? AND res_id = ? AND created_at >= ?`,
		ownerID, resType, types.PendingOwnerID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to re-home attachments: %w", err)
	}
	return res.RowsAffected()
}
