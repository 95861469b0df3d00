package sqlite

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/deskbridge/deskbridge/internal/types"
)

func TestAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateAttachment(ctx, &types.Attachment{
		Name:     "diagram.png",
		Content:  []byte{0x89, 'P', 'N', 'G'},
		MimeType: "image/png",
		ResType:  types.OwnerTicket,
		ResID:    42,
	})
	if err != nil {
		t.Fatalf("CreateAttachment failed: %v", err)
	}

	got, err := store.GetAttachment(ctx, id)
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if got.Name != "diagram.png" || got.MimeType != "image/png" {
		t.Errorf("unexpected attachment %+v", got)
	}
	if !bytes.Equal(got.Content, []byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("content mismatch: %v", got.Content)
	}
}

func TestRehomeAttachments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()

	// Two pending attachments inside the window, one outside, one already owned.
	for _, a := range []*types.Attachment{
		{Name: "in1.pdf", ResType: types.OwnerTicket, ResID: types.PendingOwnerID, CreatedAt: now.Add(-time.Minute)},
		{Name: "in2.pdf", ResType: types.OwnerTicket, ResID: types.PendingOwnerID, CreatedAt: now.Add(-2 * time.Minute)},
		{Name: "old.pdf", ResType: types.OwnerTicket, ResID: types.PendingOwnerID, CreatedAt: now.Add(-time.Hour)},
		{Name: "owned.pdf", ResType: types.OwnerTicket, ResID: 7, CreatedAt: now},
	} {
		if _, err := store.CreateAttachment(ctx, a); err != nil {
			t.Fatalf("CreateAttachment(%s) failed: %v", a.Name, err)
		}
	}

	moved, err := store.RehomeAttachments(ctx, types.OwnerTicket, 42, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("RehomeAttachments failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("expected 2 attachments re-homed, got %d", moved)
	}

	// The stale pending record stays on the sentinel.
	rows, err := store.UnderlyingDB().QueryContext(ctx,
		`SELECT name, res_id FROM attachments ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	want := map[string]int64{"in1.pdf": 42, "in2.pdf": 42, "old.pdf": types.PendingOwnerID, "owned.pdf": 7}
	for rows.Next() {
		var name string
		var resID int64
		if err := rows.Scan(&name, &resID); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if want[name] != resID {
			t.Errorf("%s: expected owner %d, got %d", name, want[name], resID)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
}
