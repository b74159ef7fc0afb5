package syncer

import (
	"context"
	"testing"

	errors "RProject/tools/errs"
)

type fakeReceiptSender struct {
	batches [][]ReceiptItem
	fail    error
}

func (f *fakeReceiptSender) SendReceipts(_ context.Context, _ string, items []ReceiptItem) error {
	if f.fail != nil {
		return f.fail
	}
	f.batches = append(f.batches, items)
	return nil
}

func rc(uuid, user, kind string, id int64) *Receipt {
	return &Receipt{MessageUUID: uuid, UserID: user, Type: kind, ReceiptID: id, CreateTimeMS: id}
}

func TestTrackerIngestIsIdempotent(t *testing.T) {
	tr := NewTracker("alice", &fakeReceiptSender{})
	r := rc("u1", "bob", ReceiptDelivered, 1)
	if added := tr.Ingest(r); added != 1 {
		t.Fatalf("first ingest added %d, want 1", added)
	}
	if added := tr.Ingest(r, r); added != 0 {
		t.Fatalf("replay added %d, want 0", added)
	}
}

func TestTrackerReadOutranksDelivered(t *testing.T) {
	tr := NewTracker("alice", &fakeReceiptSender{})
	tr.Ingest(rc("u1", "bob", ReceiptDelivered, 1))
	if got := tr.Status("u1", "bob"); got != ReceiptDelivered {
		t.Fatalf("status = %q, want delivered", got)
	}
	tr.Ingest(rc("u1", "bob", ReceiptRead, 2))
	if got := tr.Status("u1", "bob"); got != ReceiptRead {
		t.Fatalf("status = %q, want read", got)
	}
	// a late delivered replay never downgrades
	tr.Ingest(rc("u1", "bob", ReceiptDelivered, 3))
	if got := tr.Status("u1", "bob"); got != ReceiptRead {
		t.Fatalf("status downgraded to %q", got)
	}
}

func TestTrackerMarkSendsOnlyUnacked(t *testing.T) {
	sender := &fakeReceiptSender{}
	tr := NewTracker("alice", sender)

	if err := tr.MarkDelivered(context.Background(), "c1", 100, "u1", "u2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(sender.batches) != 1 || len(sender.batches[0]) != 2 {
		t.Fatalf("batches = %+v", sender.batches)
	}

	// replaying the same acks sends nothing
	if err := tr.MarkDelivered(context.Background(), "c1", 200, "u1", "u2"); err != nil {
		t.Fatalf("mark replay: %v", err)
	}
	if len(sender.batches) != 1 {
		t.Fatalf("replay produced a batch: %+v", sender.batches)
	}

	// read is a distinct ack kind for the same messages
	if err := tr.MarkRead(context.Background(), "c1", 300, "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(sender.batches) != 2 || sender.batches[1][0].Type != ReceiptRead {
		t.Fatalf("batches = %+v", sender.batches)
	}
}

func TestTrackerMarkFailureLeavesNothingRecorded(t *testing.T) {
	sender := &fakeReceiptSender{fail: errors.ErrTransient.WrapMsg("relay down")}
	tr := NewTracker("alice", sender)

	if err := tr.MarkDelivered(context.Background(), "c1", 100, "u1"); err == nil {
		t.Fatal("failed send did not error")
	}
	if got := tr.Status("u1", "alice"); got != "" {
		t.Fatalf("failed ack recorded locally: %q", got)
	}

	// the retry after recovery sends the ack again
	sender.fail = nil
	if err := tr.MarkDelivered(context.Background(), "c1", 200, "u1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(sender.batches) != 1 {
		t.Fatalf("retry batches = %+v", sender.batches)
	}
	if got := tr.Status("u1", "alice"); got != ReceiptDelivered {
		t.Fatalf("status after retry = %q", got)
	}
}

func TestTrackerNotifiesOncePerReceipt(t *testing.T) {
	tr := NewTracker("alice", &fakeReceiptSender{})
	var seen []string
	tr.Subscribe(func(r *Receipt) { seen = append(seen, r.MessageUUID+"/"+r.Type) })

	tr.Ingest(rc("u1", "bob", ReceiptDelivered, 1))
	tr.Ingest(rc("u1", "bob", ReceiptDelivered, 1))
	tr.Ingest(rc("u1", "bob", ReceiptRead, 2))

	if len(seen) != 2 {
		t.Fatalf("notifications = %v, want 2", seen)
	}
}

func TestTrackerRejectsUnknownTypes(t *testing.T) {
	tr := NewTracker("alice", &fakeReceiptSender{})
	if added := tr.Ingest(rc("u1", "bob", "SEEN", 1)); added != 0 {
		t.Fatalf("unknown type ingested: %d", added)
	}
}
