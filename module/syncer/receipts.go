package syncer

import (
	"context"
	"sync"

	errors "RProject/tools/errs"
)

const (
	ReceiptDelivered = "DELIVERED"
	ReceiptRead      = "READ"
)

// Receipt is a relay-confirmed delivery or read acknowledgement.
type Receipt struct {
	MessageUUID  string `json:"message_uuid"`
	UserID       string `json:"user_id"`
	Type         string `json:"type"`
	ReceiptID    int64  `json:"receipt_id"`
	CreateTimeMS int64  `json:"create_time_ms"`
}

// ReceiptItem is one acknowledgement in an outgoing batch.
type ReceiptItem struct {
	MessageUUID string `json:"message_uuid"`
	Type        string `json:"type"`
}

// ReceiptSender submits acknowledgement batches to the relay.
type ReceiptSender interface {
	SendReceipts(ctx context.Context, conversationID string, items []ReceiptItem) error
}

type receiptKey struct {
	messageUUID string
	userID      string
	kind        string
}

// Tracker holds per-message acknowledgement state. Receipts are keyed
// (message, user, type): replays from any arrival path are no-ops, and a
// read never downgrades to delivered.
type Tracker struct {
	selfID string
	sender ReceiptSender

	mu   sync.Mutex
	seen map[receiptKey]*Receipt
	subs []func(r *Receipt)
}

func NewTracker(selfID string, sender ReceiptSender) *Tracker {
	return &Tracker{
		selfID: selfID,
		sender: sender,
		seen:   map[receiptKey]*Receipt{},
	}
}

// Subscribe registers a callback fired once per newly observed receipt.
func (t *Tracker) Subscribe(fn func(r *Receipt)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Ingest folds receipts from push or pull into the tracker. Returns the
// number of receipts not seen before.
func (t *Tracker) Ingest(rs ...*Receipt) int {
	t.mu.Lock()
	added := 0
	var fresh []*Receipt
	for _, r := range rs {
		if r == nil || r.MessageUUID == "" || !validReceiptType(r.Type) {
			continue
		}
		k := receiptKey{r.MessageUUID, r.UserID, r.Type}
		if _, ok := t.seen[k]; ok {
			continue
		}
		cp := *r
		t.seen[k] = &cp
		fresh = append(fresh, &cp)
		added++
	}
	subs := t.subs
	t.mu.Unlock()

	for _, r := range fresh {
		for _, fn := range subs {
			fn(r)
		}
	}
	return added
}

// MarkDelivered submits delivered acknowledgements for the given messages
// and records them locally once the relay accepts the batch.
func (t *Tracker) MarkDelivered(ctx context.Context, conversationID string, nowMS int64, messageUUIDs ...string) error {
	return t.mark(ctx, conversationID, ReceiptDelivered, nowMS, messageUUIDs)
}

// MarkRead submits read acknowledgements for the given messages.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string, nowMS int64, messageUUIDs ...string) error {
	return t.mark(ctx, conversationID, ReceiptRead, nowMS, messageUUIDs)
}

func (t *Tracker) mark(ctx context.Context, conversationID, kind string, nowMS int64, uuids []string) error {
	var items []ReceiptItem
	t.mu.Lock()
	for _, u := range uuids {
		if u == "" {
			continue
		}
		if _, ok := t.seen[receiptKey{u, t.selfID, kind}]; ok {
			continue
		}
		items = append(items, ReceiptItem{MessageUUID: u, Type: kind})
	}
	t.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	if err := t.sender.SendReceipts(ctx, conversationID, items); err != nil {
		return errors.WrapMsg(err, "send receipts", "type", kind, "count", len(items))
	}
	local := make([]*Receipt, 0, len(items))
	for _, it := range items {
		local = append(local, &Receipt{
			MessageUUID:  it.MessageUUID,
			UserID:       t.selfID,
			Type:         it.Type,
			CreateTimeMS: nowMS,
		})
	}
	t.Ingest(local...)
	return nil
}

// Status reports the highest acknowledgement observed for a message from a
// given user: "", delivered, or read.
func (t *Tracker) Status(messageUUID, userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[receiptKey{messageUUID, userID, ReceiptRead}]; ok {
		return ReceiptRead
	}
	if _, ok := t.seen[receiptKey{messageUUID, userID, ReceiptDelivered}]; ok {
		return ReceiptDelivered
	}
	return ""
}

func validReceiptType(s string) bool {
	return s == ReceiptDelivered || s == ReceiptRead
}
