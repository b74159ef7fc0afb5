package syncer

import (
	"context"
	"database/sql"

	errors "RProject/tools/errs"
)

const cursorSchema = `
CREATE TABLE IF NOT EXISTS sync_cursor (
	conversation_id TEXT PRIMARY KEY,
	last_seq        INTEGER NOT NULL DEFAULT 0,
	last_receipt_id INTEGER NOT NULL DEFAULT 0
);`

// SQLCursorStore persists sync cursors in the same local database as the
// outbox, so one file carries all client-side durable state.
type SQLCursorStore struct {
	db *sql.DB
}

func NewSQLCursorStore(db *sql.DB) (*SQLCursorStore, error) {
	if _, err := db.Exec(cursorSchema); err != nil {
		return nil, errors.WrapMsg(err, "create sync_cursor table")
	}
	return &SQLCursorStore{db: db}, nil
}

func (s *SQLCursorStore) Get(ctx context.Context, conversationID string) (int64, int64, error) {
	var seq, receiptID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seq, last_receipt_id FROM sync_cursor WHERE conversation_id = ?`,
		conversationID).Scan(&seq, &receiptID)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, errors.WrapMsg(err, "read cursor", "conv", conversationID)
	}
	return seq, receiptID, nil
}

// Advance is forward-only: a lower value than what is stored is ignored.
func (s *SQLCursorStore) Advance(ctx context.Context, conversationID string, seq, receiptID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_cursor (conversation_id, last_seq, last_receipt_id)
VALUES (?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	last_seq        = MAX(last_seq, excluded.last_seq),
	last_receipt_id = MAX(last_receipt_id, excluded.last_receipt_id)`,
		conversationID, seq, receiptID)
	if err != nil {
		return errors.WrapMsg(err, "advance cursor", "conv", conversationID)
	}
	return nil
}

// MemCursorStore is an in-memory CursorStore for tests.
type MemCursorStore struct {
	seqs     map[string]int64
	receipts map[string]int64
}

func NewMemCursorStore() *MemCursorStore {
	return &MemCursorStore{seqs: map[string]int64{}, receipts: map[string]int64{}}
}

func (s *MemCursorStore) Get(_ context.Context, conversationID string) (int64, int64, error) {
	return s.seqs[conversationID], s.receipts[conversationID], nil
}

func (s *MemCursorStore) Advance(_ context.Context, conversationID string, seq, receiptID int64) error {
	if seq > s.seqs[conversationID] {
		s.seqs[conversationID] = seq
	}
	if receiptID > s.receipts[conversationID] {
		s.receipts[conversationID] = receiptID
	}
	return nil
}
