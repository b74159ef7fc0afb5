package syncer

import (
	"context"
	"sync"
	"time"

	"RProject/logger"
	errors "RProject/tools/errs"
	"RProject/tools/safe"
)

// PullResult is one page of catch-up state from the relay.
type PullResult struct {
	Messages      []*Message `json:"messages"`
	Receipts      []*Receipt `json:"receipts"`
	LastSeq       int64      `json:"last_seq"`
	LastReceiptID int64      `json:"last_receipt_id"`
	HasMore       bool       `json:"has_more"`
}

// Puller fetches messages and receipts after the given cursor position.
type Puller interface {
	Pull(ctx context.Context, conversationID string, sinceSeq, sinceReceiptID int64, limit int) (*PullResult, error)
}

// CursorStore persists per-conversation sync positions. Advance moves
// forward only; a stale position is harmless because ingest deduplicates,
// while a position past un-ingested state would lose messages.
type CursorStore interface {
	Get(ctx context.Context, conversationID string) (seq int64, receiptID int64, err error)
	Advance(ctx context.Context, conversationID string, seq, receiptID int64) error
}

// SyncService drives pull-based catch-up: read cursor, pull a page, ingest,
// then persist the new position. The cursor moves only after ingest
// succeeds, so a failed pull replays the same page next time.
type SyncService struct {
	puller   Puller
	cursors  CursorStore
	merger   *Merger
	receipts *Tracker

	pageLimit    int
	pollInterval time.Duration

	mu       sync.Mutex
	watchers map[string]chan struct{}
}

func NewSyncService(puller Puller, cursors CursorStore, merger *Merger, receipts *Tracker) *SyncService {
	return &SyncService{
		puller:       puller,
		cursors:      cursors,
		merger:       merger,
		receipts:     receipts,
		pageLimit:    100,
		pollInterval: 30 * time.Second,
		watchers:     map[string]chan struct{}{},
	}
}

// PullOnce performs one pull page for the conversation. On any failure the
// cursor is left untouched. Returns whether the relay holds more pages.
func (s *SyncService) PullOnce(ctx context.Context, conversationID string) (bool, error) {
	sinceSeq, sinceReceiptID, err := s.cursors.Get(ctx, conversationID)
	if err != nil {
		return false, errors.WrapMsg(err, "read sync cursor", "conv", conversationID)
	}
	res, err := s.puller.Pull(ctx, conversationID, sinceSeq, sinceReceiptID, s.pageLimit)
	if err != nil {
		return false, err
	}
	s.merger.Ingest(res.Messages...)
	s.receipts.Ingest(res.Receipts...)

	seq, receiptID := res.LastSeq, res.LastReceiptID
	if seq < sinceSeq {
		seq = sinceSeq
	}
	if receiptID < sinceReceiptID {
		receiptID = sinceReceiptID
	}
	if err := s.cursors.Advance(ctx, conversationID, seq, receiptID); err != nil {
		// state is ingested; the stale cursor only causes a duplicate page
		logger.Errorf("[syncer] cursor advance failed conv=%s: %v", conversationID, err)
	}
	return res.HasMore, nil
}

// CatchUp pulls pages until the relay reports no more, typically after
// reconnecting or receiving a wake signal.
func (s *SyncService) CatchUp(ctx context.Context, conversationID string) error {
	for {
		more, err := s.PullOnce(ctx, conversationID)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Watch starts a background poll loop for the conversation. Calling it
// again for the same conversation is a no-op.
func (s *SyncService) Watch(conversationID string) {
	s.mu.Lock()
	if _, ok := s.watchers[conversationID]; ok {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.watchers[conversationID] = stop
	s.mu.Unlock()

	safe.SafeGo(func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.CatchUp(context.Background(), conversationID); err != nil {
					logger.Warnf("[syncer] poll catch-up failed conv=%s: %v", conversationID, err)
				}
			}
		}
	})
}

// Unwatch stops the poll loop for the conversation.
func (s *SyncService) Unwatch(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.watchers[conversationID]; ok {
		close(stop)
		delete(s.watchers, conversationID)
	}
}

// Close stops all poll loops.
func (s *SyncService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conv, stop := range s.watchers {
		close(stop)
		delete(s.watchers, conv)
	}
}
