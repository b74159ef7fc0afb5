package service

import (
	"context"

	relaymodel "RProject/module/relay/model"
)

// Identity is the authenticated (user, device) pair a relay call runs as.
// Populated by the security middleware from the device-bound token.
type Identity struct {
	TenantID   string
	UserID     string
	DeviceUUID string
}

// MessageStore is the persistence surface the relay operations need.
// *store.Store is the Mongo implementation.
type MessageStore interface {
	FindByUUID(ctx context.Context, tenant, messageUUID string) (*relaymodel.RelayMessage, error)
	InsertSequenced(ctx context.Context, m *relaymodel.RelayMessage) error
	BumpMaxSeq(ctx context.Context, tenant, conv string, seq int64) error
	GetRange(ctx context.Context, tenant, conv string, startSeq, endSeq int64) ([]*relaymodel.RelayMessage, error)
	ListSince(ctx context.Context, tenant, conv string, sinceSeq int64, limit int64) ([]*relaymodel.RelayMessage, error)
	UpsertReceipt(ctx context.Context, r *relaymodel.Receipt) (bool, error)
	ListReceiptsSince(ctx context.Context, tenant, conv string, sinceID int64, limit int64) ([]*relaymodel.Receipt, error)
	DeviceActive(ctx context.Context, tenant, userID, deviceUUID string) (bool, error)
	IsMember(ctx context.Context, tenant, conv, userID string) (bool, error)
}

// Sequencer allocates per-conversation monotonic sequence numbers.
// *seq.Allocator is the Redis/Mongo implementation.
type Sequencer interface {
	Malloc(ctx context.Context, tenantID, conversationID string, need int64) (start int64, mill int64, err error)
}

// Dispatcher fans an accepted message out to downstream consumers (Kafka).
type Dispatcher interface {
	DispatchAccepted(m *relaymodel.RelayMessage) error
}

// Waker publishes a wake signal so an offline recipient pulls soon (NATS).
type Waker interface {
	Wake(tenant, userID, conversationID string) error
}

type Service struct {
	Store MessageStore
	Seq   Sequencer

	// optional post-commit hooks, best-effort
	Dispatcher Dispatcher
	Waker      Waker
}

func NewService(st MessageStore, sq Sequencer) *Service {
	return &Service{Store: st, Seq: sq}
}
