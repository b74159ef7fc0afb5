package outbox

import "context"

// Store is the durable queue of unconfirmed outbound messages. Implementations
// must key by MessageUUID and keep (ConversationID, LocalSeq) unique.
type Store interface {
	// Insert persists a new record; errs.ErrRecordExists when the uuid is
	// already present.
	Insert(ctx context.Context, m *Message) error

	// Get returns the record or nil.
	Get(ctx context.Context, messageUUID string) (*Message, error)

	// Eligible returns records in {QUEUED, FAILED_RETRYABLE, SENDING-with-
	// expired-lease} whose NextEligibleMS <= nowMS, ascending by LocalSeq.
	// The LocalSeq ordering is the causal-order guarantee: retries never
	// reorder a conversation's sends.
	Eligible(ctx context.Context, nowMS int64) ([]*Message, error)

	// AcquireLease CAS-transitions the record to SENDING owned by token.
	// Succeeds from QUEUED / FAILED_RETRYABLE, or from SENDING whose lease
	// expired before nowMS. Returns false when another pass owns the record.
	AcquireLease(ctx context.Context, messageUUID, token string, nowMS, expireMS int64) (bool, error)

	// Remove deletes the record on send success; only the lease owner may
	// remove. Ownership of the message moves to the relay history.
	Remove(ctx context.Context, messageUUID, token string) error

	// MarkFailed releases the lease into FAILED_RETRYABLE (or
	// FAILED_TERMINAL when terminal), recording retry bookkeeping.
	MarkFailed(ctx context.Context, messageUUID, token string, retryCount int, nextEligibleMS int64, lastError string, terminal bool) error

	// SoonestEligible returns the smallest NextEligibleMS among non-terminal
	// records, or ok=false when none remain.
	SoonestEligible(ctx context.Context) (int64, bool, error)

	// List returns every record, ascending by (ConversationID, LocalSeq);
	// read by presentation code for pending/failed display.
	List(ctx context.Context) ([]*Message, error)
}
