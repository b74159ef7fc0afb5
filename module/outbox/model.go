package outbox

import "time"

// message states; a message leaves the store entirely on send success, so
// there is no SENT state here.
const (
	StateQueued         = "QUEUED"
	StateSending        = "SENDING"
	StateFailedRetry    = "FAILED_RETRYABLE"
	StateFailedTerminal = "FAILED_TERMINAL"
)

// RetryDelays is the escalating backoff table; the last entry is the hard
// cap on inter-retry delay.
var RetryDelays = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// MaxRetries is the retry ceiling; exceeding it (>10) freezes the message at
// FAILED_TERMINAL pending explicit user action.
const MaxRetries = 10

// Message is one not-yet-confirmed outbound message. The record is always
// replaced whole on update, never patched field by field, so concurrent
// readers see either the old or the new record.
type Message struct {
	MessageUUID    string
	ConversationID string
	RecipientID    string
	Payload        []byte // opaque ciphertext
	LocalSeq       int64  // client send order within the conversation

	State          string
	RetryCount     int
	NextEligibleMS int64
	CreateTimeMS   int64
	LastError      string

	// owned lease: only the pass holding LeaseToken may resolve a SENDING
	// record; an expired lease makes the record eligible again.
	LeaseToken    string
	LeaseExpireMS int64
}

// BackoffDelay returns the table delay for the given retry count.
// Delays never decrease across consecutive retries of one message.
func BackoffDelay(retryCount int) time.Duration {
	idx := retryCount
	if idx >= len(RetryDelays) {
		idx = len(RetryDelays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return RetryDelays[idx]
}
