package outbox

import (
	"context"
	"sync"
	"time"

	"RProject/logger"
	errors "RProject/tools/errs"
	"RProject/tools/safe"

	"github.com/google/uuid"
)

// SendResult is the relay's answer to one accept call. Duplicate means the
// relay already held the message and returned the original assignment; the
// scheduler treats it exactly like a first success.
type SendResult struct {
	ServerSeq        int64
	ServerReceivedMS int64
	Duplicate        bool
}

// Sender performs the accept call against the relay.
type Sender interface {
	Send(ctx context.Context, m *Message) (*SendResult, error)
}

type SchedulerConfig struct {
	// AttemptTimeout bounds one accept call; backoff only governs when the
	// next attempt may start, this governs when a stuck one is abandoned.
	AttemptTimeout time.Duration
	// LeaseTTL bounds how long a SENDING record stays owned; after expiry
	// the record is eligible again (crash recovery relies on the relay's
	// accept idempotency).
	LeaseTTL time.Duration
}

// Scheduler drives the outbox: selects eligible records, serializes sends in
// LocalSeq order, applies the backoff table, and reschedules itself to the
// soonest future eligibility. One scheduling pass runs at a time per
// instance; the in-progress state is explicit on the instance, not a global.
type Scheduler struct {
	store  Store
	sender Sender
	cfg    SchedulerConfig

	mu         sync.Mutex
	processing bool
	online     bool
	timer      *time.Timer

	nowFn  func() int64
	onSent func(m *Message, res *SendResult)
}

func NewScheduler(store Store, sender Sender, cfg SchedulerConfig) *Scheduler {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	return &Scheduler{
		store:  store,
		sender: sender,
		cfg:    cfg,
		nowFn:  func() int64 { return time.Now().UnixMilli() },
	}
}

// OnSent registers a callback fired after a message leaves the outbox;
// presentation code uses it to flip the message to "sent".
func (s *Scheduler) OnSent(fn func(m *Message, res *SendResult)) { s.onSent = fn }

// Enqueue persists a new QUEUED record. A duplicate MessageUUID is a logged
// no-op. Triggers a scheduling pass when online.
func (s *Scheduler) Enqueue(ctx context.Context, conversationID, recipientID string, payload []byte, localSeq int64, messageUUID string) error {
	now := s.nowFn()
	err := s.store.Insert(ctx, &Message{
		MessageUUID:    messageUUID,
		ConversationID: conversationID,
		RecipientID:    recipientID,
		Payload:        payload,
		LocalSeq:       localSeq,
		State:          StateQueued,
		NextEligibleMS: now,
		CreateTimeMS:   now,
	})
	if err != nil {
		if errors.CodeOf(err) == errors.CodeRecordExists {
			logger.Warnf("[outbox] duplicate enqueue attempt: %s", messageUUID)
			return nil
		}
		return err
	}
	if s.isOnline() {
		safe.SafeGo(func() { _ = s.ProcessQueue(context.Background()) })
	}
	return nil
}

// SetOnline flips connectivity. Going online triggers an immediate pass;
// going offline only prevents new attempts from starting, it does not cancel
// one already in flight.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()
	if online && !was {
		safe.SafeGo(func() { _ = s.ProcessQueue(context.Background()) })
	}
}

func (s *Scheduler) isOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// ProcessQueue runs one scheduling pass. Single-flight: a concurrent call
// while a pass is in progress is a no-op, as is any call while offline.
func (s *Scheduler) ProcessQueue(ctx context.Context) error {
	s.mu.Lock()
	if s.processing || !s.online {
		s.mu.Unlock()
		return nil
	}
	s.processing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
		s.scheduleNext()
	}()

	eligible, err := s.store.Eligible(ctx, s.nowFn())
	if err != nil {
		return err
	}
	for _, m := range eligible {
		// abort the remainder when connectivity drops mid-pass; the rest
		// stays queued for the next pass
		if !s.isOnline() {
			break
		}
		s.attemptSend(ctx, m)
	}
	return nil
}

func (s *Scheduler) attemptSend(ctx context.Context, m *Message) {
	now := s.nowFn()
	token := uuid.NewString()
	ok, err := s.store.AcquireLease(ctx, m.MessageUUID, token, now, now+s.cfg.LeaseTTL.Milliseconds())
	if err != nil {
		logger.Errorf("[outbox] lease acquire failed uuid=%s: %v", m.MessageUUID, err)
		return
	}
	if !ok {
		// another pass owns the record; never issue two concurrent accept
		// calls for one message
		return
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	res, sendErr := s.sender.Send(actx, m)
	cancel()

	if sendErr == nil {
		if res != nil && res.Duplicate {
			logger.Debug("[outbox] duplicate-confirmed send: " + m.MessageUUID)
		}
		if err := s.store.Remove(ctx, m.MessageUUID, token); err != nil {
			logger.Errorf("[outbox] remove after send failed uuid=%s: %v", m.MessageUUID, err)
			return
		}
		if s.onSent != nil {
			s.onSent(m, res)
		}
		return
	}

	retry := m.RetryCount + 1
	terminal := retry > MaxRetries || !errors.IsRetryable(sendErr)
	next := s.nowFn() + BackoffDelay(retry).Milliseconds()
	if terminal {
		logger.Warnf("[outbox] terminal failure uuid=%s retries=%d: %v", m.MessageUUID, retry, sendErr)
	}
	if err := s.store.MarkFailed(ctx, m.MessageUUID, token, retry, next, sendErr.Error(), terminal); err != nil {
		logger.Errorf("[outbox] mark failed errored uuid=%s: %v", m.MessageUUID, err)
	}
}

// scheduleNext arms exactly one follow-up pass timed to the soonest eligible
// record; no busy polling. A record already due (it became eligible while
// the pass was still running, or was enqueued against the single-flight
// guard) gets an immediate pass instead of stalling until the next trigger.
func (s *Scheduler) scheduleNext() {
	if !s.isOnline() {
		return
	}
	soonest, ok, err := s.store.SoonestEligible(context.Background())
	if err != nil || !ok {
		return
	}
	delay := time.Duration(soonest-s.nowFn()) * time.Millisecond
	if delay <= 0 {
		safe.SafeGo(func() { _ = s.ProcessQueue(context.Background()) })
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		_ = s.ProcessQueue(context.Background())
	})
	s.mu.Unlock()
}

// Stop disarms the follow-up timer; in-flight attempts are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
