package outbox

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	errors "RProject/tools/errs"
)

// memRelay mimics the relay's accept semantics: idempotent by message uuid,
// monotonic seq per conversation. Faults fire both before and after the
// commit; a post-commit fault looks like a timeout to the sender, so the
// retry must come back as a duplicate with the original seq.
type memRelay struct {
	mu      sync.Mutex
	rng     *rand.Rand
	lossPct int

	nextSeq  int64
	accepted map[string]int64 // uuid -> seq
	order    []string
}

func newMemRelay(seed int64, lossPct int) *memRelay {
	return &memRelay{
		rng:      rand.New(rand.NewSource(seed)),
		lossPct:  lossPct,
		accepted: map[string]int64{},
	}
}

func (r *memRelay) Send(_ context.Context, m *Message) (*SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rng.Intn(100) < r.lossPct {
		return nil, errors.ErrTransient.WrapMsg("request lost")
	}
	if seq, ok := r.accepted[m.MessageUUID]; ok {
		return &SendResult{ServerSeq: seq, ServerReceivedMS: 1, Duplicate: true}, nil
	}
	r.nextSeq++
	r.accepted[m.MessageUUID] = r.nextSeq
	r.order = append(r.order, m.MessageUUID)
	if r.rng.Intn(100) < r.lossPct {
		// committed but the response never arrives
		return nil, errors.ErrTransient.WrapMsg("response lost")
	}
	return &SendResult{ServerSeq: r.nextSeq, ServerReceivedMS: 1}, nil
}

func TestOutboxDeliversEverythingExactlyOnceOverLossyRelay(t *testing.T) {
	relay := newMemRelay(1, 10)
	store := NewMemStore()
	s := NewScheduler(store, relay, SchedulerConfig{})
	s.online = true
	var now int64 = 1_000_000
	s.nowFn = func() int64 { return now }
	t.Cleanup(s.Stop)

	const total = 100
	var uuids []string
	s.online = false
	for i := 1; i <= total; i++ {
		u := fmt.Sprintf("e2e-%03d", i)
		uuids = append(uuids, u)
		if err := s.Enqueue(context.Background(), "c1", "bob", []byte("ct"), int64(i), u); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	s.online = true

	for pass := 0; pass < 200; pass++ {
		if err := s.ProcessQueue(context.Background()); err != nil {
			t.Fatalf("process: %v", err)
		}
		left, _ := store.List(context.Background())
		if len(left) == 0 {
			break
		}
		if soonest, ok, _ := store.SoonestEligible(context.Background()); ok && soonest > now {
			now = soonest
		}
	}

	if left, _ := store.List(context.Background()); len(left) != 0 {
		t.Fatalf("%d messages undelivered", len(left))
	}
	if len(relay.order) != total {
		t.Fatalf("relay accepted %d messages, want %d exactly once each", len(relay.order), total)
	}
	// every message ended up with exactly one seq, no replays re-sequenced
	seen := map[int64]string{}
	for _, u := range uuids {
		seq, ok := relay.accepted[u]
		if !ok {
			t.Fatalf("message %s never accepted", u)
		}
		if prev, dup := seen[seq]; dup {
			t.Fatalf("seq %d assigned to both %s and %s", seq, prev, u)
		}
		seen[seq] = u
	}
}
