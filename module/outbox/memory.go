package outbox

import (
	"context"
	"sort"
	"sync"

	errors "RProject/tools/errs"
)

// MemStore is the in-memory Store used by tests and by callers that accept
// losing the queue on restart.
type MemStore struct {
	mu   sync.Mutex
	msgs map[string]*Message
}

func NewMemStore() *MemStore {
	return &MemStore{msgs: make(map[string]*Message)}
}

func (s *MemStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[m.MessageUUID]; ok {
		return errors.ErrRecordExists.WrapMsg("duplicate enqueue", "message_uuid", m.MessageUUID)
	}
	cp := *m
	s.msgs[m.MessageUUID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, messageUUID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageUUID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) Eligible(_ context.Context, nowMS int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.msgs {
		if m.NextEligibleMS > nowMS {
			continue
		}
		switch m.State {
		case StateQueued, StateFailedRetry:
		case StateSending:
			if m.LeaseExpireMS > nowMS {
				continue
			}
		default:
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalSeq < out[j].LocalSeq })
	return out, nil
}

func (s *MemStore) AcquireLease(_ context.Context, messageUUID, token string, nowMS, expireMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageUUID]
	if !ok {
		return false, nil
	}
	switch m.State {
	case StateQueued, StateFailedRetry:
	case StateSending:
		if m.LeaseExpireMS > nowMS {
			return false, nil
		}
	default:
		return false, nil
	}
	m.State = StateSending
	m.LeaseToken = token
	m.LeaseExpireMS = expireMS
	return true, nil
}

func (s *MemStore) Remove(_ context.Context, messageUUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.msgs[messageUUID]; ok && m.LeaseToken == token {
		delete(s.msgs, messageUUID)
	}
	return nil
}

func (s *MemStore) MarkFailed(_ context.Context, messageUUID, token string, retryCount int, nextEligibleMS int64, lastError string, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageUUID]
	if !ok || m.LeaseToken != token {
		return nil
	}
	if terminal {
		m.State = StateFailedTerminal
	} else {
		m.State = StateFailedRetry
	}
	m.RetryCount = retryCount
	m.NextEligibleMS = nextEligibleMS
	m.LastError = lastError
	m.LeaseToken = ""
	m.LeaseExpireMS = 0
	return nil
}

func (s *MemStore) SoonestEligible(_ context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var soonest int64
	found := false
	for _, m := range s.msgs {
		if m.State == StateFailedTerminal {
			continue
		}
		if !found || m.NextEligibleMS < soonest {
			soonest = m.NextEligibleMS
			found = true
		}
	}
	return soonest, found, nil
}

func (s *MemStore) List(_ context.Context) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConversationID != out[j].ConversationID {
			return out[i].ConversationID < out[j].ConversationID
		}
		return out[i].LocalSeq < out[j].LocalSeq
	})
	return out, nil
}
