package syncer

import (
	"sort"
	"sync"
)

// Message is a relay-confirmed message as seen by the receiving side.
type Message struct {
	MessageUUID    string `json:"message_uuid"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Seq            int64  `json:"seq"`
	CreateTimeMS   int64  `json:"create_time_ms"`
	Payload        []byte `json:"payload"`
}

type convState struct {
	byUUID map[string]*Message
	view   []*Message
	dirty  bool
}

// Merger folds messages from every arrival path (push, pull, repair) into
// one deduplicated per-conversation view ordered by Seq. Ingesting the same
// message any number of times, from any path, yields the same view.
type Merger struct {
	mu    sync.Mutex
	convs map[string]*convState
	subs  []func(conversationID string, view []*Message)
}

func NewMerger() *Merger {
	return &Merger{convs: map[string]*convState{}}
}

// Subscribe registers a callback invoked after any ingest that changed a
// conversation, with a copy of its full ordered view.
func (mg *Merger) Subscribe(fn func(conversationID string, view []*Message)) {
	mg.mu.Lock()
	mg.subs = append(mg.subs, fn)
	mg.mu.Unlock()
}

// Ingest merges messages into their conversations. Unknown UUIDs are added,
// known ones ignored. Returns the number of messages actually added.
func (mg *Merger) Ingest(msgs ...*Message) int {
	mg.mu.Lock()
	added := 0
	changed := map[string]bool{}
	for _, m := range msgs {
		if m == nil || m.MessageUUID == "" {
			continue
		}
		cs := mg.convs[m.ConversationID]
		if cs == nil {
			cs = &convState{byUUID: map[string]*Message{}}
			mg.convs[m.ConversationID] = cs
		}
		if _, ok := cs.byUUID[m.MessageUUID]; ok {
			continue
		}
		cp := *m
		cs.byUUID[m.MessageUUID] = &cp
		cs.view = append(cs.view, &cp)
		cs.dirty = true
		changed[m.ConversationID] = true
		added++
	}
	type notice struct {
		conv string
		view []*Message
	}
	var notices []notice
	for conv := range changed {
		cs := mg.convs[conv]
		cs.sortLocked()
		notices = append(notices, notice{conv, cs.snapshotLocked()})
	}
	subs := mg.subs
	mg.mu.Unlock()

	for _, n := range notices {
		for _, fn := range subs {
			fn(n.conv, n.view)
		}
	}
	return added
}

// View returns a copy of the conversation's messages ordered by Seq
// ascending, CreateTimeMS then MessageUUID breaking ties.
func (mg *Merger) View(conversationID string) []*Message {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	cs := mg.convs[conversationID]
	if cs == nil {
		return nil
	}
	cs.sortLocked()
	return cs.snapshotLocked()
}

// MaxSeq returns the highest Seq held for the conversation, 0 when empty.
func (mg *Merger) MaxSeq(conversationID string) int64 {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	cs := mg.convs[conversationID]
	if cs == nil || len(cs.view) == 0 {
		return 0
	}
	cs.sortLocked()
	return cs.view[len(cs.view)-1].Seq
}

func (cs *convState) sortLocked() {
	if !cs.dirty {
		return
	}
	sort.Slice(cs.view, func(i, j int) bool {
		a, b := cs.view[i], cs.view[j]
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		if a.CreateTimeMS != b.CreateTimeMS {
			return a.CreateTimeMS < b.CreateTimeMS
		}
		return a.MessageUUID < b.MessageUUID
	})
	cs.dirty = false
}

func (cs *convState) snapshotLocked() []*Message {
	out := make([]*Message, len(cs.view))
	copy(out, cs.view)
	return out
}
