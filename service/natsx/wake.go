package natsx

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// WakeSignal tells a recipient's devices that new relay traffic exists and
// a pull is worth doing now instead of at the next poll tick. It carries no
// message content, only the conversation to pull.
type WakeSignal struct {
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	SentAtMS       int64  `json:"sent_at_ms"`
}

type Waker struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewWaker(url, subjectPrefix string) (*Waker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subjectPrefix == "" {
		subjectPrefix = "relay.wake"
	}
	return &Waker{nc: nc, subjectPrefix: subjectPrefix}, nil
}

// Wake publishes one signal on <prefix>.<tenant>.<user>; fire and forget.
func (w *Waker) Wake(tenant, userID, conversationID string) error {
	sig := WakeSignal{
		TenantID:       tenant,
		UserID:         userID,
		ConversationID: conversationID,
		SentAtMS:       time.Now().UnixMilli(),
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return w.nc.Publish(w.subjectPrefix+"."+tenant+"."+userID, data)
}

// SubscribeWake lets a gateway node forward wake signals to connected
// clients; handler runs on the NATS delivery goroutine.
func (w *Waker) SubscribeWake(tenant, userID string, handler func(WakeSignal)) (*nats.Subscription, error) {
	return w.nc.Subscribe(w.subjectPrefix+"."+tenant+"."+userID, func(msg *nats.Msg) {
		var sig WakeSignal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			return
		}
		handler(sig)
	})
}

func (w *Waker) Close() { w.nc.Close() }
