package model

// RelayMessage is one accepted, sequenced message. Immutable once the
// sequencer has assigned ServerSeq: repair and pull must always return the
// original assignment, never a re-sequenced copy.
type RelayMessage struct {
	TenantID       string `bson:"tenant_id" json:"tenant_id"`
	ConversationID string `bson:"conversation_id" json:"conversation_id"`
	MessageUUID    string `bson:"message_uuid" json:"message_uuid"` // client idempotency key
	ServerMsgID    string `bson:"server_msg_id" json:"server_msg_id"`
	SenderID       string `bson:"sender_id" json:"sender_id"`
	SenderDeviceID string `bson:"sender_device_id" json:"sender_device_id"`
	RecipientID    string `bson:"recipient_id" json:"recipient_id"`
	Payload        []byte `bson:"payload" json:"payload"` // opaque ciphertext blob

	Seq              int64 `bson:"seq" json:"seq"` // per-conversation monotonic
	CreateTimeMS     int64 `bson:"create_time_ms" json:"create_time_ms"`
	ServerReceivedMS int64 `bson:"server_received_ms" json:"server_received_ms"`
}

const (
	MsgFieldTenantID       = "tenant_id"
	MsgFieldConversationID = "conversation_id"
	MsgFieldMessageUUID    = "message_uuid"
	MsgFieldSenderID       = "sender_id"
	MsgFieldSeq            = "seq"
	MsgFieldCreateTimeMS   = "create_time_ms"
)

func (*RelayMessage) GetTableName() string { return "relay_message" }
