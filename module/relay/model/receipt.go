package model

const (
	ReceiptTypeDelivered = "DELIVERED"
	ReceiptTypeRead      = "READ"
)

// Receipt is a delivery/read acknowledgement. Logical key is
// (message_uuid, user_id, type); ReceiptID is a per-relay monotonic id used
// only as a pull watermark.
type Receipt struct {
	TenantID       string `bson:"tenant_id" json:"tenant_id"`
	ConversationID string `bson:"conversation_id" json:"conversation_id"`
	MessageUUID    string `bson:"message_uuid" json:"message_uuid"`
	UserID         string `bson:"user_id" json:"user_id"` // acking identity
	DeviceID       string `bson:"device_id" json:"device_id"`
	Type           string `bson:"type" json:"type"` // DELIVERED | READ

	ReceiptID    int64 `bson:"receipt_id" json:"receipt_id"`
	CreateTimeMS int64 `bson:"create_time_ms" json:"create_time_ms"`
}

const (
	ReceiptFieldTenantID       = "tenant_id"
	ReceiptFieldConversationID = "conversation_id"
	ReceiptFieldMessageUUID    = "message_uuid"
	ReceiptFieldUserID         = "user_id"
	ReceiptFieldType           = "type"
	ReceiptFieldReceiptID      = "receipt_id"
)

func (*Receipt) GetTableName() string { return "relay_receipt" }

// ValidReceiptType reports whether t is one of the two receipt kinds.
func ValidReceiptType(t string) bool {
	return t == ReceiptTypeDelivered || t == ReceiptTypeRead
}
