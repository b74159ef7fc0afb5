package model

const (
	DeviceStatusActive  = "active"
	DeviceStatusRevoked = "revoked"
)

// UserDevice tracks the trust state of one (user, device) pair. Every relay
// operation re-checks status server-side; the client never caches it.
type UserDevice struct {
	TenantID     string `bson:"tenant_id"`
	UserID       string `bson:"user_id"`
	DeviceUUID   string `bson:"device_uuid"`
	Status       string `bson:"status"` // active | revoked
	CreateTimeMS int64  `bson:"create_time_ms"`
	UpdateTimeMS int64  `bson:"update_time_ms"`
}

const (
	DeviceFieldTenantID   = "tenant_id"
	DeviceFieldUserID     = "user_id"
	DeviceFieldDeviceUUID = "device_uuid"
	DeviceFieldStatus     = "status"
)

func (*UserDevice) GetTableName() string { return "user_device" }

// ConversationMember scopes pull/repair authorization: a user only ever sees
// messages of conversations they are a member of.
type ConversationMember struct {
	TenantID       string `bson:"tenant_id"`
	ConversationID string `bson:"conversation_id"`
	UserID         string `bson:"user_id"`
	JoinTimeMS     int64  `bson:"join_time_ms"`
}

const (
	MemberFieldTenantID       = "tenant_id"
	MemberFieldConversationID = "conversation_id"
	MemberFieldUserID         = "user_id"
)

func (*ConversationMember) GetTableName() string { return "conversation_member" }
