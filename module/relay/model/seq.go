package model

import "time"

// SeqConversation holds the sequencing waterline of one conversation stream.
// IssuedSeq is the highest pre-allocated number (segment allocator), MaxSeq
// the highest committed-readable one; the gap between them is monitoring
// surface for two-phase writes.
type SeqConversation struct {
	TenantID       string `bson:"tenant_id"`
	ConversationID string `bson:"conversation_id"`
	MaxSeq         int64  `bson:"max_seq"`
	MinSeq         int64  `bson:"min_seq"`
	IssuedSeq      int64  `bson:"issued_seq,omitempty"`

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

const (
	SeqConvFieldTenantID       = "tenant_id"
	SeqConvFieldConversationID = "conversation_id"
	SeqConvFieldMaxSeq         = "max_seq"
	SeqConvFieldMinSeq         = "min_seq"
	SeqConvFieldIssuedSeq      = "issued_seq"
	SeqConvFieldCreateTime     = "create_time"
	SeqConvFieldUpdateTime     = "update_time"
)

func (*SeqConversation) GetTableName() string { return "seq_conversation" }
