package store

import (
	relaymodel "RProject/module/relay/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	MsgColl     *mongo.Collection // relay_message
	ReceiptColl *mongo.Collection // relay_receipt
	SeqConvColl *mongo.Collection // seq_conversation
	DeviceColl  *mongo.Collection // user_device
	MemberColl  *mongo.Collection // conversation_member
}

func NewStore(db *mongo.Database) *Store {
	msg := relaymodel.RelayMessage{}
	rcp := relaymodel.Receipt{}
	sc := relaymodel.SeqConversation{}
	dev := relaymodel.UserDevice{}
	mem := relaymodel.ConversationMember{}
	return &Store{
		MsgColl:     db.Collection(msg.GetTableName()),
		ReceiptColl: db.Collection(rcp.GetTableName()),
		SeqConvColl: db.Collection(sc.GetTableName()),
		DeviceColl:  db.Collection(dev.GetTableName()),
		MemberColl:  db.Collection(mem.GetTableName()),
	}
}
