package seq

import (
	"context"
	"time"

	relaymodel "RProject/module/relay/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DAO struct{ DB *mongo.Database }

func (d *DAO) coll() *mongo.Collection {
	s := relaymodel.SeqConversation{}
	return d.DB.Collection(s.GetTableName())
}

// AllocSegment atomically leases a segment from Mongo: issued_seq += block,
// returning [start,end].
func (d *DAO) AllocSegment(ctx context.Context, tenantID, conversationID string, block int64) (start, end int64, err error) {
	if block <= 0 {
		block = 256
	}
	now := time.Now()

	filter := bson.M{relaymodel.SeqConvFieldTenantID: tenantID,
		relaymodel.SeqConvFieldConversationID: conversationID}
	update := bson.M{
		"$inc": bson.M{relaymodel.SeqConvFieldIssuedSeq: block},
		"$setOnInsert": bson.M{relaymodel.SeqConvFieldMaxSeq: int64(0),
			relaymodel.SeqConvFieldMinSeq:     int64(0),
			relaymodel.SeqConvFieldCreateTime: now},
		"$set": bson.M{relaymodel.SeqConvFieldUpdateTime: now},
	}

	var before struct {
		IssuedSeq int64 `bson:"issued_seq"`
	}
	err = d.coll().FindOneAndUpdate(
		ctx, filter, update,
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil && err != mongo.ErrNoDocuments {
		return 0, 0, err
	}
	old := before.IssuedSeq // zero when the row did not exist yet
	return old + 1, old + block, nil
}
