package store

import (
	"context"
	"time"

	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindByUUID is the accept fast path: an already-recorded message_uuid means
// the call is a replay and the original assignment must be returned.
func (s *Store) FindByUUID(ctx context.Context, tenant, messageUUID string) (*relaymodel.RelayMessage, error) {
	var m relaymodel.RelayMessage
	err := s.MsgColl.FindOne(ctx, bson.M{
		relaymodel.MsgFieldTenantID:    tenant,
		relaymodel.MsgFieldMessageUUID: messageUUID,
	}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertSequenced persists one sequenced message. The unique index on
// (tenant_id, message_uuid) is the second line of defense against a race
// between the fast-path check and the insert; a violation is reported as
// ErrRecordExists so the caller can take the duplicate path.
func (s *Store) InsertSequenced(ctx context.Context, m *relaymodel.RelayMessage) error {
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		if IsDuplicateKey(err) {
			return errors.ErrRecordExists.WrapMsg("message already recorded",
				"message_uuid", m.MessageUUID)
		}
		return err
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique-index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// GetRange returns the messages of [startSeq,endSeq], ascending. Missing
// seqs inside the range are simply absent from the result.
func (s *Store) GetRange(ctx context.Context, tenant, conv string, startSeq, endSeq int64) ([]*relaymodel.RelayMessage, error) {
	cur, err := s.MsgColl.Find(ctx, bson.M{
		relaymodel.MsgFieldTenantID:       tenant,
		relaymodel.MsgFieldConversationID: conv,
		relaymodel.MsgFieldSeq:            bson.M{"$gte": startSeq, "$lte": endSeq},
	}, options.Find().SetSort(bson.D{{Key: relaymodel.MsgFieldSeq, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*relaymodel.RelayMessage
	for cur.Next(ctx) {
		var m relaymodel.RelayMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

// ListSince returns up to limit messages with seq > sinceSeq, ascending.
func (s *Store) ListSince(ctx context.Context, tenant, conv string, sinceSeq int64, limit int64) ([]*relaymodel.RelayMessage, error) {
	cur, err := s.MsgColl.Find(ctx, bson.M{
		relaymodel.MsgFieldTenantID:       tenant,
		relaymodel.MsgFieldConversationID: conv,
		relaymodel.MsgFieldSeq:            bson.M{"$gt": sinceSeq},
	}, options.Find().
		SetSort(bson.D{{Key: relaymodel.MsgFieldSeq, Value: 1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*relaymodel.RelayMessage
	for cur.Next(ctx) {
		var m relaymodel.RelayMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

// BumpMaxSeq raises the conversation commit waterline after a successful
// insert ($max keeps it monotonic under concurrency).
func (s *Store) BumpMaxSeq(ctx context.Context, tenant, conv string, seq int64) error {
	_, err := s.SeqConvColl.UpdateOne(ctx,
		bson.M{relaymodel.SeqConvFieldTenantID: tenant,
			relaymodel.SeqConvFieldConversationID: conv},
		bson.M{"$max": bson.M{relaymodel.SeqConvFieldMaxSeq: seq},
			"$set": bson.M{relaymodel.SeqConvFieldUpdateTime: time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}
