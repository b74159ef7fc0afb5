package store

import (
	"context"
	"time"

	relaymodel "RProject/module/relay/model"
	ids "RProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertReceipt records an acknowledgement idempotently: the logical key is
// (message_uuid, user_id, type), $setOnInsert makes a replay a no-op.
// Returns true when the receipt was newly created.
func (s *Store) UpsertReceipt(ctx context.Context, r *relaymodel.Receipt) (bool, error) {
	if r.ReceiptID == 0 {
		r.ReceiptID = ids.Generate()
	}
	if r.CreateTimeMS == 0 {
		r.CreateTimeMS = time.Now().UnixMilli()
	}
	res, err := s.ReceiptColl.UpdateOne(ctx,
		bson.M{
			relaymodel.ReceiptFieldTenantID:    r.TenantID,
			relaymodel.ReceiptFieldMessageUUID: r.MessageUUID,
			relaymodel.ReceiptFieldUserID:      r.UserID,
			relaymodel.ReceiptFieldType:        r.Type,
		},
		bson.M{"$setOnInsert": bson.M{
			relaymodel.ReceiptFieldConversationID: r.ConversationID,
			"device_id":                           r.DeviceID,
			relaymodel.ReceiptFieldReceiptID:      r.ReceiptID,
			"create_time_ms":                      r.CreateTimeMS,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// ListReceiptsSince returns up to limit receipts with receipt_id > sinceID
// for one conversation, ascending by receipt_id.
func (s *Store) ListReceiptsSince(ctx context.Context, tenant, conv string, sinceID int64, limit int64) ([]*relaymodel.Receipt, error) {
	cur, err := s.ReceiptColl.Find(ctx, bson.M{
		relaymodel.ReceiptFieldTenantID:       tenant,
		relaymodel.ReceiptFieldConversationID: conv,
		relaymodel.ReceiptFieldReceiptID:      bson.M{"$gt": sinceID},
	}, options.Find().
		SetSort(bson.D{{Key: relaymodel.ReceiptFieldReceiptID, Value: 1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*relaymodel.Receipt
	for cur.Next(ctx) {
		var r relaymodel.Receipt
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}
