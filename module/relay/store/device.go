package store

import (
	"context"

	relaymodel "RProject/module/relay/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DeviceActive reports whether the (user, device) pair exists and is active.
// Checked on every relay call, never cached.
func (s *Store) DeviceActive(ctx context.Context, tenant, userID, deviceUUID string) (bool, error) {
	var d relaymodel.UserDevice
	err := s.DeviceColl.FindOne(ctx, bson.M{
		relaymodel.DeviceFieldTenantID:   tenant,
		relaymodel.DeviceFieldUserID:     userID,
		relaymodel.DeviceFieldDeviceUUID: deviceUUID,
	}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.Status == relaymodel.DeviceStatusActive, nil
}

// IsMember reports whether userID participates in the conversation.
func (s *Store) IsMember(ctx context.Context, tenant, conv, userID string) (bool, error) {
	err := s.MemberColl.FindOne(ctx, bson.M{
		relaymodel.MemberFieldTenantID:       tenant,
		relaymodel.MemberFieldConversationID: conv,
		relaymodel.MemberFieldUserID:         userID,
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
