package service

import (
	"context"

	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"

	"github.com/google/uuid"
)

type ReceiptItem struct {
	MessageUUID string `json:"message_uuid" binding:"required"`
	Type        string `json:"type" binding:"required"`
}

type ReceiptRequest struct {
	ConversationID string        `json:"conversation_id" binding:"required"`
	Receipts       []ReceiptItem `json:"receipts" binding:"required"`
}

type ReceiptResponse struct {
	Success      bool `json:"success"`
	NewlyCreated int  `json:"newly_created"`
}

// Receipt records a batch of DELIVERED/READ acknowledgements for the caller
// identity. Replays are no-ops; the response counts only receipts that did
// not exist before.
func (s *Service) Receipt(ctx context.Context, id Identity, req *ReceiptRequest) (*ReceiptResponse, error) {
	if err := s.authorize(ctx, id); err != nil {
		return nil, err
	}
	if req.ConversationID == "" || len(req.Receipts) == 0 {
		return nil, errors.ErrValidation.WrapMsg("conversation_id and receipts are required")
	}
	for _, item := range req.Receipts {
		if _, err := uuid.Parse(item.MessageUUID); err != nil {
			return nil, errors.ErrValidation.WrapMsg("invalid message_uuid format",
				"message_uuid", item.MessageUUID)
		}
		if !relaymodel.ValidReceiptType(item.Type) {
			return nil, errors.ErrValidation.WrapMsg("unknown receipt type", "type", item.Type)
		}
	}
	ok, err := s.Store.IsMember(ctx, id.TenantID, req.ConversationID, id.UserID)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("member lookup failed", "err", err)
	}
	if !ok {
		return nil, errors.ErrAuthorization.WrapMsg("not a conversation member",
			"conversation_id", req.ConversationID)
	}

	created := 0
	for _, item := range req.Receipts {
		fresh, err := s.Store.UpsertReceipt(ctx, &relaymodel.Receipt{
			TenantID:       id.TenantID,
			ConversationID: req.ConversationID,
			MessageUUID:    item.MessageUUID,
			UserID:         id.UserID,
			DeviceID:       id.DeviceUUID,
			Type:           item.Type,
			CreateTimeMS:   nowMS(),
		})
		if err != nil {
			return nil, errors.ErrTransient.WrapMsg("receipt upsert failed", "err", err)
		}
		if fresh {
			created++
		}
	}
	return &ReceiptResponse{Success: true, NewlyCreated: created}, nil
}
