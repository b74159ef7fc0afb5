package service

import (
	"context"

	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"
)

const (
	pullDefaultLimit = 100
	pullMaxLimit     = 1000
)

type PullRequest struct {
	ConversationID string `form:"conversation_id" binding:"required"`
	SinceSeq       int64  `form:"since_seq"`
	SinceReceiptID int64  `form:"since_receipt_id"`
	Limit          int64  `form:"limit"`
}

type PullResponse struct {
	Messages      []*relaymodel.RelayMessage `json:"messages"`
	Receipts      []*relaymodel.Receipt      `json:"receipts"`
	LastSeq       int64                      `json:"last_seq"`
	LastReceiptID int64                      `json:"last_receipt_id"`
	HasMore       bool                       `json:"has_more"`
}

// Pull serves the sync path: messages above since_seq plus receipts above
// since_receipt_id, both ascending and page-bounded. Membership is
// re-checked per call so a removed participant stops seeing new traffic.
func (s *Service) Pull(ctx context.Context, id Identity, req *PullRequest) (*PullResponse, error) {
	if err := s.authorize(ctx, id); err != nil {
		return nil, err
	}
	if req.ConversationID == "" {
		return nil, errors.ErrValidation.WrapMsg("conversation_id is required")
	}
	ok, err := s.Store.IsMember(ctx, id.TenantID, req.ConversationID, id.UserID)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("member lookup failed", "err", err)
	}
	if !ok {
		return nil, errors.ErrAuthorization.WrapMsg("not a conversation member",
			"conversation_id", req.ConversationID)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = pullDefaultLimit
	}
	if limit > pullMaxLimit {
		limit = pullMaxLimit
	}

	msgs, err := s.Store.ListSince(ctx, id.TenantID, req.ConversationID, req.SinceSeq, limit)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("message listing failed", "err", err)
	}
	rcps, err := s.Store.ListReceiptsSince(ctx, id.TenantID, req.ConversationID, req.SinceReceiptID, limit)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("receipt listing failed", "err", err)
	}

	resp := &PullResponse{
		Messages:      msgs,
		Receipts:      rcps,
		LastSeq:       req.SinceSeq,
		LastReceiptID: req.SinceReceiptID,
	}
	for _, m := range msgs {
		if m.Seq > resp.LastSeq {
			resp.LastSeq = m.Seq
		}
	}
	for _, r := range rcps {
		if r.ReceiptID > resp.LastReceiptID {
			resp.LastReceiptID = r.ReceiptID
		}
	}
	resp.HasMore = int64(len(msgs)) >= limit || int64(len(rcps)) >= limit
	return resp, nil
}
