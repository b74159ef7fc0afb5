package service

import (
	"context"

	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"
)

// RangeMaxSpan caps one repair request. Clients must split larger gaps.
const RangeMaxSpan = 500

type RangeRequest struct {
	ConversationID string `form:"conversation_id" binding:"required"`
	StartSeq       int64  `form:"start_seq" binding:"required"`
	EndSeq         int64  `form:"end_seq" binding:"required"`
}

type RangeResponse struct {
	Success    bool                       `json:"success"`
	Messages   []*relaymodel.RelayMessage `json:"messages"`
	Count      int                        `json:"count"`
	RangeStart int64                      `json:"range_start"`
	RangeEnd   int64                      `json:"range_end"`
}

// Range serves gap repair: the exact [start_seq, end_seq] slice of a
// conversation. A result shorter than the span is not an error; absent seqs
// were never visible to this caller. The span cap is enforced before any
// store work.
func (s *Service) Range(ctx context.Context, id Identity, req *RangeRequest) (*RangeResponse, error) {
	if req.ConversationID == "" || req.StartSeq <= 0 || req.EndSeq <= 0 {
		return nil, errors.ErrValidation.WrapMsg("conversation_id, start_seq, end_seq are required")
	}
	if req.EndSeq < req.StartSeq {
		return nil, errors.ErrValidation.WrapMsg("end_seq before start_seq",
			"start_seq", req.StartSeq, "end_seq", req.EndSeq)
	}
	if req.EndSeq-req.StartSeq+1 > RangeMaxSpan {
		return nil, errors.ErrRangeTooLarge.WrapMsg("span above cap",
			"span", req.EndSeq-req.StartSeq+1, "cap", RangeMaxSpan)
	}
	if err := s.authorize(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.Store.IsMember(ctx, id.TenantID, req.ConversationID, id.UserID)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("member lookup failed", "err", err)
	}
	if !ok {
		return nil, errors.ErrAuthorization.WrapMsg("not a conversation member",
			"conversation_id", req.ConversationID)
	}

	msgs, err := s.Store.GetRange(ctx, id.TenantID, req.ConversationID, req.StartSeq, req.EndSeq)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("range fetch failed", "err", err)
	}
	return &RangeResponse{
		Success:    true,
		Messages:   msgs,
		Count:      len(msgs),
		RangeStart: req.StartSeq,
		RangeEnd:   req.EndSeq,
	}, nil
}
