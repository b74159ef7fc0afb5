package service

import (
	"context"
	"time"

	"RProject/logger"
	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"
	ids "RProject/tools/ids"
	"RProject/tools/safe"

	"github.com/google/uuid"
)

type AcceptRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	MessageUUID    string `json:"message_uuid" binding:"required"`
	RecipientID    string `json:"recipient_id"`
	Payload        []byte `json:"payload" binding:"required"`
	CreateTimeMS   int64  `json:"create_time_ms"`
}

type AcceptResponse struct {
	Success          bool  `json:"success"`
	Duplicate        bool  `json:"duplicate,omitempty"`
	ServerSeq        int64 `json:"server_seq"`
	ServerReceivedMS int64 `json:"server_received_ms"`
}

// Accept records a message exactly once and assigns its server_seq.
// A replayed message_uuid answers with the original assignment and
// duplicate=true; it is never re-sequenced.
func (s *Service) Accept(ctx context.Context, id Identity, req *AcceptRequest) (*AcceptResponse, error) {
	if err := s.authorize(ctx, id); err != nil {
		return nil, err
	}
	if req.ConversationID == "" || len(req.Payload) == 0 {
		return nil, errors.ErrValidation.WrapMsg("conversation_id and payload are required")
	}
	if _, err := uuid.Parse(req.MessageUUID); err != nil {
		return nil, errors.ErrValidation.WrapMsg("invalid message_uuid format", "message_uuid", req.MessageUUID)
	}
	ok, err := s.Store.IsMember(ctx, id.TenantID, req.ConversationID, id.UserID)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("member lookup failed", "err", err)
	}
	if !ok {
		return nil, errors.ErrAuthorization.WrapMsg("not a conversation member",
			"conversation_id", req.ConversationID)
	}

	// Idempotency fast path.
	if prior, err := s.Store.FindByUUID(ctx, id.TenantID, req.MessageUUID); err != nil {
		return nil, errors.ErrTransient.WrapMsg("dup lookup failed", "err", err)
	} else if prior != nil {
		return &AcceptResponse{
			Success:          true,
			Duplicate:        true,
			ServerSeq:        prior.Seq,
			ServerReceivedMS: prior.ServerReceivedMS,
		}, nil
	}

	seqNo, mill, err := s.Seq.Malloc(ctx, id.TenantID, req.ConversationID, 1)
	if err != nil {
		return nil, errors.ErrTransient.WrapMsg("seq alloc failed", "err", err)
	}

	createMS := req.CreateTimeMS
	if createMS == 0 {
		createMS = mill
	}
	m := &relaymodel.RelayMessage{
		TenantID:         id.TenantID,
		ConversationID:   req.ConversationID,
		MessageUUID:      req.MessageUUID,
		ServerMsgID:      ids.GenerateString(),
		SenderID:         id.UserID,
		SenderDeviceID:   id.DeviceUUID,
		RecipientID:      req.RecipientID,
		Payload:          req.Payload,
		Seq:              seqNo,
		CreateTimeMS:     createMS,
		ServerReceivedMS: mill,
	}
	if err := s.Store.InsertSequenced(ctx, m); err != nil {
		if errors.CodeOf(err) == errors.CodeRecordExists {
			// Lost the race between fast path and insert: surface the winner.
			if prior, ferr := s.Store.FindByUUID(ctx, id.TenantID, req.MessageUUID); ferr == nil && prior != nil {
				return &AcceptResponse{
					Success:          true,
					Duplicate:        true,
					ServerSeq:        prior.Seq,
					ServerReceivedMS: prior.ServerReceivedMS,
				}, nil
			}
		}
		return nil, errors.ErrTransient.WrapMsg("insert failed", "err", err)
	}
	if err := s.Store.BumpMaxSeq(ctx, id.TenantID, req.ConversationID, seqNo); err != nil {
		logger.Warnf("[accept] bump max_seq failed conv=%s seq=%d: %v", req.ConversationID, seqNo, err)
	}

	s.postCommit(m)

	return &AcceptResponse{
		Success:          true,
		ServerSeq:        seqNo,
		ServerReceivedMS: mill,
	}, nil
}

// postCommit runs the best-effort fan-out after the message is durable:
// Kafka dispatch for downstream pipelines and a NATS wake signal for the
// recipient. Failures are logged and swallowed, never surfaced to the sender.
func (s *Service) postCommit(m *relaymodel.RelayMessage) {
	d, w := s.Dispatcher, s.Waker
	if d == nil && w == nil {
		return
	}
	safe.SafeGo(func() {
		if d != nil {
			if err := d.DispatchAccepted(m); err != nil {
				logger.Warnf("[accept] dispatch failed uuid=%s: %v", m.MessageUUID, err)
			}
		}
		if w != nil && m.RecipientID != "" {
			if err := w.Wake(m.TenantID, m.RecipientID, m.ConversationID); err != nil {
				logger.Warnf("[accept] wake failed user=%s: %v", m.RecipientID, err)
			}
		}
	})
}

func (s *Service) authorize(ctx context.Context, id Identity) error {
	if id.UserID == "" || id.DeviceUUID == "" {
		return errors.ErrAuthorization.WrapMsg("missing identity")
	}
	active, err := s.Store.DeviceActive(ctx, id.TenantID, id.UserID, id.DeviceUUID)
	if err != nil {
		return errors.ErrTransient.WrapMsg("device lookup failed", "err", err)
	}
	if !active {
		return errors.ErrAuthorization.WrapMsg("device revoked or unknown",
			"user_id", id.UserID, "device_uuid", id.DeviceUUID)
	}
	return nil
}

var nowMS = func() int64 { return time.Now().UnixMilli() }
