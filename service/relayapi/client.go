package relayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"RProject/module/outbox"
	"RProject/module/syncer"
	errors "RProject/tools/errs"
)

// Client talks to the relay's HTTP surface. It implements outbox.Sender,
// syncer.Puller, syncer.Ranger and syncer.ReceiptSender, so one client
// serves every delivery path.
//
// Every fault is tagged with a taxonomy code at this boundary: relay
// responses carry their own code, anything else (DNS, reset, timeout) is
// transient. Callers branch on the code, never on error strings.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type acceptRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageUUID    string `json:"message_uuid"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Payload        []byte `json:"payload"`
	CreateTimeMS   int64  `json:"create_time_ms,omitempty"`
}

type acceptResponse struct {
	Success          bool  `json:"success"`
	Duplicate        bool  `json:"duplicate"`
	ServerSeq        int64 `json:"server_seq"`
	ServerReceivedMS int64 `json:"server_received_ms"`
}

// Send submits one outbox message for acceptance.
func (c *Client) Send(ctx context.Context, m *outbox.Message) (*outbox.SendResult, error) {
	var resp acceptResponse
	err := c.postJSON(ctx, "/relay/send", &acceptRequest{
		ConversationID: m.ConversationID,
		MessageUUID:    m.MessageUUID,
		RecipientID:    m.RecipientID,
		Payload:        m.Payload,
		CreateTimeMS:   m.CreateTimeMS,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &outbox.SendResult{
		ServerSeq:        resp.ServerSeq,
		ServerReceivedMS: resp.ServerReceivedMS,
		Duplicate:        resp.Duplicate,
	}, nil
}

type wireMessage struct {
	ConversationID string `json:"conversation_id"`
	MessageUUID    string `json:"message_uuid"`
	SenderID       string `json:"sender_id"`
	Payload        []byte `json:"payload"`
	Seq            int64  `json:"seq"`
	CreateTimeMS   int64  `json:"create_time_ms"`
}

type wireReceipt struct {
	MessageUUID  string `json:"message_uuid"`
	UserID       string `json:"user_id"`
	Type         string `json:"type"`
	ReceiptID    int64  `json:"receipt_id"`
	CreateTimeMS int64  `json:"create_time_ms"`
}

type pullResponse struct {
	Messages      []wireMessage `json:"messages"`
	Receipts      []wireReceipt `json:"receipts"`
	LastSeq       int64         `json:"last_seq"`
	LastReceiptID int64         `json:"last_receipt_id"`
	HasMore       bool          `json:"has_more"`
}

// Pull fetches one catch-up page after the given cursor.
func (c *Client) Pull(ctx context.Context, conversationID string, sinceSeq, sinceReceiptID int64, limit int) (*syncer.PullResult, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	q.Set("since_seq", strconv.FormatInt(sinceSeq, 10))
	q.Set("since_receipt_id", strconv.FormatInt(sinceReceiptID, 10))
	q.Set("limit", strconv.Itoa(limit))

	var resp pullResponse
	if err := c.getJSON(ctx, "/relay/pull", q, &resp); err != nil {
		return nil, err
	}
	out := &syncer.PullResult{
		LastSeq:       resp.LastSeq,
		LastReceiptID: resp.LastReceiptID,
		HasMore:       resp.HasMore,
	}
	for _, m := range resp.Messages {
		out.Messages = append(out.Messages, toSyncerMessage(m))
	}
	for _, r := range resp.Receipts {
		out.Receipts = append(out.Receipts, &syncer.Receipt{
			MessageUUID:  r.MessageUUID,
			UserID:       r.UserID,
			Type:         r.Type,
			ReceiptID:    r.ReceiptID,
			CreateTimeMS: r.CreateTimeMS,
		})
	}
	return out, nil
}

type rangeResponse struct {
	Success  bool          `json:"success"`
	Messages []wireMessage `json:"messages"`
	Count    int           `json:"count"`
}

// Range fetches an inclusive repair span.
func (c *Client) Range(ctx context.Context, conversationID string, start, end int64) ([]*syncer.Message, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	q.Set("start_seq", strconv.FormatInt(start, 10))
	q.Set("end_seq", strconv.FormatInt(end, 10))

	var resp rangeResponse
	if err := c.getJSON(ctx, "/relay/repair", q, &resp); err != nil {
		return nil, err
	}
	out := make([]*syncer.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, toSyncerMessage(m))
	}
	return out, nil
}

type receiptRequest struct {
	ConversationID string               `json:"conversation_id"`
	Receipts       []syncer.ReceiptItem `json:"receipts"`
}

type receiptResponse struct {
	Success      bool `json:"success"`
	NewlyCreated int  `json:"newly_created"`
}

// SendReceipts submits an acknowledgement batch.
func (c *Client) SendReceipts(ctx context.Context, conversationID string, items []syncer.ReceiptItem) error {
	var resp receiptResponse
	return c.postJSON(ctx, "/relay/receipt", &receiptRequest{
		ConversationID: conversationID,
		Receipts:       items,
	}, &resp)
}

func toSyncerMessage(m wireMessage) *syncer.Message {
	return &syncer.Message{
		MessageUUID:    m.MessageUUID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Seq:            m.Seq,
		CreateTimeMS:   m.CreateTimeMS,
		Payload:        m.Payload,
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.ErrValidation.WrapMsg("encode request", "err", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return errors.ErrValidation.WrapMsg("build request", "err", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return errors.ErrValidation.WrapMsg("build request", "err", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.ErrTransient.WrapMsg("relay unreachable", "err", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.ErrTransient.WrapMsg("read response", "err", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeFault(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.ErrTransient.WrapMsg("decode response", "err", err)
	}
	return nil
}

// decodeFault turns a non-200 answer into a tagged error. The relay's body
// is a CodeError; if it cannot be decoded, the HTTP status decides the kind.
func decodeFault(status int, raw []byte) error {
	var ce errors.CodeError
	if err := json.Unmarshal(raw, &ce); err == nil && ce.Code != 0 {
		return ce.Wrap()
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.ErrAuthorization.WrapMsg("relay rejected", "status", status)
	case status >= 400 && status < 500:
		return errors.ErrValidation.WrapMsg("relay rejected", "status", status)
	}
	return errors.ErrTransient.WrapMsg(fmt.Sprintf("relay fault status=%d", status))
}
