package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	relaymodel "RProject/module/relay/model"
	errors "RProject/tools/errs"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu       sync.Mutex
	byUUID   map[string]*relaymodel.RelayMessage
	receipts map[string]*relaymodel.Receipt // keyed uuid|user|type
	nextRcpt int64

	revoked    map[string]bool // device_uuid
	nonMembers map[string]bool // user_id

	rangeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byUUID:     map[string]*relaymodel.RelayMessage{},
		receipts:   map[string]*relaymodel.Receipt{},
		revoked:    map[string]bool{},
		nonMembers: map[string]bool{},
	}
}

func (f *fakeStore) FindByUUID(_ context.Context, _, messageUUID string) (*relaymodel.RelayMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUUID[messageUUID], nil
}

func (f *fakeStore) InsertSequenced(_ context.Context, m *relaymodel.RelayMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byUUID[m.MessageUUID]; ok {
		return errors.ErrRecordExists.WrapMsg("dup")
	}
	f.byUUID[m.MessageUUID] = m
	return nil
}

func (f *fakeStore) BumpMaxSeq(context.Context, string, string, int64) error { return nil }

func (f *fakeStore) sorted(conv string) []*relaymodel.RelayMessage {
	var out []*relaymodel.RelayMessage
	for _, m := range f.byUUID {
		if m.ConversationID == conv {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (f *fakeStore) GetRange(_ context.Context, _, conv string, startSeq, endSeq int64) ([]*relaymodel.RelayMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls++
	var out []*relaymodel.RelayMessage
	for _, m := range f.sorted(conv) {
		if m.Seq >= startSeq && m.Seq <= endSeq {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSince(_ context.Context, _, conv string, sinceSeq int64, limit int64) ([]*relaymodel.RelayMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*relaymodel.RelayMessage
	for _, m := range f.sorted(conv) {
		if m.Seq > sinceSeq && int64(len(out)) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertReceipt(_ context.Context, r *relaymodel.Receipt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := r.MessageUUID + "|" + r.UserID + "|" + r.Type
	if _, ok := f.receipts[k]; ok {
		return false, nil
	}
	f.nextRcpt++
	r.ReceiptID = f.nextRcpt
	f.receipts[k] = r
	return true, nil
}

func (f *fakeStore) ListReceiptsSince(_ context.Context, _, conv string, sinceID int64, limit int64) ([]*relaymodel.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*relaymodel.Receipt
	for _, r := range f.receipts {
		if r.ConversationID == conv && r.ReceiptID > sinceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptID < out[j].ReceiptID })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeviceActive(_ context.Context, _, _, deviceUUID string) (bool, error) {
	return !f.revoked[deviceUUID], nil
}

func (f *fakeStore) IsMember(_ context.Context, _, _, userID string) (bool, error) {
	return !f.nonMembers[userID], nil
}

type fakeSeq struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeSeq) Malloc(_ context.Context, _, _ string, need int64) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if need <= 0 {
		need = 1
	}
	start := f.next + 1
	f.next += need
	return start, 42_000, nil
}

func testIdentity() Identity {
	return Identity{TenantID: "t1", UserID: "alice", DeviceUUID: "dev-1"}
}

func acceptReq(conv, msgUUID string) *AcceptRequest {
	return &AcceptRequest{
		ConversationID: conv,
		MessageUUID:    msgUUID,
		RecipientID:    "bob",
		Payload:        []byte("ciphertext"),
	}
}

func newTestService() (*Service, *fakeStore) {
	st := newFakeStore()
	return NewService(st, &fakeSeq{}), st
}

func TestAcceptAssignsMonotonicSeqs(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		resp, err := s.Accept(ctx, testIdentity(), acceptReq("c1", uuid.NewString()))
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if !resp.Success || resp.Duplicate {
			t.Fatalf("resp = %+v", resp)
		}
		if resp.ServerSeq <= prev {
			t.Fatalf("seq %d not above %d", resp.ServerSeq, prev)
		}
		prev = resp.ServerSeq
	}
}

func TestAcceptReplayReturnsOriginalAssignment(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	u := uuid.NewString()

	first, err := s.Accept(ctx, testIdentity(), acceptReq("c1", u))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	// burn a few seqs in between
	for i := 0; i < 3; i++ {
		if _, err := s.Accept(ctx, testIdentity(), acceptReq("c1", uuid.NewString())); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}

	replay, err := s.Accept(ctx, testIdentity(), acceptReq("c1", u))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate {
		t.Fatal("replay not flagged duplicate")
	}
	if replay.ServerSeq != first.ServerSeq || replay.ServerReceivedMS != first.ServerReceivedMS {
		t.Fatalf("replay = %+v, first = %+v", replay, first)
	}
}

func TestAcceptValidation(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	cases := []*AcceptRequest{
		{MessageUUID: uuid.NewString(), Payload: []byte("x")}, // no conversation
		{ConversationID: "c1", MessageUUID: uuid.NewString()}, // no payload
		{ConversationID: "c1", MessageUUID: "not-a-uuid", Payload: []byte("x")},
	}
	for i, req := range cases {
		if _, err := s.Accept(ctx, testIdentity(), req); !errors.IsValidation(err) {
			t.Fatalf("case %d: err = %v, want validation", i, err)
		}
	}
}

// racingStore loses every insert: another writer lands the same message_uuid
// between the fast-path check and the insert, so InsertSequenced plants the
// winner's row and reports the unique-index violation.
type racingStore struct {
	*fakeStore
	winnerSeq int64
}

func (r *racingStore) InsertSequenced(_ context.Context, m *relaymodel.RelayMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUUID[m.MessageUUID] = &relaymodel.RelayMessage{
		TenantID:         m.TenantID,
		ConversationID:   m.ConversationID,
		MessageUUID:      m.MessageUUID,
		Seq:              r.winnerSeq,
		ServerReceivedMS: 41_000,
	}
	return errors.ErrRecordExists.WrapMsg("dup")
}

func TestAcceptInsertRaceSurfacesWinner(t *testing.T) {
	st := &racingStore{fakeStore: newFakeStore(), winnerSeq: 77}
	s := NewService(st, &fakeSeq{})

	resp, err := s.Accept(context.Background(), testIdentity(), acceptReq("c1", uuid.NewString()))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !resp.Duplicate {
		t.Fatal("lost race not flagged duplicate")
	}
	if resp.ServerSeq != 77 || resp.ServerReceivedMS != 41_000 {
		t.Fatalf("resp = %+v, want winner's assignment", resp)
	}
}

// faultStore fails every insert with an error that is not a unique-index
// violation.
type faultStore struct {
	*fakeStore
	finds int
}

func (f *faultStore) FindByUUID(ctx context.Context, tenant, u string) (*relaymodel.RelayMessage, error) {
	f.finds++
	return f.fakeStore.FindByUUID(ctx, tenant, u)
}

func (f *faultStore) InsertSequenced(context.Context, *relaymodel.RelayMessage) error {
	return fmt.Errorf("socket reset")
}

func TestAcceptInsertFaultStaysTransient(t *testing.T) {
	st := &faultStore{fakeStore: newFakeStore()}
	s := NewService(st, &fakeSeq{})

	_, err := s.Accept(context.Background(), testIdentity(), acceptReq("c1", uuid.NewString()))
	if !errors.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	// only the fast-path lookup ran; a plain fault must not take the
	// duplicate re-query path
	if st.finds != 1 {
		t.Fatalf("FindByUUID called %d times, want 1", st.finds)
	}
}

func TestAcceptRevokedDevice(t *testing.T) {
	s, st := newTestService()
	st.revoked["dev-1"] = true

	_, err := s.Accept(context.Background(), testIdentity(), acceptReq("c1", uuid.NewString()))
	if !errors.IsAuthorization(err) {
		t.Fatalf("err = %v, want authorization", err)
	}
}

func TestAcceptNonMember(t *testing.T) {
	s, st := newTestService()
	st.nonMembers["alice"] = true

	_, err := s.Accept(context.Background(), testIdentity(), acceptReq("c1", uuid.NewString()))
	if !errors.IsAuthorization(err) {
		t.Fatalf("err = %v, want authorization", err)
	}
}

func TestRangeReturnsExactSlice(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := s.Accept(ctx, testIdentity(), acceptReq("c1", uuid.NewString())); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}

	resp, err := s.Range(ctx, testIdentity(), &RangeRequest{ConversationID: "c1", StartSeq: 3, EndSeq: 7})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if resp.Count != 5 {
		t.Fatalf("count = %d, want 5", resp.Count)
	}
	for i, m := range resp.Messages {
		if m.Seq != int64(3+i) {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
	}
}

func TestRangeCapEnforcedBeforeStoreWork(t *testing.T) {
	s, st := newTestService()

	_, err := s.Range(context.Background(), testIdentity(),
		&RangeRequest{ConversationID: "c1", StartSeq: 1, EndSeq: RangeMaxSpan + 1})
	if !errors.IsRangeTooLarge(err) {
		t.Fatalf("err = %v, want range-too-large", err)
	}
	if st.rangeCalls != 0 {
		t.Fatalf("store queried %d times for an oversized span", st.rangeCalls)
	}

	// the cap itself is allowed
	if _, err := s.Range(context.Background(), testIdentity(),
		&RangeRequest{ConversationID: "c1", StartSeq: 1, EndSeq: RangeMaxSpan}); err != nil {
		t.Fatalf("exact-cap range rejected: %v", err)
	}
}

func TestRangeValidatesBounds(t *testing.T) {
	s, _ := newTestService()
	_, err := s.Range(context.Background(), testIdentity(),
		&RangeRequest{ConversationID: "c1", StartSeq: 9, EndSeq: 3})
	if !errors.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestPullReturnsMessagesAndReceiptsWithWatermarks(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	var uuids []string
	for i := 0; i < 4; i++ {
		u := uuid.NewString()
		uuids = append(uuids, u)
		if _, err := s.Accept(ctx, testIdentity(), acceptReq("c1", u)); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}
	bob := Identity{TenantID: "t1", UserID: "bob", DeviceUUID: "dev-2"}
	if _, err := s.Receipt(ctx, bob, &ReceiptRequest{
		ConversationID: "c1",
		Receipts:       []ReceiptItem{{MessageUUID: uuids[0], Type: relaymodel.ReceiptTypeDelivered}},
	}); err != nil {
		t.Fatalf("receipt: %v", err)
	}

	resp, err := s.Pull(ctx, testIdentity(), &PullRequest{ConversationID: "c1", SinceSeq: 2})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("%d messages above seq 2, want 2", len(resp.Messages))
	}
	if resp.LastSeq != 4 {
		t.Fatalf("last_seq = %d, want 4", resp.LastSeq)
	}
	if len(resp.Receipts) != 1 || resp.LastReceiptID != resp.Receipts[0].ReceiptID {
		t.Fatalf("receipts = %+v last_receipt_id = %d", resp.Receipts, resp.LastReceiptID)
	}
	if resp.HasMore {
		t.Fatal("has_more set on exhausted conversation")
	}
}

func TestPullClampsLimit(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	u := uuid.NewString()
	if _, err := s.Accept(ctx, testIdentity(), acceptReq("c1", u)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// an absurd limit must not error, just clamp
	resp, err := s.Pull(ctx, testIdentity(), &PullRequest{ConversationID: "c1", Limit: 1 << 30})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("%d messages, want 1", len(resp.Messages))
	}
}

func TestReceiptIdempotentAndCounted(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	u := uuid.NewString()
	if _, err := s.Accept(ctx, testIdentity(), acceptReq("c1", u)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	bob := Identity{TenantID: "t1", UserID: "bob", DeviceUUID: "dev-2"}

	req := &ReceiptRequest{
		ConversationID: "c1",
		Receipts: []ReceiptItem{
			{MessageUUID: u, Type: relaymodel.ReceiptTypeDelivered},
			{MessageUUID: u, Type: relaymodel.ReceiptTypeRead},
		},
	}
	resp, err := s.Receipt(ctx, bob, req)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if resp.NewlyCreated != 2 {
		t.Fatalf("newly created = %d, want 2", resp.NewlyCreated)
	}

	replay, err := s.Receipt(ctx, bob, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.NewlyCreated != 0 {
		t.Fatalf("replay created %d receipts", replay.NewlyCreated)
	}
}

func TestReceiptValidatesTypeAndUUID(t *testing.T) {
	s, _ := newTestService()
	bob := Identity{TenantID: "t1", UserID: "bob", DeviceUUID: "dev-2"}

	_, err := s.Receipt(context.Background(), bob, &ReceiptRequest{
		ConversationID: "c1",
		Receipts:       []ReceiptItem{{MessageUUID: uuid.NewString(), Type: "SEEN"}},
	})
	if !errors.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}

	_, err = s.Receipt(context.Background(), bob, &ReceiptRequest{
		ConversationID: "c1",
		Receipts:       []ReceiptItem{{MessageUUID: "nope", Type: relaymodel.ReceiptTypeRead}},
	})
	if !errors.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}
