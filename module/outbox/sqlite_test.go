package outbox

import (
	"context"
	"testing"

	errors "RProject/tools/errs"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queued(uuid, conv string, localSeq, nowMS int64) *Message {
	return &Message{
		MessageUUID:    uuid,
		ConversationID: conv,
		RecipientID:    "bob",
		Payload:        []byte("ciphertext"),
		LocalSeq:       localSeq,
		State:          StateQueued,
		NextEligibleMS: nowMS,
		CreateTimeMS:   nowMS,
	}
}

func TestSQLStoreInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, queued("u1", "c1", 1, 100)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	m, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m == nil || m.ConversationID != "c1" || m.LocalSeq != 1 || m.State != StateQueued {
		t.Fatalf("roundtrip mismatch: %+v", m)
	}
	if string(m.Payload) != "ciphertext" {
		t.Fatalf("payload lost: %q", m.Payload)
	}

	if m, err := s.Get(ctx, "missing"); err != nil || m != nil {
		t.Fatalf("missing record: m=%v err=%v", m, err)
	}
}

func TestSQLStoreDuplicateInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, queued("u1", "c1", 1, 100)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Insert(ctx, queued("u1", "c1", 2, 200))
	if errors.CodeOf(err) != errors.CodeRecordExists {
		t.Fatalf("duplicate insert error = %v, want record-exists", err)
	}
}

func TestSQLStoreEligibleOrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Insert(ctx, queued("u3", "c1", 3, 100)))
	must(s.Insert(ctx, queued("u1", "c1", 1, 100)))
	must(s.Insert(ctx, queued("u2", "c1", 2, 500))) // not yet eligible
	must(s.Insert(ctx, queued("u4", "c1", 4, 100)))

	// terminal records are never eligible
	if ok, err := s.AcquireLease(ctx, "u4", "tok", 100, 200); err != nil || !ok {
		t.Fatalf("lease: ok=%v err=%v", ok, err)
	}
	must(s.MarkFailed(ctx, "u4", "tok", 11, 100, "boom", true))

	got, err := s.Eligible(ctx, 100)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(got) != 2 || got[0].MessageUUID != "u1" || got[1].MessageUUID != "u3" {
		t.Fatalf("eligible = %+v, want [u1 u3] by local_seq", got)
	}
}

func TestSQLStoreLeaseCAS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, queued("u1", "c1", 1, 100)); err != nil {
		t.Fatal(err)
	}

	ok, err := s.AcquireLease(ctx, "u1", "tokA", 100, 10_000)
	if err != nil || !ok {
		t.Fatalf("first lease: ok=%v err=%v", ok, err)
	}
	// live lease blocks a second owner
	if ok, _ := s.AcquireLease(ctx, "u1", "tokB", 200, 10_000); ok {
		t.Fatal("second lease acquired while first still live")
	}
	// expired lease is taken over
	if ok, _ := s.AcquireLease(ctx, "u1", "tokC", 20_000, 30_000); !ok {
		t.Fatal("expired lease not taken over")
	}

	// the old owner's token no longer resolves the record
	if err := s.Remove(ctx, "u1", "tokA"); err != nil {
		t.Fatalf("remove with stale token: %v", err)
	}
	if m, _ := s.Get(ctx, "u1"); m == nil {
		t.Fatal("stale token removed the record")
	}
	if err := s.Remove(ctx, "u1", "tokC"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m, _ := s.Get(ctx, "u1"); m != nil {
		t.Fatal("record still present after owner removal")
	}
}

func TestSQLStoreMarkFailedClearsLease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, queued("u1", "c1", 1, 100)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireLease(ctx, "u1", "tok", 100, 10_000); !ok {
		t.Fatal("lease failed")
	}
	if err := s.MarkFailed(ctx, "u1", "tok", 1, 5_100, "relay down", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	m, _ := s.Get(ctx, "u1")
	if m.State != StateFailedRetry || m.RetryCount != 1 || m.NextEligibleMS != 5_100 {
		t.Fatalf("record after failure: %+v", m)
	}
	if m.LeaseToken != "" || m.LeaseExpireMS != 0 {
		t.Fatalf("lease not cleared: %+v", m)
	}
	if m.LastError != "relay down" {
		t.Fatalf("last error = %q", m.LastError)
	}
}

func TestSQLStoreSoonestEligible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.SoonestEligible(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Insert(ctx, queued("u1", "c1", 1, 5_000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, queued("u2", "c1", 2, 3_000)); err != nil {
		t.Fatal(err)
	}
	soonest, ok, err := s.SoonestEligible(ctx)
	if err != nil || !ok || soonest != 3_000 {
		t.Fatalf("soonest = %d ok=%v err=%v, want 3000", soonest, ok, err)
	}
}

func TestSQLStoreSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/outbox.db"
	s, err := OpenSQL(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := s.Insert(ctx, queued("u1", "c1", 1, 100)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := OpenSQL(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	m, err := s2.Get(ctx, "u1")
	if err != nil || m == nil {
		t.Fatalf("record lost across reopen: m=%v err=%v", m, err)
	}
}
