package router

import (
	"context"
	"errors"
	"testing"

	"soldi/internal/core"
	"soldi/internal/localview"
	"soldi/internal/remote"
	remotemem "soldi/internal/remote/memory"
)

type fakeEnqueuer struct {
	singles []core.WriteRequest
	batches [][]core.WriteRequest
	err     error
}

func (f *fakeEnqueuer) EnqueueSingle(_ context.Context, req core.WriteRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.singles = append(f.singles, req)
	return "rec-1", nil
}

func (f *fakeEnqueuer) EnqueueBatch(_ context.Context, reqs []core.WriteRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.batches = append(f.batches, reqs)
	return "batch-1", nil
}

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Date:        core.NewDate(2026, 8, 24),
		Description: "Lunch",
		Amount:      core.MoneyFromCents(1250),
		Kind:        core.Expense,
		Primary:     "Food",
	}
}

func createReq(id string) core.WriteRequest {
	return core.WriteRequest{Op: core.OpCreate, Collection: "transactions", Entity: sampleTx(id)}
}

func TestOnlineDirectWrite(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	q := &fakeEnqueuer{}
	r := NewRouter(local, repo, q, func() bool { return true })

	res, err := r.Write(context.Background(), createReq("a"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Mode != ModeDirect {
		t.Errorf("expected direct mode, got %s", res.Mode)
	}
	if _, ok := repo.Get("transactions", "a"); !ok {
		t.Error("expected entity on remote")
	}
	if _, ok := local.Get("transactions", "a"); !ok {
		t.Error("expected optimistic entity in local view")
	}
	if len(q.singles) != 0 {
		t.Error("direct write should not touch the queue")
	}
}

func TestOfflineWriteIsQueued(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	q := &fakeEnqueuer{}
	r := NewRouter(local, repo, q, func() bool { return false })

	res, err := r.Write(context.Background(), createReq("a"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Mode != ModeQueued || res.RecordID == "" {
		t.Errorf("expected queued mode with record id, got %+v", res)
	}
	if repo.Calls() != 0 {
		t.Error("offline write should not touch the remote")
	}
	if _, ok := local.Get("transactions", "a"); !ok {
		t.Error("optimistic entity should remain in local view")
	}
}

func TestTransientDirectFailureFallsBackToQueue(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	repo.FailWith(remote.Transient(errors.New("connection reset")))
	q := &fakeEnqueuer{}
	r := NewRouter(local, repo, q, func() bool { return true })

	res, err := r.Write(context.Background(), createReq("a"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Mode != ModeQueued {
		t.Errorf("expected queued fallback, got %s", res.Mode)
	}
	// The optimistic entry is preserved, not reverted.
	if _, ok := local.Get("transactions", "a"); !ok {
		t.Error("optimistic entity should survive the fallback")
	}
}

func TestPermanentDirectFailureRollsBack(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	repo.FailWith(remote.Permanent(errors.New("invalid category")))
	q := &fakeEnqueuer{}
	r := NewRouter(local, repo, q, func() bool { return true })

	_, err := r.Write(context.Background(), createReq("a"))
	if err == nil {
		t.Fatal("expected error for permanent rejection")
	}
	if _, ok := local.Get("transactions", "a"); ok {
		t.Error("optimistic entity should be rolled back")
	}
	if len(q.singles) != 0 {
		t.Error("permanently rejected write should not be queued")
	}
}

func TestDurabilityFailureRollsBack(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	q := &fakeEnqueuer{err: errors.New("disk full")}
	r := NewRouter(local, repo, q, func() bool { return false })

	_, err := r.Write(context.Background(), createReq("a"))
	if err == nil {
		t.Fatal("expected error when the write cannot be queued")
	}
	if _, ok := local.Get("transactions", "a"); ok {
		t.Error("unqueued write must not remain visible in local view")
	}
}

func TestUpdateRollbackRestoresExactPriorState(t *testing.T) {
	local := localview.New()
	original := sampleTx("a")
	if err := local.Apply(core.WriteRequest{Op: core.OpCreate, Collection: "transactions", Entity: original}); err != nil {
		t.Fatalf("seed local view: %v", err)
	}

	repo := remotemem.New()
	repo.FailWith(remote.Permanent(errors.New("rejected")))
	r := NewRouter(local, repo, &fakeEnqueuer{}, func() bool { return true })

	updated := original
	updated.Description = "Dinner"
	_, err := r.Write(context.Background(), core.WriteRequest{Op: core.OpUpdate, Collection: "transactions", Entity: updated})
	if err == nil {
		t.Fatal("expected error")
	}

	got, ok := local.Get("transactions", "a")
	if !ok {
		t.Fatal("entity should still exist after rollback")
	}
	if got.Description != original.Description {
		t.Errorf("expected description %q restored, got %q", original.Description, got.Description)
	}
}

func TestOfflineBatchQueuedTogether(t *testing.T) {
	local := localview.New()
	q := &fakeEnqueuer{}
	r := NewRouter(local, remotemem.New(), q, func() bool { return false })

	reqs := []core.WriteRequest{createReq("a"), createReq("b"), createReq("c")}
	res, err := r.WriteBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if res.Mode != ModeQueued || res.BatchID == "" {
		t.Errorf("expected queued batch, got %+v", res)
	}
	if len(q.batches) != 1 || len(q.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %+v", q.batches)
	}
	// Enqueue order matches argument order.
	for i, id := range []string{"a", "b", "c"} {
		if q.batches[0][i].Entity.ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, q.batches[0][i].Entity.ID)
		}
	}
}

func TestOnlineBatchQueuesOnlyFailures(t *testing.T) {
	local := localview.New()
	repo := remotemem.New()
	// First write succeeds, second hits a transient failure.
	repo.FailWith(nil, remote.Transient(errors.New("timeout")))
	q := &fakeEnqueuer{}
	r := NewRouter(local, repo, q, func() bool { return true })

	res, err := r.WriteBatch(context.Background(), []core.WriteRequest{createReq("a"), createReq("b")})
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if res.Mode != ModeQueued {
		t.Errorf("expected queued mode, got %s", res.Mode)
	}
	if len(q.batches) != 1 || len(q.batches[0]) != 1 || q.batches[0][0].Entity.ID != "b" {
		t.Errorf("expected only the failed write queued, got %+v", q.batches)
	}
}

func TestBatchDurabilityFailureRollsBackAll(t *testing.T) {
	local := localview.New()
	q := &fakeEnqueuer{err: errors.New("disk full")}
	r := NewRouter(local, remotemem.New(), q, func() bool { return false })

	_, err := r.WriteBatch(context.Background(), []core.WriteRequest{createReq("a"), createReq("b")})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := local.Get("transactions", "a"); ok {
		t.Error("entity a should be rolled back")
	}
	if _, ok := local.Get("transactions", "b"); ok {
		t.Error("entity b should be rolled back")
	}
}
