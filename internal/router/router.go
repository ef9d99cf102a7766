// Package router is the single entry point for create/update/delete of
// user-owned entities: optimistic local apply, direct remote write when
// online, durable queue fallback otherwise.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"soldi/internal/core"
	"soldi/internal/localview"
	"soldi/internal/remote"
)

// Mode says which path a write took.
type Mode string

const (
	// ModeDirect: the remote confirmed the write immediately.
	ModeDirect Mode = "direct"
	// ModeQueued: the write is durably queued for later sync.
	ModeQueued Mode = "queued"
)

// Result reports where a routed write ended up.
type Result struct {
	Mode     Mode
	RecordID string // set when Mode == ModeQueued
	BatchID  string // set for queued batches
}

// Enqueuer is the slice of the queue service the router uses.
type Enqueuer interface {
	EnqueueSingle(ctx context.Context, req core.WriteRequest) (string, error)
	EnqueueBatch(ctx context.Context, reqs []core.WriteRequest) (string, error)
}

// Router routes writes between the direct remote path and the queue.
type Router struct {
	local  *localview.View
	repo   remote.Repository
	queue  Enqueuer
	online func() bool
}

func NewRouter(local *localview.View, repo remote.Repository, queue Enqueuer, online func() bool) *Router {
	return &Router{local: local, repo: repo, queue: queue, online: online}
}

// Write routes a single write request.
//
// The mutation is applied to the local view first so the UI reflects it with
// zero latency. If the device is online the remote is tried directly; a
// transient failure there falls through to the queue exactly like the offline
// path. The optimistic mutation is rolled back only on a definitive failure:
// a permanent remote rejection, or a queue durability error.
func (r *Router) Write(ctx context.Context, req core.WriteRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid write request: %w", err)
	}

	snap := r.local.Snapshot(req.Collection, req.Entity.ID)
	if err := r.local.Apply(req); err != nil {
		return Result{}, err
	}

	if r.online() {
		err := remote.Apply(ctx, r.repo, req)
		if err == nil {
			return Result{Mode: ModeDirect}, nil
		}
		if remote.IsPermanent(err) {
			r.local.Restore(snap)
			return Result{}, fmt.Errorf("remote rejected write: %w", err)
		}
		slog.WarnContext(ctx, "Direct write failed, falling back to queue",
			"op", string(req.Op),
			"entity_id", req.Entity.ID,
			"error", err)
	}

	recordID, err := r.queue.EnqueueSingle(ctx, req)
	if err != nil {
		// Neither remote nor durably queued: the UI must not keep showing
		// the change.
		r.local.Restore(snap)
		return Result{}, fmt.Errorf("queue write: %w", err)
	}
	return Result{Mode: ModeQueued, RecordID: recordID}, nil
}

// WriteBatch routes several writes produced by one user action. All
// mutations apply optimistically; whatever cannot be written directly is
// queued under a shared batch id. On a durability failure every mutation of
// the batch is rolled back.
func (r *Router) WriteBatch(ctx context.Context, reqs []core.WriteRequest) (Result, error) {
	if len(reqs) == 0 {
		return Result{}, fmt.Errorf("empty batch")
	}
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return Result{}, fmt.Errorf("invalid write request: %w", err)
		}
	}

	snaps := make([]localview.Snapshot, len(reqs))
	for i, req := range reqs {
		snaps[i] = r.local.Snapshot(req.Collection, req.Entity.ID)
		if err := r.local.Apply(req); err != nil {
			r.restore(snaps[:i])
			return Result{}, err
		}
	}

	remaining := reqs
	if r.online() {
		remaining = remaining[:0:0]
		for _, req := range reqs {
			err := remote.Apply(ctx, r.repo, req)
			if err == nil {
				continue
			}
			if remote.IsPermanent(err) {
				// Only this entity is rolled back; the rest of the batch
				// is independent.
				r.local.Restore(r.snapshotFor(snaps, reqs, req))
				slog.WarnContext(ctx, "Batch entry rejected by remote",
					"entity_id", req.Entity.ID,
					"error", err)
				continue
			}
			remaining = append(remaining, req)
		}
		if len(remaining) == 0 {
			return Result{Mode: ModeDirect}, nil
		}
	}

	batchID, err := r.queue.EnqueueBatch(ctx, remaining)
	if err != nil {
		r.restore(snaps)
		return Result{}, fmt.Errorf("queue batch: %w", err)
	}
	return Result{Mode: ModeQueued, BatchID: batchID}, nil
}

func (r *Router) restore(snaps []localview.Snapshot) {
	// Reverse order so overlapping snapshots unwind correctly.
	for i := len(snaps) - 1; i >= 0; i-- {
		r.local.Restore(snaps[i])
	}
}

func (r *Router) snapshotFor(snaps []localview.Snapshot, reqs []core.WriteRequest, target core.WriteRequest) localview.Snapshot {
	for i, req := range reqs {
		if req.Entity.ID == target.Entity.ID && req.Collection == target.Collection {
			return snaps[i]
		}
	}
	return localview.Snapshot{Collection: target.Collection, ID: target.Entity.ID}
}
