// Package queue orchestrates durable enqueue, retry with backoff, and remote
// dispatch of writes recorded while the device could not reach the backend.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"soldi/internal/core"
	"soldi/internal/remote"
	"soldi/internal/storage"
)

// EventKind identifies a queue lifecycle notification.
type EventKind int

const (
	// EventQueueChanged fires when the queue contents change outside a drain
	// pass: enqueue, user retry reset, purge, startup recovery.
	EventQueueChanged EventKind = iota
	// EventPassStarted fires when a drain pass begins.
	EventPassStarted
	// EventRecordSynced fires after a confirmed remote success.
	EventRecordSynced
	// EventRecordFailed fires when a record is parked as failed.
	EventRecordFailed
	// EventPassCompleted fires when a pass ends; counters tell whether the
	// queue drained, parked failures, or still holds records awaiting
	// backoff.
	EventPassCompleted
	// EventPassInterrupted fires when a pass stops early with records still
	// outstanding, e.g. connectivity dropped between records.
	EventPassInterrupted
)

// Event reports a queue state change together with fresh counters.
type Event struct {
	Kind      EventKind
	Pending   int
	Failed    int
	LastError string
}

// Config holds queue tuning.
type Config struct {
	// BackoffCap bounds the exponential retry delay (default: 60s).
	BackoffCap time.Duration

	// EventBuffer sizes the event channel (default: 64).
	EventBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BackoffCap:  60 * time.Second,
		EventBuffer: 64,
	}
}

// Service owns all mutation of the durable queue store. It is safe for
// concurrent use; ProcessQueue is single-flight with run-again coalescing.
type Service struct {
	store  *storage.QueueStore
	repo   remote.Repository
	online func() bool
	config Config

	mu         sync.Mutex
	processing bool
	runAgain   bool
	timers     map[string]*time.Timer
	closed     bool

	events chan Event
}

// NewService creates a queue service. online reports current connectivity; a
// drain pass checks it cooperatively between records.
func NewService(store *storage.QueueStore, repo remote.Repository, online func() bool, config Config) *Service {
	if config.BackoffCap <= 0 {
		config.BackoffCap = DefaultConfig().BackoffCap
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultConfig().EventBuffer
	}
	if online == nil {
		online = func() bool { return true }
	}
	return &Service{
		store:  store,
		repo:   repo,
		online: online,
		config: config,
		timers: make(map[string]*time.Timer),
		events: make(chan Event, config.EventBuffer),
	}
}

// Events returns the queue's notification stream. Consumed by the sync
// coordinator; events are dropped rather than blocking the queue when the
// buffer is full.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Recover reloads the working set after a restart: records stuck in syncing
// from a crashed pass return to pending. Call once at startup before
// ProcessQueue.
func (s *Service) Recover(ctx context.Context) error {
	n, err := s.store.ResetStaleSyncing(ctx)
	if err != nil {
		return fmt.Errorf("reset stale records: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Recovered stale syncing records", "count", n)
	}
	s.emit(ctx, EventQueueChanged, "")
	return nil
}

// EnqueueSingle durably records one write intent and returns its record id.
// It never touches the network; the caller gets an acknowledgment only after
// the record reached disk.
func (s *Service) EnqueueSingle(ctx context.Context, req core.WriteRequest) (string, error) {
	ids, err := s.enqueue(ctx, "", req)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueBatch records several writes under a shared batch id. Records are
// persisted in argument order and remain individually retryable.
func (s *Service) EnqueueBatch(ctx context.Context, reqs []core.WriteRequest) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("empty batch")
	}
	batchID := uuid.NewString()
	if _, err := s.enqueue(ctx, batchID, reqs...); err != nil {
		return "", err
	}
	return batchID, nil
}

func (s *Service) enqueue(ctx context.Context, batchID string, reqs ...core.WriteRequest) ([]string, error) {
	now := time.Now()
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid write request: %w", err)
		}
		rec, err := newRecord(uuid.NewString(), batchID, req, now)
		if err != nil {
			return nil, err
		}
		// A Put failure is a durability error: no safety guarantee can be
		// made for this write, so it propagates to the caller unqueued.
		if err := s.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist queued write: %w", err)
		}
		ids = append(ids, rec.ID)

		slog.InfoContext(ctx, "Write queued",
			"record_id", rec.ID,
			"batch_id", batchID,
			"op", rec.Op,
			"collection", rec.Collection)
	}
	s.emit(ctx, EventQueueChanged, "")
	return ids, nil
}

// ProcessQueue drains due pending records against the remote repository. A
// call made while a pass is running is coalesced into one more pass after the
// current one finishes; two passes never run concurrently.
func (s *Service) ProcessQueue(ctx context.Context) error {
	s.mu.Lock()
	if s.processing {
		s.runAgain = true
		s.mu.Unlock()
		return nil
	}
	s.processing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	for {
		if err := s.runPass(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		again := s.runAgain
		s.runAgain = false
		s.mu.Unlock()
		if !again {
			return nil
		}
	}
}

// RetryAll returns every failed record to pending with a fresh attempt budget
// and drains the queue.
func (s *Service) RetryAll(ctx context.Context) error {
	n, err := s.store.ResetFailed(ctx)
	if err != nil {
		return fmt.Errorf("reset failed records: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Failed records reset for retry", "count", n)
	}
	s.emit(ctx, EventQueueChanged, "")
	return s.ProcessQueue(ctx)
}

// PurgeFailed removes all failed records. Backs the user-facing dismiss.
func (s *Service) PurgeFailed(ctx context.Context) error {
	n, err := s.store.PurgeFailed(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Failed records purged", "count", n)
	}
	s.emit(ctx, EventQueueChanged, "")
	return nil
}

// Records returns the current queue contents for the details view.
func (s *Service) Records(ctx context.Context) ([]storage.QueuedWrite, error) {
	return s.store.GetAll(ctx)
}

// Counts returns the number of pending (including in-flight) and failed
// records.
func (s *Service) Counts(ctx context.Context) (pending, failed int, err error) {
	p, syncing, f, err := s.store.Counts(ctx)
	return p + syncing, f, err
}

// Close cancels scheduled retry timers.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// runPass makes one attempt over the currently due records.
func (s *Service) runPass(ctx context.Context) error {
	records, err := s.store.GetByStatus(ctx, storage.StatusPending)
	if err != nil {
		return fmt.Errorf("load pending records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	s.emit(ctx, EventPassStarted, "")
	slog.DebugContext(ctx, "Queue pass started", "pending", len(records))

	now := time.Now()
	var lastErr string
	for i, rec := range records {
		// Connectivity is checked cooperatively between records; an
		// in-flight remote call is never cancelled mid-request.
		if ctx.Err() != nil || !s.online() {
			s.emit(ctx, EventPassInterrupted, lastErr)
			slog.InfoContext(ctx, "Queue pass interrupted", "remaining", len(records)-i)
			return nil
		}

		if !rec.NextAttemptAt.IsZero() && rec.NextAttemptAt.After(now) {
			s.scheduleKick(rec.ID, time.Until(rec.NextAttemptAt))
			continue
		}

		if err := s.processRecord(ctx, rec); err != nil {
			lastErr = err.Error()
		}
	}

	s.emit(ctx, EventPassCompleted, lastErr)
	return nil
}

// processRecord makes one remote attempt for a single record. The returned
// error reports the remote failure; store bookkeeping errors are logged, not
// propagated, so one bad record cannot stall the pass.
func (s *Service) processRecord(ctx context.Context, rec storage.QueuedWrite) error {
	if err := s.store.MarkSyncing(ctx, rec.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark record syncing", "record_id", rec.ID, "error", err)
		return nil
	}

	req, err := requestFromRecord(rec)
	if err == nil {
		err = remote.Apply(ctx, s.repo, req)
	} else {
		// An undecodable payload can never succeed remotely.
		err = remote.Permanent(err)
	}

	if err == nil {
		if err := s.store.Remove(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to remove synced record", "record_id", rec.ID, "error", err)
			return nil
		}
		slog.InfoContext(ctx, "Record synced",
			"record_id", rec.ID,
			"op", rec.Op,
			"attempt", rec.AttemptCount+1)
		s.emit(ctx, EventRecordSynced, "")
		return nil
	}

	attempts := rec.AttemptCount + 1

	// Permanent rejections are parked immediately instead of burning the
	// retry budget on a write that can never succeed. The record is marked
	// with a spent budget so it is excluded from automatic retry exactly
	// like a capped-out one.
	if remote.IsPermanent(err) {
		attempts = storage.MaxAttempts
	}
	if attempts >= storage.MaxAttempts {
		if markErr := s.store.MarkFailed(ctx, rec.ID, attempts, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark record failed", "record_id", rec.ID, "error", markErr)
		}
		slog.ErrorContext(ctx, "Record failed permanently",
			"record_id", rec.ID,
			"op", rec.Op,
			"attempts", attempts,
			"error", err)
		s.emit(ctx, EventRecordFailed, err.Error())
		return err
	}

	delay := backoffDelay(attempts, s.config.BackoffCap)
	next := time.Now().Add(delay)
	if markErr := s.store.MarkRetry(ctx, rec.ID, attempts, err.Error(), next); markErr != nil {
		slog.ErrorContext(ctx, "Failed to record retry", "record_id", rec.ID, "error", markErr)
		return err
	}
	s.scheduleKick(rec.ID, delay)

	slog.WarnContext(ctx, "Record attempt failed, retry scheduled",
		"record_id", rec.ID,
		"attempt", attempts,
		"delay", delay,
		"error", err)
	return err
}

// backoffDelay computes min(2^attempts seconds, limit).
func backoffDelay(attempts int, limit time.Duration) time.Duration {
	if attempts > 30 {
		return limit
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > limit {
		return limit
	}
	return d
}

// scheduleKick arms a one-shot timer that re-runs ProcessQueue once a
// record's backoff delay elapses. One timer per record, replaced on
// reschedule.
func (s *Service) scheduleKick(recordID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[recordID]; ok {
		t.Stop()
	}
	s.timers[recordID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, recordID)
		closed := s.closed
		s.mu.Unlock()
		if closed || !s.online() {
			return
		}
		if err := s.ProcessQueue(context.Background()); err != nil {
			slog.Error("Scheduled queue pass failed", "error", err)
		}
	})
}

// emit publishes an event with fresh counters, dropping it if nobody drains
// the channel fast enough.
func (s *Service) emit(ctx context.Context, kind EventKind, lastErr string) {
	pending, failed, err := s.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read queue counts", "error", err)
		return
	}
	ev := Event{Kind: kind, Pending: pending, Failed: failed, LastError: lastErr}
	select {
	case s.events <- ev:
	default:
	}
}
