package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"soldi/internal/queue"
)

// fakeQueue scripts queue behavior and exposes a hand-fed event channel.
type fakeQueue struct {
	mu       sync.Mutex
	pending  int
	failed   int
	events   chan queue.Event
	processN int
	retryN   int
	purgeN   int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{events: make(chan queue.Event, 16)}
}

func (q *fakeQueue) ProcessQueue(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processN++
	return nil
}

func (q *fakeQueue) RetryAll(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryN++
	return nil
}

func (q *fakeQueue) PurgeFailed(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeN++
	q.failed = 0
	return nil
}

func (q *fakeQueue) Counts(context.Context) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending, q.failed, nil
}

func (q *fakeQueue) Events() <-chan queue.Event { return q.events }

func (q *fakeQueue) processCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processN
}

func (q *fakeQueue) retryCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retryN
}

func (q *fakeQueue) purgeCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purgeN
}

type fakeMonitor struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{online: online, ch: make(chan bool, 4)}
}

func (m *fakeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Subscribe() <-chan bool { return m.ch }

func (m *fakeMonitor) setOnline(v bool) {
	m.mu.Lock()
	m.online = v
	m.mu.Unlock()
	m.ch <- v
}

func startCoordinator(t *testing.T, q Queue, m Connectivity, cfg Config) *Coordinator {
	t.Helper()
	c := NewCoordinator(q, m, cfg)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start coordinator: %v", err)
	}
	t.Cleanup(func() { c.Stop(ctx) })
	return c
}

func waitForPhase(t *testing.T, c *Coordinator, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State().Phase == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, stuck at %s", want, c.State().Phase)
}

func TestStartsIdle(t *testing.T) {
	c := startCoordinator(t, newFakeQueue(), newFakeMonitor(false), Config{})
	if got := c.State().Phase; got != PhaseIdle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestEnqueueMovesIdleToPending(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{})

	q.events <- queue.Event{Kind: queue.EventQueueChanged, Pending: 1}
	waitForPhase(t, c, PhasePending)

	if st := c.State(); st.PendingCount != 1 {
		t.Errorf("expected pendingCount 1, got %d", st.PendingCount)
	}
}

func TestFullDrainCycle(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{SyncedDisplay: 30 * time.Millisecond})

	q.events <- queue.Event{Kind: queue.EventQueueChanged, Pending: 3}
	waitForPhase(t, c, PhasePending)

	q.events <- queue.Event{Kind: queue.EventPassStarted, Pending: 3}
	waitForPhase(t, c, PhaseSyncing)

	q.events <- queue.Event{Kind: queue.EventPassCompleted, Pending: 0, Failed: 0}
	waitForPhase(t, c, PhaseSynced)

	if c.State().LastSyncedAt.IsZero() {
		t.Error("expected lastSyncedAt to be set")
	}

	// synced is transient and reverts to idle.
	waitForPhase(t, c, PhaseIdle)
}

func TestFailedRecordsEndInError(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{})

	q.events <- queue.Event{Kind: queue.EventPassStarted, Pending: 1}
	waitForPhase(t, c, PhaseSyncing)

	q.events <- queue.Event{Kind: queue.EventPassCompleted, Pending: 0, Failed: 1, LastError: "invalid amount"}
	waitForPhase(t, c, PhaseError)

	st := c.State()
	if st.FailedCount != 1 || st.LastError != "invalid amount" {
		t.Errorf("unexpected error state: %+v", st)
	}
}

func TestInterruptedPassReturnsToPending(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{})

	q.events <- queue.Event{Kind: queue.EventPassStarted, Pending: 2}
	waitForPhase(t, c, PhaseSyncing)

	q.events <- queue.Event{Kind: queue.EventPassInterrupted, Pending: 2}
	waitForPhase(t, c, PhasePending)
}

func TestConnectivityRegainTriggersDrain(t *testing.T) {
	q := newFakeQueue()
	q.pending = 2
	m := newFakeMonitor(false)
	c := startCoordinator(t, q, m, Config{})

	if got := c.State().Phase; got != PhasePending {
		t.Fatalf("expected pending at startup with queued records, got %s", got)
	}

	m.setOnline(true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.processCalls() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected ProcessQueue to be triggered on connectivity regain")
}

func TestStartupDrainWhenAlreadyOnline(t *testing.T) {
	q := newFakeQueue()
	q.pending = 2
	m := newFakeMonitor(true)
	startCoordinator(t, q, m, Config{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.processCalls() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected ProcessQueue at startup when online with pending records")
}

func TestEnqueueWhileOnlineTriggersDrain(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(true), Config{})

	// A direct write fell back to the queue without connectivity ever
	// dropping, so no offline->online transition will arrive.
	q.events <- queue.Event{Kind: queue.EventQueueChanged, Pending: 1}
	waitForPhase(t, c, PhasePending)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.processCalls() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a drain pass for a record queued while online")
}

func TestEnqueueWhileOfflineDoesNotDrain(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{})

	q.events <- queue.Event{Kind: queue.EventQueueChanged, Pending: 1}
	waitForPhase(t, c, PhasePending)

	time.Sleep(50 * time.Millisecond)
	if q.processCalls() != 0 {
		t.Errorf("offline enqueue must not trigger a pass, got %d calls", q.processCalls())
	}
}

func TestRetryAllClearsError(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(true), Config{})

	q.events <- queue.Event{Kind: queue.EventPassStarted, Pending: 1}
	q.events <- queue.Event{Kind: queue.EventPassCompleted, Failed: 1, LastError: "boom"}
	waitForPhase(t, c, PhaseError)

	if err := c.RetryAll(context.Background()); err != nil {
		t.Fatalf("retry all: %v", err)
	}
	if q.retryCalls() != 1 {
		t.Errorf("expected RetryAll delegated to queue, got %d calls", q.retryCalls())
	}
	if st := c.State(); st.LastError != "" || st.Phase == PhaseError {
		t.Errorf("expected error cleared, got %+v", st)
	}
}

func TestDismissErrorPurges(t *testing.T) {
	q := newFakeQueue()
	c := startCoordinator(t, q, newFakeMonitor(false), Config{})

	q.events <- queue.Event{Kind: queue.EventPassStarted, Pending: 1}
	q.events <- queue.Event{Kind: queue.EventPassCompleted, Failed: 1, LastError: "boom"}
	waitForPhase(t, c, PhaseError)

	if err := c.DismissError(context.Background()); err != nil {
		t.Fatalf("dismiss error: %v", err)
	}
	if q.purgeCalls() != 1 {
		t.Errorf("expected PurgeFailed delegated to queue, got %d calls", q.purgeCalls())
	}
	waitForPhase(t, c, PhaseIdle)
}
