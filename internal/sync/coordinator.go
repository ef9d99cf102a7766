// Package sync exposes the aggregate synchronization status of the write
// queue as a small state machine the presentation layer can render directly.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"soldi/internal/queue"
)

// Phase is the user-visible sync state.
type Phase string

const (
	// PhaseIdle: nothing queued, nothing to report.
	PhaseIdle Phase = "idle"
	// PhasePending: records are queued, no drain pass is running.
	PhasePending Phase = "pending"
	// PhaseSyncing: a drain pass is in progress.
	PhaseSyncing Phase = "syncing"
	// PhaseSynced: the queue just drained; transient display state.
	PhaseSynced Phase = "synced"
	// PhaseError: one or more records failed permanently.
	PhaseError Phase = "error"
)

// State is the read-only snapshot exposed to the UI.
type State struct {
	Phase        Phase
	PendingCount int
	FailedCount  int
	LastSyncedAt time.Time
	LastError    string
}

// Queue is the slice of the queue service the coordinator drives.
type Queue interface {
	ProcessQueue(ctx context.Context) error
	RetryAll(ctx context.Context) error
	PurgeFailed(ctx context.Context) error
	Counts(ctx context.Context) (pending, failed int, err error)
	Events() <-chan queue.Event
}

// Connectivity is the slice of the monitor the coordinator consumes.
type Connectivity interface {
	IsOnline() bool
	Subscribe() <-chan bool
}

// Config holds coordinator tuning.
type Config struct {
	// SyncedDisplay is how long the transient synced phase is shown before
	// reverting to idle (default: 3s).
	SyncedDisplay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{SyncedDisplay: 3 * time.Second}
}

// Coordinator folds queue events and connectivity transitions into the
// phase machine and triggers drain passes on connectivity regain and when
// records are queued while the device is online.
type Coordinator struct {
	queue   Queue
	monitor Connectivity
	config  Config

	mu          gosync.Mutex
	state       State
	revertTimer *time.Timer

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCoordinator creates a coordinator in the idle phase.
func NewCoordinator(q Queue, monitor Connectivity, config Config) *Coordinator {
	if config.SyncedDisplay <= 0 {
		config.SyncedDisplay = DefaultConfig().SyncedDisplay
	}
	return &Coordinator{
		queue:   q,
		monitor: monitor,
		config:  config,
		state:   State{Phase: PhaseIdle},
	}
}

// Start seeds the state from the store and begins consuming events. If
// records are already outstanding and the device is online, a drain pass is
// triggered immediately (restart recovery).
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("sync coordinator is already running")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	pending, failed, err := c.queue.Counts(ctx)
	if err != nil {
		return fmt.Errorf("seed sync state: %w", err)
	}
	c.mu.Lock()
	c.state.PendingCount = pending
	c.state.FailedCount = failed
	if pending > 0 {
		c.state.Phase = PhasePending
	} else if failed > 0 {
		c.state.Phase = PhaseError
	}
	c.mu.Unlock()

	go c.runLoop(ctx)

	if pending > 0 && c.monitor.IsOnline() {
		go c.drain(ctx)
	}

	slog.InfoContext(ctx, "Sync coordinator started",
		"phase", c.State().Phase,
		"pending", pending,
		"failed", failed)

	return nil
}

// Stop halts event consumption.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	close(c.stopCh)

	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.running = false
	if c.revertTimer != nil {
		c.revertTimer.Stop()
		c.revertTimer = nil
	}
	c.mu.Unlock()

	return nil
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryAll resets failed records and drains the queue. Exposed as a UI
// action.
func (c *Coordinator) RetryAll(ctx context.Context) error {
	c.mu.Lock()
	c.state.LastError = ""
	if c.state.Phase == PhaseError {
		c.state.Phase = PhasePending
	}
	c.mu.Unlock()
	return c.queue.RetryAll(ctx)
}

// DismissError purges failed records and clears the error indicator.
func (c *Coordinator) DismissError(ctx context.Context) error {
	if err := c.queue.PurgeFailed(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.LastError = ""
	if c.state.Phase == PhaseError {
		if c.state.PendingCount > 0 {
			c.state.Phase = PhasePending
		} else {
			c.state.Phase = PhaseIdle
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) runLoop(ctx context.Context) {
	defer close(c.doneCh)

	connCh := c.monitor.Subscribe()
	events := c.queue.Events()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case online := <-connCh:
			if online {
				c.onOnline(ctx)
			}
		case ev := <-events:
			c.onEvent(ctx, ev)
		}
	}
}

// onOnline reacts to a connectivity regain: any outstanding records start
// draining.
func (c *Coordinator) onOnline(ctx context.Context) {
	c.mu.Lock()
	pending := c.state.PendingCount
	c.mu.Unlock()
	if pending == 0 {
		return
	}
	slog.InfoContext(ctx, "Connectivity regained, draining queue", "pending", pending)
	go c.drain(ctx)
}

func (c *Coordinator) drain(ctx context.Context) {
	if err := c.queue.ProcessQueue(ctx); err != nil {
		slog.ErrorContext(ctx, "Queue drain failed", "error", err)
	}
}

// onEvent folds one queue event into the phase machine.
func (c *Coordinator) onEvent(ctx context.Context, ev queue.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.PendingCount = ev.Pending
	c.state.FailedCount = ev.Failed
	if ev.LastError != "" {
		c.state.LastError = ev.LastError
	}

	prev := c.state.Phase
	switch ev.Kind {
	case queue.EventQueueChanged:
		if ev.Pending > 0 && prev != PhaseSyncing {
			c.state.Phase = PhasePending
		} else if ev.Pending == 0 && ev.Failed == 0 && prev != PhaseSyncing {
			c.state.Phase = PhaseIdle
		}
		// A write can land in the queue without connectivity ever dropping
		// (a direct write falls back on a transient remote failure). No
		// offline->online transition will arrive, so the drain starts here;
		// the queue's single-flight guard absorbs redundant triggers.
		if ev.Pending > 0 && c.monitor.IsOnline() {
			go c.drain(ctx)
		}
	case queue.EventPassStarted:
		c.state.Phase = PhaseSyncing
	case queue.EventRecordSynced, queue.EventRecordFailed:
		// Counters already updated; phase unchanged mid-pass.
	case queue.EventPassCompleted:
		switch {
		case ev.Failed > 0 && ev.Pending == 0:
			c.state.Phase = PhaseError
		case ev.Pending > 0:
			// Records await their backoff window.
			c.state.Phase = PhasePending
		default:
			c.state.Phase = PhaseSynced
			c.state.LastSyncedAt = time.Now()
			c.scheduleRevertLocked()
		}
	case queue.EventPassInterrupted:
		if ev.Pending > 0 {
			c.state.Phase = PhasePending
		}
	}

	if c.state.Phase != prev {
		slog.DebugContext(ctx, "Sync phase changed",
			"from", string(prev),
			"to", string(c.state.Phase),
			"pending", ev.Pending,
			"failed", ev.Failed)
	}
}

// scheduleRevertLocked arms the synced->idle display timer. Caller holds mu.
func (c *Coordinator) scheduleRevertLocked() {
	if c.revertTimer != nil {
		c.revertTimer.Stop()
	}
	c.revertTimer = time.AfterFunc(c.config.SyncedDisplay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Phase == PhaseSynced {
			c.state.Phase = PhaseIdle
		}
	})
}
