// Package connectivity reports whether the remote backend is reachable and
// publishes debounced online/offline transitions.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Probe answers a single reachability check. Implementations should return
// quickly; the monitor calls it on every poll tick.
type Probe interface {
	Online(ctx context.Context) bool
}

// DialProbe checks reachability by opening a TCP connection to a well-known
// address.
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Config holds monitor tuning.
type Config struct {
	// PollInterval is how often the probe runs (default: 5s).
	PollInterval time.Duration

	// Debounce is how long a raw transition must hold before it is
	// published to subscribers. Flaps shorter than this are swallowed
	// (default: 2s).
	Debounce time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Debounce:     2 * time.Second,
	}
}

// Monitor polls a probe and exposes the debounced connectivity state.
type Monitor struct {
	probe  Probe
	config Config

	mu             sync.Mutex
	online         bool
	candidate      bool
	candidateSince time.Time
	subs           []chan bool

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a monitor with the given probe. The initial published
// state is offline until the first successful poll.
func NewMonitor(probe Probe, config Config) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.Debounce < 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	return &Monitor{probe: probe, config: config}
}

// Start begins polling. Returns an error if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connectivity monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	// Seed state synchronously so IsOnline is meaningful right after Start.
	initial := m.probe.Online(ctx)
	m.mu.Lock()
	m.online = initial
	m.candidate = initial
	m.mu.Unlock()

	go m.runLoop(ctx)

	slog.InfoContext(ctx, "Connectivity monitor started",
		"online", initial,
		"poll_interval", m.config.PollInterval,
		"debounce", m.config.Debounce)

	return nil
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	close(m.stopCh)

	select {
	case <-m.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	return nil
}

// IsOnline returns the current debounced state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel carrying debounced transitions. The channel is
// buffered; a slow consumer drops intermediate notifications rather than
// blocking the monitor.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(ctx, m.probe.Online(ctx))
		}
	}
}

// observe feeds one raw probe result through the debounce filter.
func (m *Monitor) observe(ctx context.Context, raw bool) {
	m.mu.Lock()

	if raw != m.candidate {
		m.candidate = raw
		m.candidateSince = time.Now()
	}

	if m.candidate == m.online {
		m.mu.Unlock()
		return
	}
	if time.Since(m.candidateSince) < m.config.Debounce {
		m.mu.Unlock()
		return
	}

	m.online = m.candidate
	state := m.online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	slog.InfoContext(ctx, "Connectivity changed", "online", state)

	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Replace a stale queued notification with the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}
