// Package connectivity observes transitions between reachable and
// unreachable network state and notifies listeners on each edge.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/teamgrid/workspace-client/internal/logging"
)

// State is the engine's view of network reachability. It is an explicit
// value owned by the monitor instance, not ambient global state, so
// tests can drive it directly through SetState.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Prober checks whether the remote API is reachable right now.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config holds monitor settings.
type Config struct {
	// ProbeMin/ProbeMax bound the jittered probe interval while
	// unreachable. While reachable the monitor re-probes at ProbeMax.
	ProbeMin time.Duration
	ProbeMax time.Duration

	// EventsURL is an optional websocket endpoint pushing reachability
	// events. Empty disables the push feed.
	EventsURL string
}

// Monitor tracks reachability and fires edge-triggered callbacks. A
// probe runs immediately on Start so a missed online event before
// startup still results in a flush attempt.
type Monitor struct {
	prober Prober
	cfg    Config

	mu        sync.Mutex
	state     State
	onOnline  []func()
	onOffline []func()

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewMonitor creates a Monitor. Callbacks are registered before Start.
func NewMonitor(prober Prober, cfg Config) *Monitor {
	if cfg.ProbeMin <= 0 {
		cfg.ProbeMin = 2 * time.Second
	}
	if cfg.ProbeMax < cfg.ProbeMin {
		cfg.ProbeMax = 60 * time.Second
	}
	return &Monitor{
		prober: prober,
		cfg:    cfg,
		state:  StateUnknown,
		stopCh: make(chan struct{}),
	}
}

// OnOnline registers a callback fired on the offline-to-online edge.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers a callback fired on the online-to-offline edge.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// IsOnline reports the current reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOnline
}

// State returns the current state value.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetState records a reachability observation. Callbacks fire only on
// an actual transition; repeated observations of the same state are
// no-ops. The initial unknown-to-online transition also fires, which is
// what catches up anything queued before startup.
func (m *Monitor) SetState(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next

	var callbacks []func()
	if prev != next {
		switch next {
		case StateOnline:
			callbacks = append(callbacks, m.onOnline...)
		case StateOffline:
			// unknown-to-offline is not an edge worth announcing
			if prev == StateOnline {
				callbacks = append(callbacks, m.onOffline...)
			}
		}
	}
	m.mu.Unlock()

	if prev != next && (prev != StateUnknown || next == StateOnline) {
		logging.Info("connectivity changed", map[string]interface{}{
			"was": string(prev),
			"now": string(next),
		})
	}

	for _, fn := range callbacks {
		fn()
	}
}

// Start launches the probe loop and, when configured, the push event
// feed. It returns immediately. A stopped monitor can be started again.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx, stopCh)

	if m.cfg.EventsURL != "" {
		m.wg.Add(1)
		go m.eventFeedLoop(ctx, stopCh)
	}
}

// Stop shuts the monitor down and waits for its goroutines.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// probeLoop probes immediately, then with jittered backoff while
// offline and at the maximum interval while online.
func (m *Monitor) probeLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	b := &backoff.Backoff{
		Min:    m.cfg.ProbeMin,
		Max:    m.cfg.ProbeMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		m.probe(ctx, b)

		var wait time.Duration
		if m.IsOnline() {
			wait = m.cfg.ProbeMax
		} else {
			wait = b.Duration()
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(wait):
		}
	}
}

func (m *Monitor) probe(ctx context.Context, b *backoff.Backoff) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeMin)
	defer cancel()

	if err := m.prober.Ping(probeCtx); err != nil {
		m.SetState(StateOffline)
		return
	}
	b.Reset()
	m.SetState(StateOnline)
}
