// Package connection owns the client's single logical channel to the notification hub.
//
// The Manager opens the channel when a credential is available, keeps handler
// registrations across reconnects, retries unexpected closures a bounded number of
// times, and is the only writer of the connection state.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notifier/internal/logging"
	"notifier/pkg/interfaces"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

// RetryPolicy lists the delay before each reconnect attempt; an empty list means
// DefaultRetryPolicy
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy retries immediately, after 2s and after 10s, then gives up
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{0, 2 * time.Second, 10 * time.Second}}
}

// StateListener observes state transitions; err is the recorded connection error
type StateListener func(state types.ConnectionState, err error)

// Hook runs after every successful connect, including reconnects
type Hook func(ctx context.Context)

// Options configure a Manager
type Options struct {
	Dialer      interfaces.Dialer
	Credentials interfaces.CredentialSource
	Endpoint    func() (string, error)
	Retry       RetryPolicy
	Logger      *logging.Logger
}

// Manager drives the connection lifecycle
// ARCHITECTURAL DISCOVERY: Every attempt carries the generation it was started under;
// Disconnect bumps the generation so a late dial or backoff can never write state back
type Manager struct {
	dialer      interfaces.Dialer
	credentials interfaces.CredentialSource
	endpoint    func() (string, error)
	retry       RetryPolicy
	logger      *logging.Logger

	mu           sync.Mutex
	state        types.ConnectionState
	lastErr      error
	conn         interfaces.HubConnection
	generation   uint64
	cancel       context.CancelFunc
	handlers     map[string][]interfaces.Handler
	hooks        []Hook
	listeners    map[int]StateListener
	nextListener int
}

// NewManager creates a disconnected manager
func NewManager(opts Options) *Manager {
	retry := opts.Retry
	if len(retry.Delays) == 0 {
		retry = DefaultRetryPolicy()
	}
	return &Manager{
		dialer:      opts.Dialer,
		credentials: opts.Credentials,
		endpoint:    opts.Endpoint,
		retry:       retry,
		logger:      logging.OrNop(opts.Logger).Named("connection"),
		state:       types.StateDisconnected,
		handlers:    make(map[string][]interfaces.Handler),
		listeners:   make(map[int]StateListener),
	}
}

// Connect opens the channel
// FUNCTIONAL DISCOVERY: A missing credential is the normal logged-out path and returns
// silently; dial failures are recorded in ConnectionError and never returned
func (m *Manager) Connect(ctx context.Context) {
	if m.credentials == nil || m.credentials.Token() == "" {
		m.logger.Debug("no credential, skipping hub connection")
		return
	}

	m.mu.Lock()
	if m.state != types.StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	lifeCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.lastErr = nil
	notify := m.setStateLocked(types.StateConnecting)
	m.mu.Unlock()
	notify()

	dialCtx, stopDial := context.WithCancel(ctx)
	stop := context.AfterFunc(lifeCtx, stopDial)
	conn, err := m.dial(dialCtx)
	stop()
	stopDial()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.lastErr = err
		m.cancel = nil
		notify := m.setStateLocked(types.StateDisconnected)
		m.mu.Unlock()
		cancel()
		m.logger.Warn("hub connection failed", logging.Fields{"error": err})
		notify()
		return
	}
	hooks, notify := m.bindLocked(conn)
	m.mu.Unlock()
	notify()

	m.logger.Info("hub connected")
	m.afterConnect(lifeCtx, conn, gen, hooks)
}

// Disconnect tears the channel down and cancels any pending attempt; it always completes
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.generation++
	cancel := m.cancel
	m.cancel = nil
	conn := m.conn
	m.conn = nil
	targets := make([]string, 0, len(m.handlers))
	for target := range m.handlers {
		targets = append(targets, target)
	}
	m.handlers = make(map[string][]interfaces.Handler)
	m.lastErr = nil
	notify := m.setStateLocked(types.StateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		for _, target := range targets {
			conn.Off(target)
		}
		if err := conn.Close(); err != nil {
			m.logger.Debug("error closing hub connection", logging.Fields{"error": err})
		}
	}
	notify()
}

// State returns the current connection state
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionError returns the last recorded environmental error, nil when healthy
func (m *Manager) ConnectionError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Invoke calls a hub method on the live connection
func (m *Manager) Invoke(ctx context.Context, method string, args ...interface{}) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == types.StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("%w: cannot invoke %s", ErrNotConnected, method)
	}
	return conn.Invoke(ctx, method, args...)
}

// On registers a handler; it stays registered across reconnects until Off or Disconnect
func (m *Manager) On(target string, handler interfaces.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[target] = append(m.handlers[target], handler)
	if m.conn != nil {
		m.conn.On(target, handler)
	}
}

// Off removes every handler for target
func (m *Manager) Off(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, target)
	if m.conn != nil {
		m.conn.Off(target)
	}
}

// OnConnected adds a hook run after each successful connect
func (m *Manager) OnConnected(hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Subscribe registers a state listener and returns its cancel function
func (m *Manager) Subscribe(listener StateListener) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// dial reads the endpoint and the current credential for this attempt
func (m *Manager) dial(ctx context.Context) (interfaces.HubConnection, error) {
	endpoint, err := m.endpoint()
	if err != nil {
		return nil, err
	}
	token := ""
	if m.credentials != nil {
		token = m.credentials.Token()
	}
	return m.dialer.Dial(ctx, endpoint, token)
}

// setStateLocked records a transition and returns the notification to run after unlocking
func (m *Manager) setStateLocked(state types.ConnectionState) func() {
	if m.state == state {
		return func() {}
	}
	m.state = state
	err := m.lastErr
	listeners := make([]StateListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(state, err)
		}
	}
}

func (m *Manager) bindLocked(conn interfaces.HubConnection) ([]Hook, func()) {
	m.conn = conn
	m.lastErr = nil
	for target, handlers := range m.handlers {
		for _, handler := range handlers {
			conn.On(target, handler)
		}
	}
	hooks := append([]Hook(nil), m.hooks...)
	return hooks, m.setStateLocked(types.StateConnected)
}

func (m *Manager) afterConnect(ctx context.Context, conn interfaces.HubConnection, gen uint64, hooks []Hook) {
	for _, hook := range hooks {
		hook(ctx)
	}
	go m.watch(ctx, conn, gen)
}

// watch waits for the connection to end and starts the reconnect policy
func (m *Manager) watch(ctx context.Context, conn interfaces.HubConnection, gen uint64) {
	select {
	case <-conn.Done():
	case <-ctx.Done():
		return
	}

	m.mu.Lock()
	if gen != m.generation || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.lastErr = conn.Err()

	// FUNCTIONAL DISCOVERY: A close that forbids reconnecting ends the session outright
	if errors.Is(m.lastErr, protocol.ErrReconnectNotAllowed) {
		cancel := m.cancel
		m.cancel = nil
		notify := m.setStateLocked(types.StateDisconnected)
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.logger.Warn("hub closed the connection without reconnect", logging.Fields{"error": conn.Err()})
		notify()
		return
	}

	notify := m.setStateLocked(types.StateReconnecting)
	m.mu.Unlock()
	notify()

	m.logger.Warn("hub connection lost", logging.Fields{"error": conn.Err()})
	m.reconnect(ctx, gen)
}

// reconnect walks the retry policy; the last failure becomes the terminal error
func (m *Manager) reconnect(ctx context.Context, gen uint64) {
	var lastErr error
	for attempt, delay := range m.retry.Delays {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		conn, err := m.dial(ctx)

		m.mu.Lock()
		if gen != m.generation {
			m.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			lastErr = err
			m.lastErr = err
			m.mu.Unlock()
			m.logger.Warn("hub reconnect attempt failed", logging.Fields{"attempt": attempt + 1, "error": err})
			continue
		}
		hooks, notify := m.bindLocked(conn)
		m.mu.Unlock()
		notify()

		m.logger.Info("hub reconnected", logging.Fields{"attempt": attempt + 1})
		m.afterConnect(ctx, conn, gen, hooks)
		return
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	if lastErr != nil {
		m.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, len(m.retry.Delays), lastErr)
	} else {
		m.lastErr = ErrReconnectExhausted
	}
	cancel := m.cancel
	m.cancel = nil
	notify := m.setStateLocked(types.StateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Error("hub reconnect gave up", logging.Fields{"error": lastErr})
	notify()
}
