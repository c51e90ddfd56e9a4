package presentation

import (
	"context"
	"sync"
	"time"

	"notifier/internal/connection"
	"notifier/internal/groups"
	"notifier/internal/logging"
	"notifier/internal/router"
	"notifier/internal/store"
	"notifier/pkg/interfaces"
	"notifier/pkg/types"
)

// DefaultPollInterval is how often connection state is mirrored into the UI
const DefaultPollInterval = time.Second

// ConnectionManager is the part of the connection manager the adapter drives
type ConnectionManager interface {
	Connect(ctx context.Context)
	Disconnect()
	State() types.ConnectionState
	ConnectionError() error
	OnConnected(hook connection.Hook)
}

// Options wire an Adapter to the notification core
type Options struct {
	Manager       ConnectionManager
	Groups        *groups.Controller
	Router        *router.Router
	Store         *store.Store
	Identity      interfaces.IdentitySource
	Renderer      Renderer
	PollInterval  time.Duration
	ToastDuration time.Duration
	InvokeTimeout time.Duration
	Logger        *logging.Logger
}

// Adapter exposes the notification core to a UI and keeps the renderer up to date
// ARCHITECTURAL DISCOVERY: The adapter owns its collaborators' lifecycle; there is no
// package level connection, every adapter holds its own explicitly built instances
type Adapter struct {
	manager       ConnectionManager
	groups        *groups.Controller
	router        *router.Router
	store         *store.Store
	identity      interfaces.IdentitySource
	renderer      Renderer
	toasts        *ToastManager
	invokeTimeout time.Duration
	logger        *logging.Logger

	// sessionMu orders delivery against Connect and Disconnect
	sessionMu sync.Mutex
	listening bool
	session   uint64

	mu          sync.RWMutex
	connected   bool
	connErr     string
	subscribers map[int]func(types.NotificationMessage)
	nextID      int

	stopStore func()
	stopPoll  chan struct{}
	pollDone  chan struct{}
	closeOnce sync.Once
}

// NewAdapter wires the adapter and starts the state poll; call Close to release it
func NewAdapter(opts Options) *Adapter {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = NopRenderer{}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	invokeTimeout := opts.InvokeTimeout
	if invokeTimeout <= 0 {
		invokeTimeout = 10 * time.Second
	}

	a := &Adapter{
		manager:       opts.Manager,
		groups:        opts.Groups,
		router:        opts.Router,
		store:         opts.Store,
		identity:      opts.Identity,
		renderer:      renderer,
		toasts:        NewToastManager(renderer, opts.ToastDuration),
		invokeTimeout: invokeTimeout,
		logger:        logging.OrNop(opts.Logger).Named("presentation"),
		subscribers:   make(map[int]func(types.NotificationMessage)),
		stopPoll:      make(chan struct{}),
		pollDone:      make(chan struct{}),
	}

	a.stopStore = a.store.Subscribe(func(snapshot []types.NotificationMessage) {
		a.renderer.RenderBadge(BadgeLabel(len(snapshot)))
		a.renderer.RenderList(snapshot)
	})
	a.manager.OnConnected(a.joinGroups)

	go a.poll(poll)
	return a
}

// Connect starts listening and opens the channel; failures only show in ConnectionError
func (a *Adapter) Connect(ctx context.Context) {
	a.sessionMu.Lock()
	if !a.listening {
		a.router.Subscribe(a.listener(a.session))
		a.listening = true
	}
	a.sessionMu.Unlock()

	a.manager.Connect(ctx)
	a.refresh()
}

// Disconnect closes the channel and resets the session buffer; it always completes
// TECHNICAL DISCOVERY: A handler already running on the read goroutine can outlive
// Unsubscribe; ending the session first makes such late deliveries drop instead of
// landing in the buffer after it was cleared
func (a *Adapter) Disconnect() {
	a.sessionMu.Lock()
	a.listening = false
	a.session++
	a.router.Unsubscribe()
	a.sessionMu.Unlock()

	a.manager.Disconnect()
	a.store.Clear()
	if a.groups != nil {
		a.groups.Reset()
	}
	a.toasts.Clear()
	a.refresh()
}

// ClearNotifications empties the buffer
func (a *Adapter) ClearNotifications() {
	a.store.Clear()
}

// Subscribe registers fn for every received notification and returns its cancel function
func (a *Adapter) Subscribe(fn func(types.NotificationMessage)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subscribers[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subscribers, id)
	}
}

// IsConnected reports the mirrored connection state
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// ConnectionError reports the mirrored connection error, empty when there is none
func (a *Adapter) ConnectionError() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connErr
}

// Notifications returns the buffered notifications, newest first
func (a *Adapter) Notifications() []types.NotificationMessage {
	return a.store.Snapshot()
}

// UnreadBadge returns the badge label for the current buffer
func (a *Adapter) UnreadBadge() string {
	return BadgeLabel(a.store.Count())
}

// Toasts exposes the toast manager so the UI can dismiss toasts
func (a *Adapter) Toasts() *ToastManager {
	return a.toasts
}

// Close stops the poll and every toast timer, then disconnects
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.stopPoll)
		<-a.pollDone
		a.stopStore()
		a.toasts.Close()
		a.Disconnect()
	})
}

// listener binds delivery to one session
func (a *Adapter) listener(session uint64) router.Listener {
	return func(msg types.NotificationMessage) {
		a.onNotification(session, msg)
	}
}

func (a *Adapter) onNotification(session uint64, msg types.NotificationMessage) {
	a.sessionMu.Lock()
	if !a.listening || session != a.session {
		a.sessionMu.Unlock()
		a.logger.Debug("dropping notification from a closed session", logging.Fields{"kind": string(msg.Type)})
		return
	}
	a.store.Append(msg)
	a.toasts.Show(msg)
	a.sessionMu.Unlock()

	a.mu.RLock()
	subscribers := make([]func(types.NotificationMessage), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subscribers = append(subscribers, fn)
	}
	a.mu.RUnlock()

	for _, fn := range subscribers {
		fn(msg)
	}
}

// joinGroups runs after each connect; groups from a previous connection are forgotten
func (a *Adapter) joinGroups(ctx context.Context) {
	if a.groups == nil || a.identity == nil {
		return
	}
	a.groups.Reset()

	ctx, cancel := context.WithTimeout(ctx, a.invokeTimeout)
	defer cancel()
	if err := a.groups.JoinForIdentity(ctx, a.identity.Identity()); err != nil {
		a.logger.Warn("not every group could be joined", logging.Fields{"error": err})
	}
}

// poll mirrors the connection state at a fixed cadence
func (a *Adapter) poll(interval time.Duration) {
	defer close(a.pollDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.refresh()
		case <-a.stopPoll:
			return
		}
	}
}

func (a *Adapter) refresh() {
	connected := a.manager.State() == types.StateConnected
	errText := ""
	if err := a.manager.ConnectionError(); err != nil {
		errText = err.Error()
	}

	a.mu.Lock()
	changed := connected != a.connected || errText != a.connErr
	a.connected = connected
	a.connErr = errText
	a.mu.Unlock()

	if changed {
		a.renderer.RenderStatus(connected, errText)
	}
}
