// Package router turns inbound hub invocations into NotificationMessages.
//
// The Router listens on the four notification channels, tags every payload with the
// channel's kind and the local receive time, and fans the result out to listeners.
// When the application is not visible it also raises a best-effort native alert.
package router

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"notifier/internal/logging"
	"notifier/internal/ratelimit"
	"notifier/pkg/interfaces"
	"notifier/pkg/types"
)

// Alert throttle: at most this many native alerts per kind per minute
const (
	AlertLimit  = 30
	AlertWindow = time.Minute
)

// Source is where handlers are registered; the connection manager satisfies it
type Source interface {
	On(target string, handler interfaces.Handler)
	Off(target string)
}

// Listener receives every normalized notification
type Listener func(msg types.NotificationMessage)

// Options configure the optional parts of a Router
type Options struct {
	Alerter interfaces.NativeAlerter
	Visible func() bool
	Title   func(kind types.NotificationKind) string
	Limiter *ratelimit.Limiter
	Clock   func() time.Time
	Logger  *logging.Logger
}

// Router maps server channels onto the canonical notification shape
// ARCHITECTURAL DISCOVERY: Handlers are registered on the source once; listeners are kept
// locally so subscribing twice never doubles wire handlers
type Router struct {
	source  Source
	alerter interfaces.NativeAlerter
	visible func() bool
	title   func(types.NotificationKind) string
	limiter *ratelimit.Limiter
	clock   func() time.Time
	logger  *logging.Logger

	mu         sync.Mutex
	subscribed bool
	listeners  []Listener
	alerts     sync.WaitGroup
}

// New creates a router reading from source
func New(source Source, opts Options) *Router {
	r := &Router{
		source:  source,
		alerter: opts.Alerter,
		visible: opts.Visible,
		title:   opts.Title,
		limiter: opts.Limiter,
		clock:   opts.Clock,
		logger:  logging.OrNop(opts.Logger).Named("router"),
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.title == nil {
		r.title = func(kind types.NotificationKind) string { return string(kind) }
	}
	if r.limiter == nil {
		r.limiter = ratelimit.New(AlertLimit, AlertWindow)
	}
	return r
}

// Subscribe adds listener and registers the channel handlers if not yet registered
func (r *Router) Subscribe(listener Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, listener)
	if r.subscribed {
		return
	}
	for _, channel := range types.Channels() {
		kind, _ := types.KindForChannel(channel)
		r.source.On(channel, r.handler(kind))
	}
	r.subscribed = true
}

// Unsubscribe removes the channel handlers and every listener; safe to call repeatedly
func (r *Router) Unsubscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = nil
	if !r.subscribed {
		return
	}
	for _, channel := range types.Channels() {
		r.source.Off(channel)
	}
	r.subscribed = false
}

// Subscribed reports whether channel handlers are registered
func (r *Router) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribed
}

// Normalize converts the arguments of a channel invocation into a NotificationMessage
func (r *Router) Normalize(channel string, args []json.RawMessage) (types.NotificationMessage, error) {
	kind, ok := types.KindForChannel(channel)
	if !ok {
		return types.NotificationMessage{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return r.normalize(kind, args)
}

func (r *Router) normalize(kind types.NotificationKind, args []json.RawMessage) (types.NotificationMessage, error) {
	// TECHNICAL DISCOVERY: The wire event has no timestamp of its own; receive time is used
	now := r.clock()
	if len(args) == 0 {
		return types.NewNotificationMessage(kind, nil, now), ErrNoArguments
	}
	data, err := types.DecodePayload(args[0])
	if err != nil {
		return types.NewNotificationMessage(kind, nil, now), err
	}
	return types.NewNotificationMessage(kind, data, now), nil
}

func (r *Router) handler(kind types.NotificationKind) interfaces.Handler {
	return func(args []json.RawMessage) {
		msg, err := r.normalize(kind, args)
		if err != nil {
			r.logger.Debug("notification payload not decoded", logging.Fields{"kind": string(kind), "error": err})
		}

		r.mu.Lock()
		listeners := append([]Listener(nil), r.listeners...)
		r.mu.Unlock()

		for _, listener := range listeners {
			listener(msg)
		}
		r.maybeAlert(msg)
	}
}

// maybeAlert raises a native alert off the delivery path
// FUNCTIONAL DISCOVERY: Only when the app is not visible and the alerter is supported and
// permitted; failures are logged and never reach listeners
func (r *Router) maybeAlert(msg types.NotificationMessage) {
	if r.alerter == nil || r.visible == nil || r.visible() {
		return
	}
	if !r.alerter.Supported() || !r.alerter.PermissionGranted() {
		return
	}
	if !r.limiter.Allow(string(msg.Type)) {
		r.logger.Debug("native alert throttled", logging.Fields{"kind": string(msg.Type)})
		return
	}

	title := r.title(msg.Type)
	body := msg.Text()
	r.alerts.Add(1)
	go func() {
		defer r.alerts.Done()
		if err := r.alerter.Alert(title, body); err != nil {
			r.logger.Debug("native alert failed", logging.Fields{"error": err})
		}
	}()
}

// Wait blocks until in-flight native alerts have finished
func (r *Router) Wait() {
	r.alerts.Wait()
}
