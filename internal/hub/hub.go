// Package hub is the server side of the notification channel.
//
// Handler accepts authenticated websocket clients and serves their group calls; Hub
// fans published broadcasts out to the members of the target group, through a
// Backplane so that several server instances can share one stream of broadcasts.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifier/internal/logging"
	"notifier/pkg/protocol"
	"notifier/pkg/types"
)

// broadcastBuffer absorbs bursts between the backplane and the fan-out loop
const broadcastBuffer = 1000

// Recorder persists broadcasts before they are routed
type Recorder interface {
	RecordBroadcast(ctx context.Context, b *types.Broadcast) error
}

// Stats summarizes the hub for health reporting
type Stats struct {
	Running   bool  `json:"running"`
	Clients   int   `json:"clients"`
	Groups    int   `json:"groups"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Hub coordinates broadcast fan-out
// ARCHITECTURAL DISCOVERY: A single fan-out goroutine preserves per-group send order;
// publishers only enqueue
type Hub struct {
	registry  *Registry
	backplane Backplane
	recorder  Recorder
	logger    *logging.Logger

	broadcastCh chan *types.Broadcast
	shutdownCh  chan struct{}
	doneCh      chan struct{}
	unsubscribe context.CancelFunc

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	mu        sync.RWMutex
	running   bool
	delivered int64
	dropped   int64
}

// NewHub creates a hub; recorder may be nil
func NewHub(registry *Registry, backplane Backplane, recorder Recorder, logger *logging.Logger) *Hub {
	return &Hub{
		registry:    registry,
		backplane:   backplane,
		recorder:    recorder,
		logger:      logging.OrNop(logger).Named("hub"),
		broadcastCh: make(chan *types.Broadcast, broadcastBuffer),
	}
}

// Start subscribes to the backplane and starts the fan-out loop
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.shutdownCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	subCtx, unsubscribe := context.WithCancel(ctx)
	h.unsubscribe = unsubscribe
	h.running = true
	h.mu.Unlock()

	if err := h.backplane.Subscribe(subCtx, h.enqueue); err != nil {
		unsubscribe()
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("failed to subscribe to backplane: %w", err)
	}

	h.logger.Info("starting notification hub")
	go h.run(ctx, h.shutdownCh, h.doneCh)
	return nil
}

// Stop ends the fan-out loop
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.unsubscribe()
	close(h.shutdownCh)
	done := h.doneCh
	h.mu.Unlock()

	<-done
	h.logger.Info("notification hub stopped")
	return nil
}

// Publish validates, records and hands a broadcast to the backplane
// FUNCTIONAL DISCOVERY: Persist-then-route keeps the audit log complete even when
// nobody is connected to receive the broadcast
func (h *Hub) Publish(ctx context.Context, b *types.Broadcast) error {
	if !h.Running() {
		return ErrHubNotRunning
	}
	if err := b.Validate(); err != nil {
		return err
	}
	// ARCHITECTURAL DISCOVERY: Server controls broadcast ids and timestamps
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()

	if h.recorder != nil {
		if err := h.recorder.RecordBroadcast(ctx, b); err != nil {
			return fmt.Errorf("failed to persist broadcast: %w", err)
		}
	}
	if err := h.backplane.Publish(ctx, b); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

// Running reports whether the hub accepts broadcasts
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Running:   h.running,
		Clients:   h.registry.Count(),
		Groups:    h.registry.GroupCount(),
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
}

// enqueue is the backplane callback; it never blocks the backplane
func (h *Hub) enqueue(b *types.Broadcast) {
	select {
	case h.broadcastCh <- b:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		h.logger.Warn("dropping broadcast", logging.Fields{"error": ErrBroadcastChannelFull, "group": b.Group})
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case b := <-h.broadcastCh:
			h.deliver(b)
		case <-shutdown:
			return
		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// deliver sends one broadcast to every member of its group
func (h *Hub) deliver(b *types.Broadcast) {
	var payload interface{}
	if b.Payload != nil {
		payload = b.Payload
	}
	msg, err := protocol.NewInvocation("", b.Channel, payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast", logging.Fields{"id": b.ID, "error": err})
		return
	}

	var sent int64
	for _, client := range h.registry.Members(b.Group) {
		if err := client.Send(msg); err != nil {
			h.logger.Debug("broadcast not delivered", logging.Fields{"client": client.ID(), "error": err})
			continue
		}
		sent++
	}

	h.mu.Lock()
	h.delivered += sent
	h.mu.Unlock()
	h.logger.Debug("broadcast delivered", logging.Fields{"id": b.ID, "group": b.Group, "recipients": sent})
}
