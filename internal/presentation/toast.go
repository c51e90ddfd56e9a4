package presentation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifier/pkg/types"
)

// DefaultToastDuration is how long a toast stays up unless dismissed
const DefaultToastDuration = 5 * time.Second

type activeToast struct {
	toast Toast
	timer *time.Timer
	shown time.Time
}

// ToastManager shows toasts and removes each one after its own timer
// TECHNICAL DISCOVERY: Removal is decided under the lock, so a timer firing while the
// user dismisses the same toast removes it exactly once
type ToastManager struct {
	renderer Renderer
	duration time.Duration

	mu     sync.Mutex
	active map[string]*activeToast
	closed bool
}

// NewToastManager creates a manager; duration <= 0 uses DefaultToastDuration
func NewToastManager(renderer Renderer, duration time.Duration) *ToastManager {
	if duration <= 0 {
		duration = DefaultToastDuration
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &ToastManager{
		renderer: renderer,
		duration: duration,
		active:   make(map[string]*activeToast),
	}
}

// Show displays a toast for msg and schedules its removal
func (m *ToastManager) Show(msg types.NotificationMessage) (Toast, bool) {
	toast := Toast{ID: uuid.NewString(), Style: StyleFor(msg.Type), Message: msg}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Toast{}, false
	}
	entry := &activeToast{toast: toast, shown: time.Now()}
	m.active[toast.ID] = entry
	entry.timer = time.AfterFunc(m.duration, func() { m.remove(toast.ID) })
	m.mu.Unlock()

	m.renderer.ShowToast(toast)
	return toast, true
}

// Dismiss removes a toast early and cancels its timer; false if it was already gone
func (m *ToastManager) Dismiss(id string) bool {
	m.mu.Lock()
	entry, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	entry.timer.Stop()
	delete(m.active, id)
	m.mu.Unlock()

	m.renderer.RemoveToast(id)
	return true
}

// Active returns the toasts currently displayed, oldest first
func (m *ToastManager) Active() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]*activeToast, 0, len(m.active))
	for _, e := range m.active {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].shown.Before(entries[j].shown) })
	toasts := make([]Toast, len(entries))
	for i, e := range entries {
		toasts[i] = e.toast
	}
	return toasts
}

// Clear removes every toast and stops their timers
func (m *ToastManager) Clear() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id, entry := range m.active {
		entry.timer.Stop()
		ids = append(ids, id)
	}
	m.active = make(map[string]*activeToast)
	m.mu.Unlock()

	for _, id := range ids {
		m.renderer.RemoveToast(id)
	}
}

// Close clears all toasts and refuses new ones
func (m *ToastManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Clear()
}

func (m *ToastManager) remove(id string) {
	m.mu.Lock()
	if _, ok := m.active[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.active, id)
	m.mu.Unlock()

	m.renderer.RemoveToast(id)
}
