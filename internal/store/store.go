// Package store keeps the session's received notifications in memory.
package store

import (
	"sync"

	"notifier/pkg/types"
)

// DefaultCapacity is the number of notifications kept per session
const DefaultCapacity = 50

// Observer receives a snapshot after every change
type Observer func(snapshot []types.NotificationMessage)

// Store is a bounded newest-first buffer; index 0 is always the newest message
type Store struct {
	mu        sync.RWMutex
	capacity  int
	messages  []types.NotificationMessage
	observers map[int]Observer
	nextID    int
}

// New creates an empty store; capacity <= 0 falls back to DefaultCapacity
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity:  capacity,
		messages:  make([]types.NotificationMessage, 0, capacity),
		observers: make(map[int]Observer),
	}
}

// Append inserts msg as the newest entry, evicting the oldest beyond capacity
func (s *Store) Append(msg types.NotificationMessage) {
	s.mu.Lock()
	if len(s.messages) < s.capacity {
		s.messages = append(s.messages, types.NotificationMessage{})
	}
	copy(s.messages[1:], s.messages[:len(s.messages)-1])
	s.messages[0] = msg
	snapshot, observers := s.changedLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
}

// Clear empties the store
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return
	}
	s.messages = s.messages[:0]
	snapshot, observers := s.changedLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
}

// Count returns the number of buffered notifications
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Capacity returns the maximum number of buffered notifications
func (s *Store) Capacity() int {
	return s.capacity
}

// Snapshot returns a copy of the buffer, newest first
func (s *Store) Snapshot() []types.NotificationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.NotificationMessage(nil), s.messages...)
}

// Latest returns the newest notification
func (s *Store) Latest() (types.NotificationMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return types.NotificationMessage{}, false
	}
	return s.messages[0], true
}

// Subscribe registers an observer and returns its cancel function
func (s *Store) Subscribe(observer Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) changedLocked() ([]types.NotificationMessage, []Observer) {
	if len(s.observers) == 0 {
		return nil, nil
	}
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	return append([]types.NotificationMessage(nil), s.messages...), observers
}

func notify(observers []Observer, snapshot []types.NotificationMessage) {
	for _, o := range observers {
		o(snapshot)
	}
}
