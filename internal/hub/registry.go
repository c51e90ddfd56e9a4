package hub

import (
	"sort"
	"sync"
)

// Registry tracks connected clients and their group memberships
// ARCHITECTURAL DISCOVERY: Pure membership bookkeeping without business logic; the
// handler decides who may join, the registry only records it
type Registry struct {
	mu         sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out lookups
	clients    map[string]*Client
	groups     map[string]map[string]*Client // group -> clientID -> Client
	membership map[string]map[string]struct{} // clientID -> groups
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		membership: make(map[string]map[string]struct{}),
	}
}

// Register adds a client
func (r *Registry) Register(c *Client) error {
	if c == nil {
		return ErrNilClient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
	if r.membership[c.ID()] == nil {
		r.membership[c.ID()] = make(map[string]struct{})
	}
	return nil
}

// Unregister removes a client from every group; idempotent
func (r *Registry) Unregister(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// RACE CONDITION FIX: Only remove the instance that is registered under this id
	if registered, ok := r.clients[c.ID()]; !ok || registered != c {
		return
	}
	for group := range r.membership[c.ID()] {
		r.removeLocked(group, c.ID())
	}
	delete(r.membership, c.ID())
	delete(r.clients, c.ID())
}

// Join adds a registered client to group; joining twice is a no-op
func (r *Registry) Join(c *Client, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID()]; !ok {
		return
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]*Client)
	}
	r.groups[group][c.ID()] = c
	r.membership[c.ID()][group] = struct{}{}
}

// Leave removes a client from group
func (r *Registry) Leave(c *Client, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(group, c.ID())
	if groups, ok := r.membership[c.ID()]; ok {
		delete(groups, group)
	}
}

// Members returns the clients in group
func (r *Registry) Members(group string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Client, 0, len(r.groups[group]))
	for _, c := range r.groups[group] {
		members = append(members, c)
	}
	return members
}

// GroupsOf returns the sorted groups a client belongs to
func (r *Registry) GroupsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]string, 0, len(r.membership[c.ID()]))
	for g := range r.membership[c.ID()] {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Count returns the number of connected clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// GroupCount returns the number of non-empty groups
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
func (r *Registry) removeLocked(group, clientID string) {
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// ShutdownReason is the close message sent to clients when the server stops
const ShutdownReason = "server shutting down"

// CloseAll sends a reconnectable close to every registered client and closes it; their
// serve loops unregister them
// TECHNICAL DISCOVERY: http.Server.Shutdown does not touch hijacked websocket connections
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		_ = c.Shutdown(ShutdownReason, true)
	}
	return len(clients)
}
