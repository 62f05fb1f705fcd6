package messaging

import (
	"sort"
	"sync"

	"github.com/sudo-init-do/gigmarket/internal/observability"
)

// Conn is a live client connection. Send must not block: a connection that
// cannot take the event drops it and returns an error.
type Conn interface {
	Send(eventType string, data any) error
}

// Registry maps each online user to their single authoritative connection.
// The most recent Register for a user wins.
type Registry struct {
	mu    sync.RWMutex
	users map[string]Conn
	conns map[Conn]string

	// broadcastMu orders onlineUsers broadcasts so the last one sent always
	// carries the state after the last mutation.
	broadcastMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]Conn),
		conns: make(map[Conn]string),
	}
}

// Register makes conn the user's connection, replacing any previous one, and
// broadcasts the new online set.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	if old, ok := r.users[userID]; ok && old != conn {
		delete(r.conns, old)
	}
	if prev, ok := r.conns[conn]; ok && prev != userID && r.users[prev] == conn {
		delete(r.users, prev)
	}
	r.users[userID] = conn
	r.conns[conn] = userID
	n := len(r.users)
	r.mu.Unlock()

	observability.OnlineUsers.Set(float64(n))
	r.broadcast()
}

// Unregister drops conn. removed is false when conn had already been
// replaced by a newer connection for the same user; the mapping is then left
// untouched and nothing is broadcast.
func (r *Registry) Unregister(conn Conn) (userID string, removed bool) {
	r.mu.Lock()
	userID, ok := r.conns[conn]
	if ok {
		delete(r.conns, conn)
		if r.users[userID] == conn {
			delete(r.users, userID)
			removed = true
		}
	}
	n := len(r.users)
	r.mu.Unlock()

	if removed {
		observability.OnlineUsers.Set(float64(n))
		r.broadcast()
	}
	return userID, removed
}

// Lookup returns the user's current connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.users[userID]
	return c, ok
}

// Online reports whether the user has a registered connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Snapshot returns the online user ids, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// PushToUser sends an event to the user's connection. It reports false when
// the user is offline or the connection refused the event.
func (r *Registry) PushToUser(userID, eventType string, data any) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(eventType, data) == nil
}

func (r *Registry) broadcast() {
	r.broadcastMu.Lock()
	defer r.broadcastMu.Unlock()

	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	targets := make([]Conn, 0, len(r.users))
	for id, c := range r.users {
		ids = append(ids, id)
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	payload := OnlineUsersPayload{UserIDs: ids}
	for _, c := range targets {
		_ = c.Send(EventOnlineUsers, payload)
	}
}
