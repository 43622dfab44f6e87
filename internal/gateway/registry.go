package gateway

import "sync"

// Registry is the in-process set of authenticated connections. It is the primary
// source of truth for who is connected to this instance; a client is inserted on
// its first successful auth and removed exactly once by whichever teardown path
// gets there first.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Insert adds a client. Inserting an already-present client is a no-op, so a
// re-auth on the same socket keeps a single entry.
func (r *Registry) Insert(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// Remove deletes a client and reports whether it was present. Teardown paths use
// the return value to make offline bookkeeping run exactly once.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

// Has reports whether the client is currently registered.
func (r *Registry) Has(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[c]
	return ok
}

// Snapshot returns the current clients as a slice. Iterating the snapshot is safe
// against concurrent insertion and removal.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
