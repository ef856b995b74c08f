// Package presence tracks which live connection currently speaks for a user.
package presence

import "sync"

// Registry maps a user id to at most one connection handle. A later Register
// for the same user replaces the earlier handle without closing it. All
// methods are safe for concurrent use.
type Registry[H comparable] struct {
	mu      sync.RWMutex
	entries map[string]H
}

func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{entries: make(map[string]H)}
}

func (r *Registry[H]) Register(userID string, handle H) {
	r.mu.Lock()
	r.entries[userID] = handle
	r.mu.Unlock()
}

func (r *Registry[H]) Lookup(userID string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.entries[userID]
	return handle, ok
}

// IsOnline reports whether userID has a registered handle.
func (r *Registry[H]) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Unregister removes the entry owned by handle and returns its user id.
// A handle that was superseded by a newer registration owns nothing, so
// closing a stale connection leaves the newer entry intact.
func (r *Registry[H]) Unregister(handle H) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, h := range r.entries {
		if h == handle {
			delete(r.entries, userID)
			return userID, true
		}
	}
	return "", false
}

// CompareAndDelete removes userID's entry only while it still maps to handle.
func (r *Registry[H]) CompareAndDelete(userID string, handle H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.entries[userID]; ok && h == handle {
		delete(r.entries, userID)
		return true
	}
	return false
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry[H]) Clear() {
	r.mu.Lock()
	clear(r.entries)
	r.mu.Unlock()
}
