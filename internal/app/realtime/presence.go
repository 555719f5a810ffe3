/*
Package realtime manages the single live bidirectional connection to the
backing service.

This file defines the PresenceSet: the per-client mapping of identity ids to
an online marker. It is scoped to the live connection and never persisted.
*/
package realtime

import "sync"

// PresenceSet tracks which identities currently have a live connection.
// The owning identity is always considered online to itself without requiring
// a presence event, and its own id is filtered out of updates.
type PresenceSet struct {
	mu     sync.RWMutex
	self   string
	online map[string]struct{}
}

// NewPresenceSet returns an empty PresenceSet.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{online: make(map[string]struct{})}
}

// SetSelf records the owning identity's id.
func (p *PresenceSet) SetSelf(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.self = uid
}

// selfID returns the owning identity's id.
func (p *PresenceSet) selfID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.self
}

// MarkOnline records uid as online. Updates about the owning identity are ignored.
func (p *PresenceSet) MarkOnline(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uid == "" || uid == p.self {
		return
	}
	p.online[uid] = struct{}{}
}

// MarkOffline removes uid's online marker.
func (p *PresenceSet) MarkOffline(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, uid)
}

// IsOnline reports whether uid has a live connection. The owning identity is
// always online to itself.
func (p *PresenceSet) IsOnline(uid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if uid != "" && uid == p.self {
		return true
	}
	_, ok := p.online[uid]
	return ok
}

// Online returns the ids currently marked online, excluding self.
func (p *PresenceSet) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.online))
	for uid := range p.online {
		ids = append(ids, uid)
	}
	return ids
}

// Reset clears all markers. Called when the connection drops: presence is not
// carried across connections.
func (p *PresenceSet) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{})
}
