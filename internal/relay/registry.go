package relay

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Entry is one (identity, channel) pair in a registry snapshot.
type Entry struct {
	ID      string
	Channel Channel
}

// Registry maps identities to their active Channel. It is the single source
// of truth for who is online.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Channel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Channel)}
}

// Register binds id to ch, overwriting any previous binding. The superseded
// channel, if any, is returned so the caller can decide what to do with it.
// The registry never closes it.
//
// others is every other entry, taken under the same lock as the insert. Two
// concurrent registrations therefore see each other in at most one of their
// snapshots.
func (r *Registry) Register(id string, ch Channel) (prev Channel, replaced bool, others []Entry) {
	r.mu.Lock()
	old, ok := r.entries[id]
	r.entries[id] = ch
	others = r.entriesExcept(id, ch)
	r.mu.Unlock()

	sortEntries(others)
	if ok && old != ch {
		return old, true, others
	}
	return nil, false, others
}

// Unregister removes id only while it is still bound to ch, so a late teardown
// cannot delete a newer registration of the same identity. It reports whether
// an entry was removed.
func (r *Registry) Unregister(id string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[id]
	if !ok || current != ch {
		return false
	}
	delete(r.entries, id)
	return true
}

// Lookup returns the channel bound to id.
func (r *Registry) Lookup(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.entries[id]
	return ch, ok
}

// Snapshot returns a point-in-time copy of the registry ordered by identity.
// Callers iterate it without holding the lock.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := lo.MapToSlice(r.entries, func(id string, ch Channel) Entry {
		return Entry{ID: id, Channel: ch}
	})
	r.mu.RUnlock()

	sortEntries(entries)
	return entries
}

// entriesExcept must be called with r.mu held.
func (r *Registry) entriesExcept(id string, ch Channel) []Entry {
	entries := make([]Entry, 0, len(r.entries))
	for other, c := range r.entries {
		if other != id && c != ch {
			entries = append(entries, Entry{ID: other, Channel: c})
		}
	}
	return entries
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
