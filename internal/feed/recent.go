package feed

import "sync"

// recentIDs remembers the last n ids in insertion order.
type recentIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	ring  []string
	next  int
	limit int
}

func newRecentIDs(limit int) *recentIDs {
	return &recentIDs{ids: make(map[string]struct{}, limit), ring: make([]string, limit), limit: limit}
}

// add records id and reports whether it was new.
func (r *recentIDs) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % r.limit
	return true
}
