package sync

// seenRing is a fixed-size recently-seen set of event ids. Old entries are
// evicted FIFO; the feed's replay window is far smaller than the ring.
type seenRing struct {
	ids  []string
	set  map[string]struct{}
	next int
}

func newSeenRing(n int) *seenRing {
	return &seenRing{ids: make([]string, n), set: make(map[string]struct{}, n)}
}

// seen records id and reports whether it was already present. An empty id
// carries no identity and is never treated as a duplicate.
func (r *seenRing) seen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := r.set[id]; ok {
		return true
	}
	if old := r.ids[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ids[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
	return false
}
