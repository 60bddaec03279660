package domain

// DefaultMediaGroupCapacity bounds the album tracker when no size is configured
const DefaultMediaGroupCapacity = 500

// MediaGroupTracker remembers recently seen album ids.
// Once capacity is exceeded the oldest ids are evicted first.
type MediaGroupTracker struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewMediaGroupTracker creates a tracker holding at most capacity ids
func NewMediaGroupTracker(capacity int) *MediaGroupTracker {
	if capacity <= 0 {
		capacity = DefaultMediaGroupCapacity
	}
	return &MediaGroupTracker{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Contains checks if the album was already seen
func (t *MediaGroupTracker) Contains(groupID string) bool {
	_, ok := t.seen[groupID]
	return ok
}

// Track records the album id. It returns false if the id was already present.
func (t *MediaGroupTracker) Track(groupID string) bool {
	if t.Contains(groupID) {
		return false
	}
	t.seen[groupID] = struct{}{}
	t.order = append(t.order, groupID)

	for len(t.order) > t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.seen, oldest)
	}
	return true
}

// Len returns the number of tracked ids
func (t *MediaGroupTracker) Len() int {
	return len(t.order)
}
