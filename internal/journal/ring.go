package journal

import (
	"sync"

	"projd/internal/model"
)

const DefaultRingCapacity = 1000

// Ring is the bounded diagnostic buffer behind get_recent_events. FIFO with
// oldest-first eviction: losing old diagnostic history under a burst is the
// deliberate backpressure policy and never affects live state.
type Ring struct {
	mu       sync.Mutex
	capacity int
	entries  []model.EventRecord
	dropped  int64
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{capacity: capacity}
}

// Append records one entry, evicting the oldest when full.
func (r *Ring) Append(rec model.EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
		r.dropped++
	}
	r.entries = append(r.entries, rec)
}

// SetStatus updates the status of the newest entry with the given id.
// A missing entry (already evicted) is not an error.
func (r *Ring) SetStatus(eventID string, status model.EventStatus, errorMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].EventID == eventID {
			r.entries[i].Status = status
			r.entries[i].ErrorMessage = errorMessage
			return
		}
	}
}

// Recent returns up to limit entries, newest first, optionally filtered by
// event type. limit <= 0 means all surviving entries.
func (r *Ring) Recent(limit int, eventType string) []model.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventRecord, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		if eventType != "" && r.entries[i].EventType != eventType {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *Ring) Capacity() int {
	return r.capacity
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Oldest returns the oldest surviving entry.
func (r *Ring) Oldest() (model.EventRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return model.EventRecord{}, false
	}
	return r.entries[0], true
}

// Dropped counts entries evicted since startup.
func (r *Ring) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
