package monitor

import (
	"sync"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// DefaultHistorySize is the default number of snapshots retained per server.
const DefaultHistorySize = 1000

// History keeps the most recent snapshots of every server in fixed-size
// ring buffers. The map lock is only held to find a ring; each ring has its
// own lock, so appends for different servers never contend.
type History struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer of snapshots.
type ringBuffer struct {
	mu    sync.Mutex
	data  []*metrics.Snapshot
	head  int
	count int
}

// NewHistory creates a history that keeps size snapshots per server.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:  size,
		rings: make(map[string]*ringBuffer),
	}
}

// Capacity returns the per-server bound.
func (h *History) Capacity() int {
	return h.size
}

// Append adds snap as the newest entry for serverID, evicting the oldest
// once the ring is full.
func (h *History) Append(serverID string, snap *metrics.Snapshot) {
	if snap == nil {
		return
	}
	r := h.ring(serverID, true)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[r.head] = snap
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// Recent returns up to limit of the newest snapshots, oldest first. A limit
// above the stored count returns everything.
func (h *History) Recent(serverID string, limit int) []*metrics.Snapshot {
	r := h.ring(serverID, false)
	if r == nil || limit <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > r.count {
		limit = r.count
	}
	size := len(r.data)
	result := make([]*metrics.Snapshot, limit)

	// head is the next write position, so the newest entry sits at head-1.
	start := (r.head - limit + size) % size
	for i := 0; i < limit; i++ {
		result[i] = r.data[(start+i)%size]
	}
	return result
}

// Latest returns the newest snapshot, or nil when there is none.
func (h *History) Latest(serverID string) *metrics.Snapshot {
	if recent := h.Recent(serverID, 1); len(recent) == 1 {
		return recent[0]
	}
	return nil
}

// Len returns how many snapshots are stored for serverID.
func (h *History) Len(serverID string) int {
	r := h.ring(serverID, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (h *History) ring(serverID string, create bool) *ringBuffer {
	h.mu.RLock()
	r, ok := h.rings[serverID]
	h.mu.RUnlock()
	if ok || !create {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rings[serverID]; !ok {
		r = &ringBuffer{data: make([]*metrics.Snapshot, h.size)}
		h.rings[serverID] = r
	}
	return r
}
