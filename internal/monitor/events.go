package monitor

import (
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// EventType names what an Event carries.
type EventType string

const (
	EventStatus   EventType = "status"
	EventSnapshot EventType = "snapshot"
	EventJob      EventType = "job"
)

// Event is one notification from the engine.
type Event struct {
	Type       EventType         `json:"type"`
	ServerID   string            `json:"server_id"`
	Time       time.Time         `json:"time"`
	Status     *Status           `json:"status,omitempty"`
	Snapshot   *metrics.Snapshot `json:"snapshot,omitempty"`
	Job        *Job              `json:"job,omitempty"`
	RetryCount int               `json:"retry_count"`
}

// Events fans events out to subscribers. Publishing never blocks; a
// subscriber whose buffer is full misses the event.
type Events struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	buffer  int
	dropped func()
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// NewEvents creates a hub whose subscribers buffer up to buffer events.
func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 64
	}
	return &Events{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (e *Events) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, e.buffer)}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = sub
	e.mu.Unlock()

	return sub.ch, func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Publish delivers ev to every subscriber with room for it.
func (e *Events) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		select {
		case sub.ch <- ev:
		default:
			if e.dropped != nil {
				e.dropped()
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (e *Events) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Close ends every subscription.
func (e *Events) Close() {
	e.mu.Lock()
	subs := e.subs
	e.subs = make(map[int]*subscriber)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}
