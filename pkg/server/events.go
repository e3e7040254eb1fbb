package server

import (
	"sync"

	"github.com/google/uuid"
)

// Event types sent to job subscribers.
const (
	EventProgress = "progress"
	EventPlan     = "plan"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is a job update pushed to SSE clients.
type Event struct {
	Type     string    `json:"type"`
	JobID    uuid.UUID `json:"jobId"`
	Progress int       `json:"progress"`
	Step     string    `json:"step,omitempty"`
	Status   string    `json:"status,omitempty"`
	Data     any       `json:"data,omitempty"`
}

// Terminal reports whether no event will follow e for its job.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Broadcaster fans job events out to subscribers. A subscriber whose buffer
// is full misses the event.
type Broadcaster struct {
	buffer int

	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{buffer: buffer, subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe returns a channel of jobID's events and a function that ends the
// subscription.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to the job's subscribers without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers counts the open subscriptions of jobID.
func (b *Broadcaster) Subscribers(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
