package events

import (
	"sync"
	"time"
)

// Kind names a job lifecycle transition.
type Kind string

const (
	JobQueued    Kind = "job_queued"
	JobStarted   Kind = "job_started"
	JobSucceeded Kind = "job_succeeded"
	JobFailed    Kind = "job_failed"
)

// Event is one job transition published on the bus.
type Event struct {
	Kind    Kind      `json:"kind"`
	JobID   int64     `json:"job_id"`
	BatchID string    `json:"batch_id"`
	Stage   string    `json:"stage"`
	At      time.Time `json:"at"`
}

// Bus provides simple in-process pub/sub for observability.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
