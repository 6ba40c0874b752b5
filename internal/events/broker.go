package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is how many undelivered events a subscriber may hold.
// Further events are dropped until the subscriber catches up.
const subscriberBuffer = 8

// Broker is an EventHandler that routes each JobEvent to the subscribers
// of that job.
type Broker struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*subscription]struct{}
	logger *slog.Logger
}

type subscription struct {
	ch chan JobEvent
}

var _ EventHandler = (*Broker)(nil)

// NewBroker creates an empty Broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]map[*subscription]struct{}),
		logger: logger.With("component", "event_broker"),
	}
}

// Subscribe registers interest in jobID. The returned cancel func must be
// called to release the subscription; it closes the channel.
func (b *Broker) Subscribe(jobID uuid.UUID) (<-chan JobEvent, func()) {
	sub := &subscription{ch: make(chan JobEvent, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*subscription]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[jobID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// HandleEvent implements EventHandler. It never blocks on a slow subscriber.
func (b *Broker) HandleEvent(ctx context.Context, event *JobEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[event.JobID] {
		select {
		case sub.ch <- *event:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				"job_id", event.JobID,
				"status", event.Status)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for jobID.
func (b *Broker) Subscribers(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
