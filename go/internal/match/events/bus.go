package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Observer receives dispatched notifications.
type Observer func(Notification)

type subscription struct {
	id int
	fn Observer
}

// Bus queues notifications emitted by one controller and delivers them to
// observers, in emission order, when Dispatch is called.
type Bus struct {
	clock clockwork.Clock

	mu        sync.Mutex
	queue     []Notification
	observers []subscription
	nextID    int
}

// NewBus creates an empty bus.
func NewBus(clock clockwork.Clock) *Bus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus{clock: clock}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Bus) Subscribe(fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, subscription{id: id, fn: fn})

	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.observers {
		if s.id == id {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return
		}
	}
}

// Publish marshals payload and queues a notification for the next Dispatch.
func (b *Bus) Publish(matchID uuid.UUID, eventType EventType, payload interface{}) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		data = raw
	}

	n := Notification{
		ID:        uuid.New(),
		MatchID:   matchID,
		Type:      eventType,
		Timestamp: b.clock.Now(),
		Data:      data,
	}

	b.mu.Lock()
	b.queue = append(b.queue, n)
	b.mu.Unlock()
	return nil
}

// Dispatch delivers every queued notification to the current observers and
// returns how many notifications were delivered. Notifications published by
// an observer during Dispatch are delivered in the same call.
func (b *Bus) Dispatch() int {
	delivered := 0
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return delivered
		}
		batch := b.queue
		b.queue = nil
		observers := make([]subscription, len(b.observers))
		copy(observers, b.observers)
		b.mu.Unlock()

		for _, n := range batch {
			for _, s := range observers {
				b.deliver(s, n)
			}
			delivered++
		}
	}
}

func (b *Bus) deliver(s subscription, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(n.Type)).
				Str("match_id", n.MatchID.String()).
				Msg("notification observer panicked")
		}
	}()
	s.fn(n)
}

// Pending reports how many notifications are waiting for Dispatch.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
