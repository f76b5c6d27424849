package notify

import (
	"sync"
	"time"
)

// EventPrescriptionsChanged tells listeners to re-query the prescription cache
const EventPrescriptionsChanged = "prescriptions_changed"

// Event is a fire-and-forget signal
type Event struct {
	Type           string    `json:"type"`
	PrescriptionID string    `json:"prescription_id,omitempty"`
	At             time.Time `json:"at"`
}

// Broadcaster fans events out to subscribers without blocking the
// publisher. Subscribers that fall behind miss events.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns an event channel and the func that closes it
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room for it
func (b *Broadcaster) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// PrescriptionsChanged publishes the cache-changed signal
func (b *Broadcaster) PrescriptionsChanged(prescriptionID string) {
	b.Publish(Event{Type: EventPrescriptionsChanged, PrescriptionID: prescriptionID})
}
