// Package events fans out appointment mutations to live calendar viewers.
//
// A Bus is created at server start and closed at shutdown. Each subscriber
// owns a buffered channel of pre-serialized messages; Publish encodes an
// event once, walks the registry under a read lock and performs a
// non-blocking send per subscriber. A subscriber whose buffer is full is
// treated as a failed write: it is removed and its channel closed, so the
// stream handler ends and the client reconnects and re-fetches state.
//
// Delivery is at-most-once with no replay for late subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/turnos-backend/internal/domain"
)

// Name is the SSE event name carried by every calendar message.
const Name = "calendar_update"

// Event types.
const (
	TypeNew          = "new"
	TypeStatusChange = "status_change"
	TypeDeleted      = "deleted"
)

// Event is the tagged union broadcast on every mutation. Deleted events carry
// only ID; the others carry the full appointment.
type Event struct {
	Type        string              `json:"type"`
	Appointment *domain.Appointment `json:"appointment,omitempty"`
	ID          uint64              `json:"id,omitempty"`
}

// NewAppointment builds a "new" event.
func NewAppointment(a domain.Appointment) Event {
	return Event{Type: TypeNew, Appointment: &a}
}

// StatusChanged builds a "status_change" event.
func StatusChanged(a domain.Appointment) Event {
	return Event{Type: TypeStatusChange, Appointment: &a}
}

// Deleted builds a "deleted" event.
func Deleted(id uint64) Event {
	return Event{Type: TypeDeleted, ID: id}
}

// Publisher is what the booking service depends on. Both Bus and RedisRelay
// implement it.
type Publisher interface {
	Publish(ev Event)
}

// Subscription is one live viewer. C is closed when the subscriber is
// removed, either by Unsubscribe, by a failed write, or by Bus.Close.
type Subscription struct {
	id uint64
	C  <-chan []byte
	ch chan []byte
}

// Bus is the in-process subscriber registry.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

// NewBus returns an empty registry whose subscribers buffer up to buffer
// messages. Values below 1 are raised to 1.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{subs: make(map[uint64]*Subscription), buffer: buffer}
}

// Subscribe registers a new viewer. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan []byte, b.buffer)
	s := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	subscribersGauge.Set(float64(len(b.subs)))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s.id)
}

func (b *Bus) removeLocked(id uint64) {
	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.ch)
	subscribersGauge.Set(float64(len(b.subs)))
}

// Publish serializes ev and delivers it to every current subscriber. A full
// subscriber buffer never delays the others.
func (b *Bus) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("component", "events").Str("type", ev.Type).Msg("encode event")
		return
	}
	b.broadcast(ev.Type, payload)
}

// broadcast delivers an already-encoded payload. Sends are non-blocking and
// happen under the read lock; channels are only closed under the write lock.
func (b *Bus) broadcast(typ string, payload []byte) {
	publishedTotal.WithLabelValues(typ).Inc()

	var failed []uint64
	b.mu.RLock()
	for id, s := range b.subs {
		select {
		case s.ch <- payload:
		default:
			failed = append(failed, id)
		}
	}
	b.mu.RUnlock()
	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	for _, id := range failed {
		b.removeLocked(id)
	}
	b.mu.Unlock()
	log.Warn().Str("component", "events").Int("dropped", len(failed)).Msg("removed slow subscribers")
}

// Len reports the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscriber and rejects new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.subs {
		b.removeLocked(id)
	}
}
