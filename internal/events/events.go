// Package events fans detector and trigger activity out to observers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
)

// Type identifies the kind of event.
type Type string

const (
	MotionDetected    Type = "motion_detected"
	ZoneTriggered     Type = "zone_triggered"
	ZoneTriggerFailed Type = "zone_trigger_failed"
	CameraFetchFailed Type = "camera_fetch_failed"
	DetectorArmed     Type = "detector_armed"
	DetectorIdle      Type = "detector_idle"
)

// Event is a single notification. Unused fields are omitted from JSON.
type Event struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Time    time.Time       `json:"time"`
	Camera  string          `json:"camera,omitempty"`
	ZoneID  string          `json:"zone_id,omitempty"`
	Title   string          `json:"title,omitempty"`
	Command string          `json:"command,omitempty"`
	Regions []motion.Region `json:"regions,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// New returns an event of type t stamped with a fresh id and the current time.
func New(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now()}
}

// Publisher is anything that accepts events.
type Publisher interface {
	Publish(Event)
}

// Bus delivers events to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish sends e to every subscriber.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Debug().Str("type", string(e.Type)).Msg("Event subscriber is slow, dropping event")
		}
	}
}

// Close closes all subscriber channels. Publish is a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
