package engine

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/growth/internal/date"
)

// DefaultChannelBuffer is the buffer size for subscriber channels.
const DefaultChannelBuffer = 16

// EventType identifies what happened.
type EventType string

const (
	EventReconciled     EventType = "reconciled"
	EventAwarded        EventType = "awarded"
	EventLevelUp        EventType = "level_up"
	EventStreakExtended EventType = "streak_extended"
	EventStreakReset    EventType = "streak_reset"
)

// Event is published after a state change has been committed locally.
type Event struct {
	Seq        int64     `json:"seq"`
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	Day        date.Date `json:"day"`
	Amount     int       `json:"amount,omitempty"`
	Experience int       `json:"experience"`
	Level      int       `json:"level"`
	Streak     int       `json:"streak"`
	EventID    string    `json:"eventId,omitempty"`
}

// broadcaster fans events out to subscriber channels without blocking the
// publisher. A full channel drops the event.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	seq    sequence
	log    zerolog.Logger
}

func newBroadcaster(log zerolog.Logger) *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event), log: log}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.Seq = b.seq.next()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug().Int("subscriber", id).Str("type", string(ev.Type)).Msg("subscriber full, event dropped")
		}
	}
}
