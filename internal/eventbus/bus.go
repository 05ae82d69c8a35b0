package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names a raid lifecycle event.
type Type string

const (
	ChannelConnected     Type = "raid.connected"
	ChannelConnectFailed Type = "raid.connect_failed"
	MessageSent          Type = "raid.sent"
	MessageFloodWait     Type = "raid.flood_wait"
	MessageSlowMode      Type = "raid.slow_mode"
	MessageFailed        Type = "raid.failed"
	IntervalChanged      Type = "raid.interval_changed"
)

// Event is published by channel tasks. Publish never blocks, so a slow
// subscriber loses events rather than stalling a raid.
type Event struct {
	Type    Type
	Time    time.Time
	Channel string
	Attempt int
	// Wait is the provider wait hint or the new interval, depending on Type.
	Wait  time.Duration
	Error string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the read lock while sending keeps unsubscribe (which closes the
	// channel under the write lock) from racing a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
