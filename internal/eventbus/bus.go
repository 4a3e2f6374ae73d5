package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	logx "resumeassist/pkg/logx"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish delivers synchronously to handlers, in registration order.
//   - Publishing on a channel nobody listens to drops the event; nothing is
//     queued or replayed to later subscribers.
//   - Taps are passive observers fed through buffered channels; a slow tap
//     drops events instead of blocking Publish.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Handler receives events published on one channel.
type Handler func(e Event)

type Bus interface {
	Publish(channel string, data any)
	Subscribe(channel string, h Handler) (unsubscribe func())
	Tap(buffer int) (ch <-chan Event, unsubscribe func())
	Subscribers(channel string) int
}

type Option func(*memBus)

// WithLogger reports handler panics.
func WithLogger(log logx.Logger) Option {
	return func(b *memBus) { b.log = log }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *memBus) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns an in-memory named-channel bus.
//
// It does not own any background goroutines.
func New(opts ...Option) Bus {
	b := &memBus{
		channels: map[string][]*subscription{},
		taps:     map[uint64]chan Event{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type subscription struct {
	id     uint64
	h      Handler
	active atomic.Bool
}

type memBus struct {
	mu       sync.RWMutex
	channels map[string][]*subscription
	taps     map[uint64]chan Event
	seq      atomic.Uint64

	log logx.Logger
	now func() time.Time
}

func (b *memBus) Publish(channel string, data any) {
	e := Event{Type: channel, Time: b.now(), Data: data}

	// Snapshot so handlers can (un)subscribe while we deliver.
	b.mu.RLock()
	subs := append([]*subscription(nil), b.channels[channel]...)
	taps := make([]chan Event, 0, len(b.taps))
	for _, ch := range b.taps {
		taps = append(taps, ch)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		// Skip handlers removed by an earlier handler in this pass.
		if !s.active.Load() {
			continue
		}
		b.deliver(s, e)
	}

	for _, ch := range taps {
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil && !b.log.IsZero() {
			b.log.Error("event handler panicked", logx.String("event", e.Type), logx.Any("panic", r))
		}
	}()
	s.h(e)
}

func (b *memBus) Subscribe(channel string, h Handler) func() {
	if h == nil {
		return func() {}
	}
	s := &subscription{id: b.seq.Add(1), h: h}
	s.active.Store(true)

	b.mu.Lock()
	b.channels[channel] = append(b.channels[channel], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.channels[channel]
			for i, cur := range subs {
				if cur.id == s.id {
					// Keep registration order for the remaining handlers.
					b.channels[channel] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.channels[channel]) == 0 {
				delete(b.channels, channel)
			}
		})
	}
}

func (b *memBus) Tap(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.taps[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.taps, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
}

func (b *memBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}
