package stream

import (
	"sync"
	"sync/atomic"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Hub broadcasts one upstream tick stream to many independent subscribers
// ⭐ SSOT: 체결 틱 팬아웃은 이 허브에서만
//
// Every subscriber observes every published event on its own buffered
// channel. A subscriber leaving never tears the hub down, and a slow
// subscriber only loses its own oldest events: when a buffer is full the
// oldest buffered event is dropped to make room, so the hub never blocks
// the upstream reader.
type Hub struct {
	logger *logger.Logger

	mu     sync.RWMutex
	subs   map[int]*Subscription
	subSeq int
	closed bool

	dropped atomic.Uint64 // total events dropped across all subscribers
}

// DefaultSubscriberBuffer is the per-subscriber channel capacity
const DefaultSubscriberBuffer = 1024

// NewHub creates an empty broadcast hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		subs:   make(map[int]*Subscription),
	}
}

// Subscribe registers a new subscriber. buffer <= 0 uses the default.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.subSeq++
	sub := &Subscription{
		hub: h,
		id:  h.subSeq,
		ch:  make(chan market.StreamEvent, buffer),
	}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub

	return sub
}

// Publish delivers a tick to every subscriber
func (h *Hub) Publish(tick *market.TradeTick) {
	h.broadcast(market.TickEvent(tick))
}

// PublishError broadcasts an upstream failure to every subscriber. All
// consumers are equally affected by a transport error, so all of them see it.
func (h *Hub) PublishError(err error) {
	h.broadcast(market.ErrorEvent(err))
}

func (h *Hub) broadcast(ev market.StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: drop the subscriber's oldest event, then retry.
			select {
			case <-sub.ch:
				h.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				h.dropped.Add(1)
			}
		}
	}
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}

	if n := h.dropped.Load(); n > 0 {
		h.logger.WithField("dropped", n).Warn("Hub closed with dropped events")
	}
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns the total number of events dropped for slow subscribers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Subscription is one consumer's handle on the broadcast stream
type Subscription struct {
	hub *Hub
	id  int
	ch  chan market.StreamEvent

	cancelOnce sync.Once
}

// C returns the event channel. It is closed when the subscription is
// cancelled or the hub shuts down.
func (s *Subscription) C() <-chan market.StreamEvent {
	return s.ch
}

// Cancel removes this subscriber from the hub. Other subscribers and the
// upstream connection are unaffected.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}
