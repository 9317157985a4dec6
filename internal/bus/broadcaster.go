// Package bus fans keyed status updates out to subscribers.
//
// Publishers never block: every subscriber owns a bounded queue drained by
// its own pump goroutine. When a queue is full the oldest queued value is
// dropped, so a slow subscriber skips intermediate values but always ends
// up with the latest one.
package bus

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueCap is the per-subscriber queue size used when none is given.
const DefaultQueueCap = 16

var (
	// ErrNoTopic is returned when subscribing to a key that was never opened
	// or has already published its final value.
	ErrNoTopic = errors.New("bus: no such topic")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus: broadcaster closed")
)

// Broadcaster publishes values per key to any number of subscribers.
type Broadcaster[K comparable, V any] struct {
	mu       sync.RWMutex
	topics   map[K]*topic[V]
	queueCap int
	closed   bool
}

type topic[V any] struct {
	mu      sync.Mutex
	current V
	has     bool
	subs    map[string]*Subscription[V]
}

// New creates a broadcaster. queueCap <= 0 selects DefaultQueueCap.
func New[K comparable, V any](queueCap int) *Broadcaster[K, V] {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Broadcaster[K, V]{
		topics:   make(map[K]*topic[V]),
		queueCap: queueCap,
	}
}

// Open registers key with an initial value so that subscribers attaching
// before the next Publish still receive something.
func (b *Broadcaster[K, V]) Open(key K, initial V) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.topics[key]; ok {
		return nil
	}
	b.topics[key] = &topic[V]{
		current: initial,
		has:     true,
		subs:    make(map[string]*Subscription[V]),
	}
	return nil
}

// Publish records v as the current value of key and queues it for every
// subscriber. When final is true the topic is retired after queuing: each
// subscription closes once it has delivered v.
func (b *Broadcaster[K, V]) Publish(key K, v V, final bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	t, ok := b.topics[key]
	if !ok {
		t = &topic[V]{subs: make(map[string]*Subscription[V])}
		b.topics[key] = t
	}
	if final {
		delete(b.topics, key)
	}
	b.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = v
	t.has = true
	for _, sub := range t.subs {
		sub.push(v, final)
	}
	if final {
		t.subs = nil
	}
}

// Current returns the latest value published for key.
func (b *Broadcaster[K, V]) Current(key K) (V, bool) {
	b.mu.RLock()
	t, ok := b.topics[key]
	b.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.has
}

// Subscribe attaches a new subscriber to key. The current value, if any,
// is the first value delivered. The subscription ends when the final value
// has been delivered, on Unsubscribe, or when ctx is done.
func (b *Broadcaster[K, V]) Subscribe(ctx context.Context, key K) (*Subscription[V], error) {
	b.mu.RLock()
	closed := b.closed
	t, ok := b.topics[key]
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, ErrNoTopic
	}

	sub := newSubscription[V](b.queueCap)

	t.mu.Lock()
	if t.subs == nil {
		// Final value published between the lookup and here.
		t.mu.Unlock()
		return nil, ErrNoTopic
	}
	if t.has {
		sub.push(t.current, false)
	}
	t.subs[sub.id] = sub
	t.mu.Unlock()

	sub.detach = func() {
		t.mu.Lock()
		delete(t.subs, sub.id)
		t.mu.Unlock()
	}

	go sub.pump(ctx)
	return sub, nil
}

// Subscribers returns the number of live subscriptions for key.
func (b *Broadcaster[K, V]) Subscribers(key K) int {
	b.mu.RLock()
	t, ok := b.topics[key]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close ends every subscription. Later Publish calls are ignored.
func (b *Broadcaster[K, V]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[K]*topic[V])
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		subs := t.subs
		t.subs = nil
		t.mu.Unlock()
		for _, sub := range subs {
			sub.stop()
		}
	}
	slog.Debug("bus: broadcaster closed", "topics", len(topics))
}

// Subscription is one subscriber's view of a topic.
type Subscription[V any] struct {
	id  string
	out chan V

	mu      sync.Mutex
	queue   []V
	cap     int
	final   bool
	dropped int

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	detach   func()
}

func newSubscription[V any](queueCap int) *Subscription[V] {
	return &Subscription[V]{
		id:   uuid.NewString(),
		out:  make(chan V),
		cap:  queueCap,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// ID returns the subscription's unique identifier.
func (s *Subscription[V]) ID() string { return s.id }

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[V]) C() <-chan V { return s.out }

// All returns the delivered values as a sequence. Breaking out of the loop
// unsubscribes.
func (s *Subscription[V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		for v := range s.out {
			if !yield(v) {
				s.Unsubscribe()
				return
			}
		}
	}
}

// Dropped returns how many queued values were discarded because the
// subscriber fell behind.
func (s *Subscription[V]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe detaches from the topic and closes C. Safe to call more than once.
func (s *Subscription[V]) Unsubscribe() {
	if s.detach != nil {
		s.detach()
	}
	s.stop()
}

func (s *Subscription[V]) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// push queues v without blocking. Must not be called after a final push.
func (s *Subscription[V]) push(v V, final bool) {
	s.mu.Lock()
	if s.final {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.cap {
		var zero V
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, v)
	s.final = final
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[V]) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			final := s.final
			s.mu.Unlock()
			if final {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				s.Unsubscribe()
				return
			}
		}
		v := s.queue[0]
		var zero V
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		case <-ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}
