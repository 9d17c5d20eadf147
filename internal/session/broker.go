// Package session owns the API token and broadcasts authentication events.
package session

import (
	"context"
	"sync"
)

type Event int

const (
	LoggedIn Event = iota + 1
	LoggedOut
	RefreshRequested
)

func (e Event) String() string {
	switch e {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	case RefreshRequested:
		return "refresh_requested"
	default:
		return "unknown"
	}
}

// Listener is called synchronously by Publish, in registration order.
type Listener func(ctx context.Context, ev Event)

// Broker fans session events out to listeners and channel subscribers.
// Publish never blocks on a slow subscriber: each subscription owns an
// unbounded queue drained in order by its own goroutine.
type Broker struct {
	mu        sync.Mutex
	listeners []Listener
	subs      map[*subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscription]struct{})}
}

// Listen registers fn to run inside every Publish call.
func (b *Broker) Listen(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Subscribe returns a channel receiving every event published after the
// call, and a cancel func that closes it.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	sub := newSubscription()

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			sub.close()
		})
	}
	return sub.out, cancel
}

func (b *Broker) Publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	listeners := append([]Listener(nil), b.listeners...)
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.push(ev)
	}
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
	done   chan struct{}
}

func newSubscription() *subscription {
	s := &subscription{out: make(chan Event), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
	s.cond.Signal()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	close(s.done)
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
