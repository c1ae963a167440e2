package prefs

import (
	"context"
	"sync"
)

// Broadcaster fans values out to any number of subscribers. New
// subscribers first receive the most recently published value. Each
// subscriber gets every value in publish order; a slow subscriber never
// blocks Publish or other subscribers.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	last T
	has  bool
	subs map[*subscription[T]]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*subscription[T]]struct{})}
}

// Publish records v as the latest value and queues it for every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = v
	b.has = true
	for s := range b.subs {
		s.push(v)
	}
}

// Current returns the latest published value, if any.
func (b *Broadcaster[T]) Current() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.has
}

// Subscribe returns a channel carrying the latest value (if any) followed
// by every later one. The channel is closed once ctx is done.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) <-chan T {
	s := &subscription[T]{wake: make(chan struct{}, 1)}

	b.mu.Lock()
	if b.has {
		s.push(b.last)
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	out := make(chan T)
	go func() {
		defer close(out)
		defer b.unsubscribe(s)

		for {
			v, ok := s.pop()
			if !ok {
				select {
				case <-s.wake:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (b *Broadcaster[T]) unsubscribe(s *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

type subscription[T any] struct {
	mu    sync.Mutex
	queue []T
	wake  chan struct{}
}

func (s *subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.queue) == 0 {
		return zero, false
	}
	v := s.queue[0]
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return v, true
}

// DistinctMap projects every value of in and forwards the projection only
// when it differs from the previously forwarded one. The returned channel
// closes when in closes or ctx is done.
func DistinctMap[T any, K comparable](ctx context.Context, in <-chan T, project func(T) K) <-chan K {
	out := make(chan K)
	go func() {
		defer close(out)

		var (
			prev K
			seen bool
		)
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				k := project(v)
				if seen && k == prev {
					continue
				}
				prev, seen = k, true
				select {
				case out <- k:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
