// Package stream provides a small push/pull event primitive used by the sync
// engine: a Subject that fans values out to subscribers (optionally replaying
// its latest value to late subscribers) and a pull-based Stream interface with
// a handful of combinators.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrClosed is returned by Next after the consumer closed the stream.
	ErrClosed = errors.New("stream: closed")
)

// Stream is a pull-based sequence of values.
//
// Next blocks until a value is available, the sequence ends (io.EOF), the
// sequence fails (the terminal error), or ctx is done. A Stream is meant to be
// consumed by a single goroutine.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
	Close()
}

// Subject delivers every value passed to Next to all current subscribers in
// the same order. A replaying subject also hands its most recent value to each
// new subscriber before any later value.
type Subject[T any] struct {
	mu       sync.Mutex
	replay   bool
	hasValue bool
	latest   T
	subs     map[*Subscription[T]]struct{}
	done     bool
	err      error
}

// NewBehaviorSubject returns a replaying subject seeded with initial.
func NewBehaviorSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		replay:   true,
		hasValue: true,
		latest:   initial,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

// NewSubject returns a subject that only delivers values emitted after a
// subscription was made.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Value returns the most recent value, if any.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasValue
}

// Next emits v to all subscribers. Values emitted after Complete or Fail are dropped.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.latest = v
	s.hasValue = true
	for sub := range s.subs {
		sub.push(v)
	}
}

// Complete ends the sequence for every subscriber, current and future.
func (s *Subject[T]) Complete() {
	s.terminate(io.EOF)
}

// Fail ends the sequence with err for every subscriber, current and future.
func (s *Subject[T]) Fail(err error) {
	if err == nil {
		err = io.EOF
	}
	s.terminate(err)
}

func (s *Subject[T]) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	s.err = err
	for sub := range s.subs {
		sub.finish(err)
	}
	clear(s.subs)
}

// Err reports the terminal error, or nil while the subject is live.
func (s *Subject[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe attaches a new subscriber. A terminated subject yields a
// subscription that immediately reports the terminal error.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscription(s)
	if s.done {
		sub.finish(s.err)
		return sub
	}
	if s.replay && s.hasValue {
		sub.push(s.latest)
	}
	s.subs[sub] = struct{}{}
	return sub
}

func (s *Subject[T]) unsubscribe(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Subscription is an unbounded, ordered buffer of values delivered by a Subject.
type Subscription[T any] struct {
	owner  *Subject[T]
	mu     sync.Mutex
	buf    []T
	err    error
	closed bool
	notify chan struct{}
}

func newSubscription[T any](owner *Subject[T]) *Subscription[T] {
	return &Subscription[T]{
		owner:  owner,
		notify: make(chan struct{}, 1),
	}
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next implements Stream. Buffered values are always delivered before the
// terminal error.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		if len(s.buf) > 0 {
			v := s.buf[0]
			s.buf[0] = zero
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return zero, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the subscription and drops any buffered values.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = nil
	s.mu.Unlock()

	s.owner.unsubscribe(s)
	s.signal()
}

var _ Stream[int] = (*Subscription[int])(nil)
