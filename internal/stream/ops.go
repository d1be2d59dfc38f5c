package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Just returns a stream yielding the given values and then io.EOF.
func Just[T any](values ...T) Stream[T] {
	return &sliceStream[T]{values: values}
}

// Empty returns a stream that ends immediately.
func Empty[T any]() Stream[T] {
	return &sliceStream[T]{}
}

// Error returns a stream that fails immediately with err.
func Error[T any](err error) Stream[T] {
	return &sliceStream[T]{err: err}
}

type sliceStream[T any] struct {
	mu     sync.Mutex
	values []T
	err    error
	closed bool
}

func (s *sliceStream[T]) Next(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.closed {
		return zero, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(s.values) > 0 {
		v := s.values[0]
		s.values = s.values[1:]
		return v, nil
	}
	if s.err != nil {
		return zero, s.err
	}
	return zero, io.EOF
}

func (s *sliceStream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.values = nil
}

// TakeThrough yields values from src up to and including the first value for
// which stop returns true, then ends and closes src.
func TakeThrough[T any](src Stream[T], stop func(T) bool) Stream[T] {
	return &takeThrough[T]{src: src, stop: stop}
}

type takeThrough[T any] struct {
	src  Stream[T]
	stop func(T) bool
	mu   sync.Mutex
	done bool
}

func (t *takeThrough[T]) Next(ctx context.Context) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if t.done {
		return zero, io.EOF
	}
	v, err := t.src.Next(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.done = true
			t.src.Close()
		}
		return zero, err
	}
	if t.stop(v) {
		t.done = true
		t.src.Close()
	}
	return v, nil
}

func (t *takeThrough[T]) Close() {
	t.src.Close()
}

// Skip drops the first n values of src.
func Skip[T any](src Stream[T], n int) Stream[T] {
	return &skip[T]{src: src, remaining: n}
}

type skip[T any] struct {
	src       Stream[T]
	mu        sync.Mutex
	remaining int
}

func (s *skip[T]) Next(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.remaining > 0 {
		if _, err := s.src.Next(ctx); err != nil {
			var zero T
			return zero, err
		}
		s.remaining--
	}
	return s.src.Next(ctx)
}

func (s *skip[T]) Close() {
	s.src.Close()
}

// Last yields only the final value of src, once src ends.
func Last[T any](src Stream[T]) Stream[T] {
	return &last[T]{src: src}
}

type last[T any] struct {
	src      Stream[T]
	mu       sync.Mutex
	hasValue bool
	value    T
	done     bool
}

func (l *last[T]) Next(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if l.done {
		return zero, io.EOF
	}
	for {
		v, err := l.src.Next(ctx)
		if err == nil {
			l.value, l.hasValue = v, true
			continue
		}
		if !errors.Is(err, io.EOF) {
			return zero, err
		}
		l.done = true
		if !l.hasValue {
			return zero, io.EOF
		}
		return l.value, nil
	}
}

func (l *last[T]) Close() {
	l.src.Close()
}

// Map transforms every value of src with fn.
func Map[T, R any](src Stream[T], fn func(T) R) Stream[R] {
	return &mapped[T, R]{src: src, fn: fn}
}

type mapped[T, R any] struct {
	src Stream[T]
	fn  func(T) R
}

func (m *mapped[T, R]) Next(ctx context.Context) (R, error) {
	v, err := m.src.Next(ctx)
	if err != nil {
		var zero R
		return zero, err
	}
	return m.fn(v), nil
}

func (m *mapped[T, R]) Close() {
	m.src.Close()
}

// Filter yields only the values of src for which keep returns true.
func Filter[T any](src Stream[T], keep func(T) bool) Stream[T] {
	return &filtered[T]{src: src, keep: keep}
}

type filtered[T any] struct {
	src  Stream[T]
	keep func(T) bool
}

func (f *filtered[T]) Next(ctx context.Context) (T, error) {
	for {
		v, err := f.src.Next(ctx)
		if err != nil {
			return v, err
		}
		if f.keep(v) {
			return v, nil
		}
	}
}

func (f *filtered[T]) Close() {
	f.src.Close()
}

// Collect drains src until it ends. A clean end (io.EOF) is not reported as an error.
func Collect[T any](ctx context.Context, src Stream[T]) ([]T, error) {
	defer src.Close()

	var out []T
	for {
		v, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// First returns the first value of src and closes it.
func First[T any](ctx context.Context, src Stream[T]) (T, error) {
	defer src.Close()
	return src.Next(ctx)
}

// Each calls fn for every value of src until src ends or ctx is done. It is
// meant to run on its own goroutine.
func Each[T any](ctx context.Context, src Stream[T], fn func(T)) error {
	defer src.Close()
	for {
		v, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(v)
	}
}
