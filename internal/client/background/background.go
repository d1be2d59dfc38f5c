// Package background tracks when the client goes to the background and
// signals when it becomes active again.
package background

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/trackd/internal/stream"
)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Service turns background/foreground transitions into "became active" signals.
// A foreground transition without a preceding background transition signals
// nothing, so repeated EnterForeground calls signal at most once.
type Service struct {
	clock     Clock
	threshold time.Duration

	mu                    sync.Mutex
	lastEnteredBackground *time.Time

	// time spent in background, per return to foreground
	active *stream.Subject[time.Duration]
}

// NewService returns a Service whose AppBecameActive only fires after at
// least threshold in background.
func NewService(clock Clock, threshold time.Duration) (*Service, error) {
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if threshold < 0 {
		return nil, errors.New("threshold must not be negative")
	}
	return &Service{
		clock:     clock,
		threshold: threshold,
		active:    stream.NewSubject[time.Duration](),
	}, nil
}

func (s *Service) EnterBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.lastEnteredBackground = &now
	slog.Debug("entered background")
}

func (s *Service) EnterForeground() {
	s.mu.Lock()
	if s.lastEnteredBackground == nil {
		s.mu.Unlock()
		return
	}
	inBackground := s.clock.Now().Sub(*s.lastEnteredBackground)
	s.lastEnteredBackground = nil
	s.mu.Unlock()

	slog.Debug("entered foreground", "background", inBackground)
	s.active.Next(inBackground)
}

// isInBackground reports whether EnterBackground was called without a
// matching EnterForeground yet
func (s *Service) isInBackground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEnteredBackground != nil
}

// AppBecameActive signals every return to foreground after the configured threshold
func (s *Service) AppBecameActive() stream.Stream[struct{}] {
	return s.AppBecameActiveAfterAtLeast(s.threshold)
}

// AppBecameActiveAfterAtLeast signals every return to foreground after at
// least d in background
func (s *Service) AppBecameActiveAfterAtLeast(d time.Duration) stream.Stream[struct{}] {
	longEnough := stream.Filter[time.Duration](s.active.Subscribe(), func(inBackground time.Duration) bool {
		return inBackground >= d
	})
	return stream.Map(longEnough, func(time.Duration) struct{} { return struct{}{} })
}

// Close ends every signal stream
func (s *Service) Close() {
	s.active.Complete()
}
