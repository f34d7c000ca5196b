package mtproto

import (
	"sync"
	"time"
)

// Timer is the collaborator interface spec §6 names as
// timer_factory.create(fn): single-shot, restartable, idempotent
// cancel. DC cleanup, query retry/timeout, and the session's ack
// flush all go through it instead of raw time.Timer so tests can
// substitute a deterministic fake.
type Timer interface {
	Start(d time.Duration)
	Cancel()
}

// TimerFactory creates Timers bound to fn. The default implementation
// wraps time.AfterFunc; an embedding application may supply its own
// factory (e.g. one driven by an external event loop) the way spec §6
// treats timer_factory as an external collaborator.
type TimerFactory interface {
	Create(fn func()) Timer
}

type stdTimerFactory struct{}

// DefaultTimerFactory is the library's stock TimerFactory, used unless
// a UserAgent is configured with another one.
var DefaultTimerFactory TimerFactory = stdTimerFactory{}

func (stdTimerFactory) Create(fn func()) Timer {
	return &stdTimer{fn: fn}
}

type stdTimer struct {
	mu sync.Mutex
	t  *time.Timer
	fn func()
}

func (s *stdTimer) Start(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t != nil {
		s.t.Stop()
	}
	s.t = time.AfterFunc(d, s.fn)
}

func (s *stdTimer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}
