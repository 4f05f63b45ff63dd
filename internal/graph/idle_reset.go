package graph

import (
	"sync"
	"time"

	"github.com/rendis/agentboard/pkg/schema"
)

// Timer is a cancellable pending callback. Stop reports whether the
// callback was prevented from running.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the reducer's delayed effects so tests can run
// them on a virtual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the wall-clock implementation of Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSet is a keyed collection of pending timers with
// last-schedule-wins semantics per key.
type timerSet[K comparable] struct {
	clock Clock
	delay time.Duration
	fire  func(K)

	mu     sync.Mutex
	timers map[K]Timer
}

func newTimerSet[K comparable](clock Clock, delay time.Duration, fire func(K)) *timerSet[K] {
	return &timerSet[K]{
		clock:  clock,
		delay:  delay,
		fire:   fire,
		timers: make(map[K]Timer),
	}
}

// Schedule arms the timer for key, replacing any pending one.
func (s *timerSet[K]) Schedule(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = s.clock.AfterFunc(s.delay, func() {
		// The timer may have been replaced between firing and acquiring the
		// lock; only a still-registered timer delivers.
		s.mu.Lock()
		_, live := s.timers[key]
		delete(s.timers, key)
		s.mu.Unlock()
		if live {
			s.fire(key)
		}
	})
}

// Cancel stops the pending timer for key, if any.
func (s *timerSet[K]) Cancel(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every pending timer.
func (s *timerSet[K]) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of armed timers.
func (s *timerSet[K]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ResetScheduler owns the per-agent idle-reset timers. At most one timer
// per agent is pending; scheduling again replaces it, and cancellation is
// race-free against a concurrent fire.
type ResetScheduler struct {
	agents     *timerSet[schema.AgentID]
	animations *timerSet[int]
	clock      Clock
}

// NewResetScheduler builds a scheduler delivering idle resets through
// fireReset and animation expirations through fireAnimation. Both
// callbacks run on timer goroutines; the caller routes them back into its
// apply loop.
func NewResetScheduler(clock Clock, fireReset func(schema.AgentID), fireAnimation func(int)) *ResetScheduler {
	return &ResetScheduler{
		agents:     newTimerSet(clock, IdleResetDelay, fireReset),
		animations: newTimerSet(clock, AnimationWindow, fireAnimation),
		clock:      clock,
	}
}

// Dispatch executes the timer directives from one Apply call.
func (s *ResetScheduler) Dispatch(effects Effects) {
	if effects.CancelAllIdleResets {
		s.agents.CancelAll()
	}
	for _, id := range effects.CancelIdleReset {
		s.agents.Cancel(id)
	}
	for _, id := range effects.ScheduleIdleReset {
		s.agents.Schedule(id)
	}
	for _, issue := range effects.ScheduleAnimationReset {
		s.animations.Schedule(issue)
	}
}

// PendingResets returns the number of agents with an armed idle-reset timer.
func (s *ResetScheduler) PendingResets() int { return s.agents.Pending() }

// Stop cancels every pending timer.
func (s *ResetScheduler) Stop() {
	s.agents.CancelAll()
	s.animations.CancelAll()
}
