package graph

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentboard/pkg/schema"
)

// virtualClock drives Clock callbacks deterministically from test code.
type virtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*virtualTimer
}

type virtualTimer struct {
	clock   *virtualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: t0}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &virtualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires every timer that comes due,
// in scheduling order, outside the clock lock.
func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*virtualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type firedReset struct {
	mu     sync.Mutex
	agents []schema.AgentID
	issues []int
}

func (f *firedReset) reset(id schema.AgentID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents = append(f.agents, id)
}

func (f *firedReset) animation(issue int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, issue)
}

func TestResetSchedulerFiresAfterDelay(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentCodeGen}})
	require.Equal(t, 1, s.PendingResets())

	clock.Advance(IdleResetDelay - time.Millisecond)
	assert.Empty(t, fired.agents)

	clock.Advance(time.Millisecond)
	assert.Equal(t, []schema.AgentID{schema.AgentCodeGen}, fired.agents)
	assert.Equal(t, 0, s.PendingResets())
}

func TestResetSchedulerCancelPreventsFire(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentCodeGen}})
	s.Dispatch(Effects{CancelIdleReset: []schema.AgentID{schema.AgentCodeGen}})
	assert.Equal(t, 0, s.PendingResets())

	clock.Advance(2 * IdleResetDelay)
	assert.Empty(t, fired.agents)
}

func TestResetSchedulerRescheduleReplacesTimer(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentReview}})
	clock.Advance(2 * time.Second)
	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentReview}})

	// The first timer's due point passes; only the replacement fires.
	clock.Advance(2 * time.Second)
	assert.Empty(t, fired.agents)
	clock.Advance(time.Second)
	assert.Equal(t, []schema.AgentID{schema.AgentReview}, fired.agents)
}

func TestResetSchedulerCancelAll(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{
		schema.AgentCodeGen, schema.AgentReview, schema.AgentTest,
	}})
	require.Equal(t, 3, s.PendingResets())

	s.Dispatch(Effects{CancelAllIdleResets: true})
	assert.Equal(t, 0, s.PendingResets())

	clock.Advance(2 * IdleResetDelay)
	assert.Empty(t, fired.agents)
}

func TestResetSchedulerAnimationWindow(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleAnimationReset: []int{100}})
	clock.Advance(AnimationWindow)
	assert.Equal(t, []int{100}, fired.issues)
	assert.Empty(t, fired.agents)
}

func TestResetSchedulerIndependentAgents(t *testing.T) {
	clock := newVirtualClock()
	var fired firedReset
	s := NewResetScheduler(clock, fired.reset, fired.animation)

	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentCodeGen}})
	clock.Advance(time.Second)
	s.Dispatch(Effects{ScheduleIdleReset: []schema.AgentID{schema.AgentReview}})

	// Cancelling one agent leaves the other armed.
	s.Dispatch(Effects{CancelIdleReset: []schema.AgentID{schema.AgentCodeGen}})
	clock.Advance(IdleResetDelay)
	assert.Equal(t, []schema.AgentID{schema.AgentReview}, fired.agents)
}

func TestSchedulerWithReducerEndToEnd(t *testing.T) {
	// The completed -> wait -> idle cycle, driven through real Effects.
	clock := newVirtualClock()
	r := NewReducer()
	state, _, _ := r.Apply(schema.NewGraphState(), started(schema.AgentCodeGen, 100))

	var mu sync.Mutex
	s := NewResetScheduler(clock, func(id schema.AgentID) {
		mu.Lock()
		defer mu.Unlock()
		state, _, _ = r.Apply(state, &schema.AgentIdleResetEvent{
			EventMeta: schema.EventMeta{Timestamp: clock.Now()}, AgentID: id,
		})
	}, func(int) {})

	var effects Effects
	state, _, effects = r.Apply(state, completed(schema.AgentCodeGen, 100))
	s.Dispatch(effects)

	require.Equal(t, schema.AgentStatusCompleted, state.Nodes["agent-codegen"].Agent.Status)
	clock.Advance(IdleResetDelay)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, schema.AgentStatusIdle, state.Nodes["agent-codegen"].Agent.Status)
	assert.Equal(t, 0, state.Nodes["agent-codegen"].Agent.Progress)
}

func TestRestartBeforeResetKeepsAgentRunning(t *testing.T) {
	// Agent completes, then picks up new work inside the reset window. The
	// stale timer must not knock it back to idle.
	clock := newVirtualClock()
	r := NewReducer()
	state, _, _ := r.Apply(schema.NewGraphState(), started(schema.AgentCodeGen, 100))

	var mu sync.Mutex
	s := NewResetScheduler(clock, func(id schema.AgentID) {
		mu.Lock()
		defer mu.Unlock()
		state, _, _ = r.Apply(state, &schema.AgentIdleResetEvent{
			EventMeta: schema.EventMeta{Timestamp: clock.Now()}, AgentID: id,
		})
	}, func(int) {})

	var effects Effects
	state, _, effects = r.Apply(state, completed(schema.AgentCodeGen, 100))
	s.Dispatch(effects)

	clock.Advance(time.Second)
	state, _, effects = r.Apply(state, started(schema.AgentCodeGen, 101))
	s.Dispatch(effects)

	clock.Advance(2 * IdleResetDelay)

	mu.Lock()
	defer mu.Unlock()
	agent := state.Nodes["agent-codegen"].Agent
	assert.Equal(t, schema.AgentStatusRunning, agent.Status)
	assert.Equal(t, 101, agent.CurrentIssue)
}
