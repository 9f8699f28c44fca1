package competition

import (
	"sync"
	"time"
)

// ClockState is the task clock's lifecycle position.
type ClockState string

const (
	ClockIdle      ClockState = "idle"
	ClockCountdown ClockState = "countdown"
	ClockRunning   ClockState = "running"
	ClockTolerance ClockState = "tolerance"
)

// ClockConfig holds the clock's timing parameters.
type ClockConfig struct {
	Countdown     time.Duration
	RemainingTick time.Duration
	Tolerance     time.Duration
}

// ClockCallbacks are invoked from the clock's own goroutines, never while
// the clock lock is held.
type ClockCallbacks struct {
	OnCountdownTick func(taskID string, remaining int)
	OnRunning       func(taskID string)
	OnRemainingTick func(taskID string, remaining int)
	OnDeadline      func(taskID string)
	OnTolerance     func(taskID string, deadline time.Time)
}

// Clock drives one task at a time through countdown, running, an optional
// tolerance window and auto-stop.
type Clock struct {
	mu  sync.Mutex
	cfg ClockConfig
	cb  ClockCallbacks

	state    ClockState
	taskID   string
	deadline time.Time

	countdownStop chan struct{}
	stopTimer     *time.Timer
	tickerStop    chan struct{}
}

func NewClock(cfg ClockConfig, cb ClockCallbacks) *Clock {
	return &Clock{cfg: cfg, cb: cb, state: ClockIdle}
}

// State returns the current clock state.
func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TaskID returns the task the clock is driving, or "".
func (c *Clock) TaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskID
}

// Deadline returns the current effective deadline.
func (c *Clock) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Remaining returns seconds until the deadline, truncated at zero.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClockRunning && c.state != ClockTolerance {
		return 0
	}
	r := int(time.Until(c.deadline).Seconds())
	if r < 0 {
		r = 0
	}
	return r
}

// Begin starts the countdown for the task and, once it lapses, arms the
// remaining-time ticker and the auto-stop timeout. A zero-length countdown
// skips straight to running. The countdown runs on its own goroutine, so
// Begin returns immediately.
func (c *Clock) Begin(taskID string, maxSearchTime time.Duration) {
	c.mu.Lock()
	c.state = ClockCountdown
	c.taskID = taskID
	stop := make(chan struct{})
	c.countdownStop = stop
	c.mu.Unlock()

	go c.countdown(taskID, maxSearchTime, stop)
}

func (c *Clock) countdown(taskID string, maxSearchTime time.Duration, stop chan struct{}) {
	remaining := int(c.cfg.Countdown.Seconds())
	if remaining > 0 {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for remaining > 0 {
			if c.cb.OnCountdownTick != nil {
				c.cb.OnCountdownTick(taskID, remaining)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
				remaining--
			}
		}
	}

	c.mu.Lock()
	if c.state != ClockCountdown || c.taskID != taskID {
		c.mu.Unlock()
		return
	}
	c.state = ClockRunning
	c.deadline = time.Now().Add(maxSearchTime)
	c.stopTimer = time.AfterFunc(maxSearchTime, func() { c.expire(taskID) })
	tickerStop := make(chan struct{})
	c.tickerStop = tickerStop
	c.mu.Unlock()

	if c.cb.OnRunning != nil {
		c.cb.OnRunning(taskID)
	}
	go c.remainingTicks(taskID, tickerStop)
}

func (c *Clock) remainingTicks(taskID string, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.RemainingTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.cb.OnRemainingTick != nil {
				c.cb.OnRemainingTick(taskID, c.Remaining())
			}
		}
	}
}

func (c *Clock) expire(taskID string) {
	c.mu.Lock()
	if c.taskID != taskID || (c.state != ClockRunning && c.state != ClockTolerance) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if c.cb.OnDeadline != nil {
		c.cb.OnDeadline(taskID)
	}
}

// MaybeExtend implements the minimal time-difference guarantee: when a
// correct submission lands within the tolerance window before the deadline,
// the effective deadline moves to tolerance from now, counted from the
// triggering submission. A later trigger inside the window re-arms it.
// Returns true when the window was entered or re-armed.
func (c *Clock) MaybeExtend() bool {
	c.mu.Lock()
	if c.cfg.Tolerance <= 0 || (c.state != ClockRunning && c.state != ClockTolerance) {
		c.mu.Unlock()
		return false
	}
	if time.Until(c.deadline) > c.cfg.Tolerance {
		c.mu.Unlock()
		return false
	}

	taskID := c.taskID
	c.state = ClockTolerance
	c.deadline = time.Now().Add(c.cfg.Tolerance)
	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	c.stopTimer = time.AfterFunc(c.cfg.Tolerance, func() { c.expire(taskID) })
	deadline := c.deadline
	c.mu.Unlock()

	if c.cb.OnTolerance != nil {
		c.cb.OnTolerance(taskID, deadline)
	}
	return true
}

// Resume re-arms the clock mid-task after a restart: running state with the
// given remainder, no countdown, no OnRunning callback.
func (c *Clock) Resume(taskID string, remaining time.Duration) {
	c.mu.Lock()
	c.state = ClockRunning
	c.taskID = taskID
	c.deadline = time.Now().Add(remaining)
	c.stopTimer = time.AfterFunc(remaining, func() { c.expire(taskID) })
	tickerStop := make(chan struct{})
	c.tickerStop = tickerStop
	c.mu.Unlock()

	go c.remainingTicks(taskID, tickerStop)
}

// Halt clears all timers and returns the clock to idle. Any pending
// tolerance window is canceled.
func (c *Clock) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdownStop != nil {
		close(c.countdownStop)
		c.countdownStop = nil
	}
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
	c.state = ClockIdle
	c.taskID = ""
	c.deadline = time.Time{}
}
