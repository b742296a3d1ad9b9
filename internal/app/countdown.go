package app

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Countdown is the per-session deadline clock. Remaining time is always derived
// from the start instant and the limit, never decremented per tick, so the
// displayed value and the real deadline cannot drift apart.
type Countdown struct {
	clock    clock.Clock
	limit    time.Duration
	interval time.Duration
	onTick   func(remaining time.Duration)
	onExpire func()

	mu        sync.Mutex
	startedAt time.Time
	started   bool
	running   bool
	fired     bool
	timer     *clock.Timer
	stopTicks chan struct{}
}

// NewCountdown builds a stopped countdown. onTick may be nil.
func NewCountdown(clk clock.Clock, limit, interval time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		clock:    clk,
		limit:    limit,
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start pins the start instant and arms the deadline.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.startedAt = c.clock.Now()
	c.armLocked()
}

// Stop disarms the countdown. The deadline itself is unchanged.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
}

// Resume re-arms a stopped countdown against the original deadline. If the
// deadline already passed and expiry has not been signalled, it is signalled now.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.running || c.fired {
		return
	}
	c.armLocked()
}

// StartedAt returns the start instant.
func (c *Countdown) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Deadline returns the instant at which the countdown reaches zero.
func (c *Countdown) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt.Add(c.limit)
}

// Elapsed is the time since start, capped at the limit.
func (c *Countdown) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// Remaining is max(0, limit - elapsed).
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit - c.elapsedLocked()
}

// RemainingSeconds rounds up so the display reads zero only at the deadline.
func (c *Countdown) RemainingSeconds() int {
	r := c.Remaining()
	return int((r + time.Second - 1) / time.Second)
}

// Expired reports whether the deadline has passed.
func (c *Countdown) Expired() bool {
	return c.Remaining() <= 0
}

func (c *Countdown) elapsedLocked() time.Duration {
	if !c.started {
		return 0
	}
	elapsed := c.clock.Since(c.startedAt)
	if elapsed > c.limit {
		return c.limit
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (c *Countdown) armLocked() {
	remaining := c.limit - c.elapsedLocked()
	if remaining <= 0 {
		c.fired = true
		go c.onExpire()
		return
	}
	c.running = true
	c.timer = c.clock.AfterFunc(remaining, c.fire)
	if c.onTick != nil {
		stop := make(chan struct{})
		c.stopTicks = stop
		go c.tickLoop(c.clock.Ticker(c.interval), stop)
	}
}

func (c *Countdown) disarmLocked() {
	if !c.running {
		return
	}
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.stopTicks != nil {
		close(c.stopTicks)
		c.stopTicks = nil
	}
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if !c.running || c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.disarmLocked()
	c.mu.Unlock()
	c.onExpire()
}

func (c *Countdown) tickLoop(ticker *clock.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			c.onTick(c.Remaining())
		}
	}
}
