package service

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the part of time.Ticker the countdown uses, so tests can drive it.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Countdown ticks once per second and calls onExpire exactly once when it
// reaches zero. Stop cancels it; a stopped countdown never expires.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func StartCountdown(seconds int, newTicker TickerFactory, onExpire func()) *Countdown {
	c := &Countdown{
		remaining: seconds,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	t := newTicker(time.Second)
	go c.run(t, onExpire)
	return c
}

func (c *Countdown) run(t Ticker, onExpire func()) {
	defer close(c.done)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C():
		}

		c.mu.Lock()
		// A Stop racing with the tick wins.
		select {
		case <-c.stop:
			c.mu.Unlock()
			return
		default:
		}
		if c.remaining > 0 {
			c.remaining--
		}
		fire := c.remaining == 0
		if fire {
			c.expired = true
		}
		c.mu.Unlock()

		if fire {
			c.Stop()
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Stop is idempotent and safe to call from onExpire.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} { return c.done }

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
