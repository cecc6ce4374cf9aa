package authflow

import (
	"sync"
	"time"
)

// countdown drives the once-per-second resend cooldown display. The value it
// reports is always derived from the issuance instant, so re-renders and
// ticker jitter cannot drift the counter. It stops itself after reporting
// zero and can be stopped early when the user navigates away.
type countdown struct {
	issuer *OneTimeCodeIssuer
	onTick func(secondsRemaining int)

	stop chan struct{}
	once sync.Once
}

func startCountdown(issuer *OneTimeCodeIssuer, onTick func(secondsRemaining int)) *countdown {
	c := &countdown{
		issuer: issuer,
		onTick: onTick,
		stop:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *countdown) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.onTick(c.seconds())

	for {
		select {
		case <-ticker.C:
			remaining := c.seconds()
			c.onTick(remaining)
			if remaining == 0 {
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *countdown) seconds() int {
	remaining := c.issuer.Remaining()
	if remaining <= 0 {
		return 0
	}
	seconds := int(remaining / time.Second)
	if remaining%time.Second > 0 {
		seconds++
	}
	return seconds
}

// Stop cancels the countdown. Safe to call more than once and after the
// countdown already finished.
func (c *countdown) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
}
