package bridge

import (
	"time"
	"wc3-bridge/internal/schedule"

	"github.com/jonboulle/clockwork"
)

// loopScheduler fires timers on the clock and runs the callback on the bridge
// loop, so timer work is serialized with message handling.
type loopScheduler struct {
	clock clockwork.Clock
	post  func(func()) bool
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) schedule.Timer {
	return s.clock.AfterFunc(d, func() {
		s.post(fn)
	})
}
