package line

import (
	"fmt"
	"time"
)

// Replay applies events in order: wait for the event's delay (zero or
// negative delays do not wait), then set data, clock and enable. It does not
// return the lines to idle; the caller does that once replay completes.
func Replay(l Lines, events []ReplayEvent, sleep func(time.Duration)) error {
	if sleep == nil {
		sleep = Delay
	}
	for i, ev := range events {
		if ev.Delay > 0 {
			sleep(ev.Delay)
		}
		if err := l.SetLine(Data, ev.Data); err != nil {
			return fault(fmt.Sprintf("replaying event %d", i), err)
		}
		if err := l.SetLine(Clock, ev.Clock); err != nil {
			return fault(fmt.Sprintf("replaying event %d", i), err)
		}
		if err := l.SetLine(Enable, ev.Enable); err != nil {
			return fault(fmt.Sprintf("replaying event %d", i), err)
		}
	}
	return nil
}
