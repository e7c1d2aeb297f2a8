// Package waitclock implements the high-precision wait-until-wall-clock
// primitive the scheduler arms for the final send and for every per-order
// release within a burst. Grounded in original_source/main.rs's
// busy-wait-after-sleep pattern, carried into Go idiom with runtime.Gosched
// standing in for the Rust std::hint::spin_loop pause. Operates in
// microseconds throughout (not milliseconds) so the claimed microsecond-order
// accuracy of spec.md §4.4 is real, not an artifact of a coarser clock read.
package waitclock

import (
	"fmt"
	"runtime"
	"time"
)

// SpinThreshold is the point below which cooperative sleep stops and the
// primitive spins instead, to avoid scheduler-quantum overshoot.
const SpinThreshold = 5 * time.Millisecond

// Clock abstracts wall-clock epoch-microsecond reads.
type Clock func() int64

// WallClockUs is the real wall clock, in epoch microseconds.
func WallClockUs() int64 { return time.Now().UnixMicro() }

// Until blocks the calling goroutine until clock() reports an epoch-µs value
// at or after targetUs, updating lastSeenUs as it observes the wall clock.
// lastSeenUs must hold the caller's most recent observed wall-clock reading
// and is mutated in place so the caller's regression tracking carries across
// calls (consecutive Until calls within one burst share the same guard).
//
// Returns an error, without blocking further, the instant the wall clock is
// observed to have moved backwards relative to *lastSeenUs.
func Until(clock Clock, lastSeenUs *int64, targetUs int64) error {
	if clock == nil {
		clock = WallClockUs
	}

	now := clock()
	if now < *lastSeenUs {
		return fmt.Errorf("waitclock: wall clock regressed from %dus to %dus", *lastSeenUs, now)
	}
	*lastSeenUs = now

	spinThresholdUs := SpinThreshold.Microseconds()
	if remaining := targetUs - now; remaining > spinThresholdUs {
		time.Sleep(time.Duration(remaining-spinThresholdUs) * time.Microsecond)

		now = clock()
		if now < *lastSeenUs {
			return fmt.Errorf("waitclock: wall clock regressed from %dus to %dus", *lastSeenUs, now)
		}
		*lastSeenUs = now
	}

	for now < targetUs {
		runtime.Gosched()
		now = clock()
		if now < *lastSeenUs {
			return fmt.Errorf("waitclock: wall clock regressed from %dus to %dus", *lastSeenUs, now)
		}
		*lastSeenUs = now
	}

	return nil
}
