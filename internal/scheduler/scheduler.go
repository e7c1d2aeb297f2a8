// Package scheduler is the orchestrator: it resolves a wall-clock target,
// budgets and runs calibration, computes the precise send time, and releases
// the order burst. Grounded in original_source/main.rs's per-endpoint run
// loop, carried into Go with one task tree per endpoint per spec.md §5.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sarkhati/dispatcher/internal/calibration"
	"github.com/sarkhati/dispatcher/internal/endpoint"
	"github.com/sarkhati/dispatcher/internal/httpclient"
	"github.com/sarkhati/dispatcher/internal/metrics"
	"github.com/sarkhati/dispatcher/internal/ratelimiter"
	"github.com/sarkhati/dispatcher/internal/waitclock"
)

// Logf is the log sink used for all scheduler status lines.
type Logf func(format string, args ...any)

// Options toggles the non-production dispatch paths.
type Options struct {
	Test     bool // send the first order once, bypassing scheduling.
	CurlOnly bool // print the equivalent curl command, suppress the HTTP call.
}

// NextTargetDatetime interprets targetTime ("HH:MM:SS.mmm") in loc and
// returns the next wall-clock instant matching it: today's occurrence if it
// hasn't passed yet, otherwise tomorrow's.
func NextTargetDatetime(targetTime string, loc *time.Location, now time.Time) (time.Time, error) {
	var h, m, s, ms int
	n, err := fmt.Sscanf(targetTime, "%d:%d:%d.%d", &h, &m, &s, &ms)
	if n < 3 || err != nil {
		n2, err2 := fmt.Sscanf(targetTime, "%d:%d:%d", &h, &m, &s)
		if n2 != 3 || err2 != nil {
			return time.Time{}, fmt.Errorf("scheduler: invalid target_time %q, want HH:MM:SS[.mmm]", targetTime)
		}
		ms = 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return time.Time{}, fmt.Errorf("scheduler: target_time %q out of range", targetTime)
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), h, m, s, ms*int(time.Millisecond), loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func ceilHalf(x int64) int64 {
	return (x + 1) / 2
}

// RunScheduled executes one full calibrated dispatch cycle against ep: pacing
// the calibration window around targetTime, computing the send plan, and
// releasing the order burst in sequence. It returns once the cycle completes
// (test mode: after the first order; otherwise after the full burst). hostSem
// is only consulted by the continuous-mode fallback (no target_time); it may
// be nil, in which case that fallback runs unbounded per-host concurrency.
func RunScheduled(ctx context.Context, logf Logf, met *metrics.Metrics, ep endpoint.Profile, rl *ratelimiter.RateLimiter, loc *time.Location, hostSem *httpclient.HostSemaphore, opts Options) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	runID := uuid.New().String()
	label := fmt.Sprintf("[%s %s]", ep.Name, runID[:8])

	orders := ep.Doc.Orders
	if len(orders) == 0 {
		return fmt.Errorf("%s no orders configured", label)
	}

	if opts.Test {
		return dispatchOne(ctx, logf, met, ep, orders[0], opts.CurlOnly)
	}

	if ep.Doc.TargetTime == "" {
		return RunContinuous(ctx, logf, met, ep, rl, hostSem, opts)
	}

	target, err := NextTargetDatetime(ep.Doc.TargetTime, loc, time.Now())
	if err != nil {
		return fmt.Errorf("%s %w", label, err)
	}
	logf("%s next target: %s", label, target.Format(time.RFC3339))

	profile := ep.Doc.Calibration
	if profile == nil {
		defaults := calibration.Profile{Enabled: true}.WithDefaults()
		profile = &defaults
	}

	targetMs := target.UnixMilli()
	reserveBaseMs := profile.MaxAcceptableRTTMs
	if ep.DelayModel == "HALF_RTT" {
		reserveBaseMs = ceilHalf(reserveBaseMs)
	}
	reserveMs := reserveBaseMs + profile.SafetyMarginMs + ep.Doc.BatchDelayMs
	probeDurationMs := int64(profile.ProbeCount) * profile.ProbeIntervalMs
	latestProbeFinishMs := targetMs - reserveMs
	calibrationStartMs := latestProbeFinishMs - probeDurationMs

	logf("%s calibration window: start=%dms latest_finish=%dms target=%dms", label, calibrationStartMs, latestProbeFinishMs, targetMs)

	nowMs := time.Now().UnixMilli()
	if nowMs > latestProbeFinishMs {
		return fmt.Errorf("%s too late to calibrate: now=%dms latest_probe_finish=%dms", label, nowMs, latestProbeFinishMs)
	}
	if nowMs < calibrationStartMs {
		sleepFor := time.Duration(calibrationStartMs-nowMs) * time.Millisecond
		logf("%s sleeping %v until calibration window opens", label, sleepFor)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	probeEp := ep
	probeEp.Client = endpoint.ProbeClient()

	summary, err := calibration.Run(ctx, label, *profile, rl, calibration.SystemClock, calibration.Logf(logf), func(ctx context.Context) (calibration.Sample, error) {
		sample, err := endpoint.Probe(ctx, probeEp)
		if err == nil && met != nil {
			met.ProbeRTT.WithLabelValues(ep.Name).Observe(float64(sample.RTTMs))
		}
		return sample, err
	})
	if err != nil {
		if met != nil {
			met.CycleOutcomes.WithLabelValues(ep.Name, "calibration_failed").Inc()
		}
		return fmt.Errorf("%s %w", label, err)
	}

	if met != nil {
		met.CalibrationDelay.WithLabelValues(ep.Name, string(profile.Estimator)).Set(float64(summary.EstimatedDelayMs))
		met.CalibrationJitter.WithLabelValues(ep.Name).Set(float64(summary.JitterMs))
	}

	effectiveDelayMs := summary.EstimatedDelayMs
	if ep.DelayModel == "HALF_RTT" {
		effectiveDelayMs = ceilHalf(effectiveDelayMs)
	}
	effectiveDelayMs += profile.SafetyMarginMs

	finalSendMs := targetMs - effectiveDelayMs
	nowMs = time.Now().UnixMilli()
	if finalSendMs <= nowMs {
		if met != nil {
			met.CycleOutcomes.WithLabelValues(ep.Name, "send_time_passed").Inc()
		}
		return fmt.Errorf("%s final_send_epoch_ms (%d) already passed (now=%d)", label, finalSendMs, nowMs)
	}
	if finalSendMs-summary.LastProbeWallMs < ep.Doc.BatchDelayMs {
		if met != nil {
			met.CycleOutcomes.WithLabelValues(ep.Name, "send_crowded_by_probe").Inc()
		}
		return fmt.Errorf("%s last probe crowded out send: final_send=%d last_probe=%d batch_delay=%d", label, finalSendMs, summary.LastProbeWallMs, ep.Doc.BatchDelayMs)
	}

	logf("%s send plan: final_send=%dms effective_delay=%dms", label, finalSendMs, effectiveDelayMs)

	totalOrders := len(orders) * maxInt(ep.Doc.BatchRepeat, 1)
	finalSendUs := finalSendMs * 1000
	batchDelayUs := ep.Doc.BatchDelayMs * 1000
	lastSeenUs := time.Now().UnixMicro()

	for i := 0; i < totalOrders; i++ {
		scheduledUs := finalSendUs + int64(i)*batchDelayUs
		order := orders[i%len(orders)]

		now := time.Now().UnixMicro()
		if now > scheduledUs {
			logf("%s order #%d slipped by %dus, dispatching immediately", label, i, now-scheduledUs)
		}

		if err := waitclock.Until(nil, &lastSeenUs, scheduledUs); err != nil {
			if met != nil {
				met.CycleOutcomes.WithLabelValues(ep.Name, "clock_regression").Inc()
			}
			return fmt.Errorf("%s %w", label, err)
		}

		driftUs := time.Now().UnixMicro() - scheduledUs
		if met != nil {
			met.DispatchDriftUs.WithLabelValues(ep.Name).Observe(float64(driftUs))
		}

		if opts.CurlOnly {
			logf("%s order #%d curl command:\n%s", label, i, endpoint.CurlCommand(ep, order))
			continue
		}

		result, err := endpoint.Send(ctx, ep, order)
		if err != nil {
			if met != nil {
				met.CycleOutcomes.WithLabelValues(ep.Name, "transport_error").Inc()
			}
			return fmt.Errorf("%s order #%d: %w", label, i, err)
		}
		logf("%s order #%d dispatched drift=%dµs status=%d body=%s", label, i, driftUs, result.Status, result.Body)
	}

	if met != nil {
		met.CycleOutcomes.WithLabelValues(ep.Name, "success").Inc()
	}
	return nil
}

// RunContinuous is the uncalibrated best-effort degenerate path: release one
// burst with one goroutine per order, sleep batch_delay, repeat until ctx is
// canceled. hostSem, if non-nil, caps concurrent in-flight requests per
// broker host across the batch.
func RunContinuous(ctx context.Context, logf Logf, met *metrics.Metrics, ep endpoint.Profile, rl *ratelimiter.RateLimiter, hostSem *httpclient.HostSemaphore, opts Options) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	label := fmt.Sprintf("[%s]", ep.Name)
	orders := ep.Doc.Orders
	batchDelay := time.Duration(ep.Doc.BatchDelayMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var wg sync.WaitGroup
		for i, order := range orders {
			wg.Add(1)
			go func(i int, order json.RawMessage) {
				defer wg.Done()
				if rl != nil {
					if err := rl.Wait(ctx); err != nil {
						logf("%s order #%d rate limiter wait: %v", label, i, err)
						return
					}
				}
				if hostSem != nil {
					release := hostSem.Acquire(ep.Doc.OrderURL)
					defer release()
				}
				if opts.CurlOnly {
					logf("%s order #%d curl command:\n%s", label, i, endpoint.CurlCommand(ep, order))
					return
				}
				result, err := endpoint.Send(ctx, ep, order)
				if err != nil {
					logf("%s order #%d: %v", label, i, err)
					if met != nil {
						met.CycleOutcomes.WithLabelValues(ep.Name, "transport_error").Inc()
					}
					return
				}
				logf("%s order #%d dispatched status=%d", label, i, result.Status)
				if met != nil {
					met.CycleOutcomes.WithLabelValues(ep.Name, "success").Inc()
				}
			}(i, order)
		}

		if opts.Test {
			wg.Wait()
			return nil
		}

		select {
		case <-time.After(batchDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dispatchOne(ctx context.Context, logf Logf, met *metrics.Metrics, ep endpoint.Profile, order json.RawMessage, curlOnly bool) error {
	label := fmt.Sprintf("[%s]", ep.Name)
	if curlOnly {
		logf("%s test mode curl command:\n%s", label, endpoint.CurlCommand(ep, order))
		return nil
	}
	result, err := endpoint.Send(ctx, ep, order)
	if err != nil {
		if met != nil {
			met.CycleOutcomes.WithLabelValues(ep.Name, "transport_error").Inc()
		}
		return fmt.Errorf("%s test send: %w", label, err)
	}
	logf("%s test mode dispatched status=%d body=%s", label, result.Status, result.Body)
	if met != nil {
		met.CycleOutcomes.WithLabelValues(ep.Name, "success").Inc()
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
