// Package calibration drives a probe sequence against one endpoint and
// reduces the samples to a single network-delay estimate used to compute
// the final send time. Grounded in original_source/calibration.rs, carried
// over to Go with the teacher's sdtprobe-style Config-with-defaults shape
// (internal/sdtprobe/worker.go) and wait/sleep idiom.
package calibration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sarkhati/dispatcher/internal/ratelimiter"
)

// Estimator selects how the post-warmup RTT sample set reduces to a single
// estimated_delay_ms.
type Estimator string

const (
	EstimatorP50  Estimator = "p50"
	EstimatorP75  Estimator = "p75"
	EstimatorP90  Estimator = "p90"
	EstimatorMin  Estimator = "min"
	EstimatorEWMA Estimator = "ewma"
)

// Profile is the calibration settings bound to one EndpointProfile.
// WithDefaults fills probe_count=10, probe_interval_ms=300, estimator=P50
// and max_acceptable_rtt_ms=500; Enabled, WarmupProbes and SafetyMarginMs
// keep the values given, so an omitted warmup_probes is 0, not 2.
type Profile struct {
	Enabled            bool      `json:"enabled"`
	ProbeCount         int       `json:"probe_count"`
	ProbeIntervalMs    int64     `json:"probe_interval_ms"`
	WarmupProbes       int       `json:"warmup_probes"`
	SafetyMarginMs     int64     `json:"safety_margin_ms"`
	Estimator          Estimator `json:"estimator"`
	MaxAcceptableRTTMs int64     `json:"max_acceptable_rtt_ms"`
}

// WithDefaults returns a copy of p with defaults applied to a zero-valued
// ProbeCount, ProbeIntervalMs, Estimator or MaxAcceptableRTTMs; other fields
// are left as they are. ProbeCount/ProbeIntervalMs/MaxAcceptableRTTMs are only
// defaulted when zero since negative values are rejected elsewhere, and 0 is
// never itself a valid setting for those fields.
func (p Profile) WithDefaults() Profile {
	out := p
	if out.ProbeCount == 0 {
		out.ProbeCount = 10
	}
	if out.ProbeIntervalMs == 0 {
		out.ProbeIntervalMs = 300
	}
	if out.Estimator == "" {
		out.Estimator = EstimatorP50
	}
	if out.MaxAcceptableRTTMs == 0 {
		out.MaxAcceptableRTTMs = 500
	}
	return out
}

// Sample is one probe's RTT observation.
type Sample struct {
	RTTMs     int64
	RTTMicros int64
	Status    int
}

// ProbeFunc performs one probe round-trip and returns its RTT.
type ProbeFunc func(ctx context.Context) (Sample, error)

// Summary is the output of a completed calibration run.
type Summary struct {
	EstimatedDelayMs int64
	LastProbeWallMs  int64
	MinMs            int64
	MaxMs            int64
	P50Ms            int64
	P75Ms            int64
	P90Ms            int64
	JitterMs         int64
}

// Clock abstracts wall-clock reads so tests can inject regression/monotonic
// sequences. NowMs returns the current wall-clock epoch in milliseconds.
type Clock interface {
	NowMs() int64
}

type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// Logf is the log sink calibration uses for per-probe status lines. Defaults
// to a no-op; callers wire it to log.Printf (see cmd/dispatcher).
type Logf func(format string, args ...any)

// Run executes the calibration algorithm described in spec.md §4.2 against
// one endpoint, using limiter to pace probes and probe to perform each
// round-trip. label prefixes log lines (e.g. "[exir:acme]").
func Run(ctx context.Context, label string, profile Profile, limiter *ratelimiter.RateLimiter, clock Clock, logf Logf, probe ProbeFunc) (Summary, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if clock == nil {
		clock = SystemClock
	}

	if profile.ProbeIntervalMs < limiter.IntervalMs() {
		return Summary{}, fmt.Errorf("calibration %s: probe_interval_ms (%d) must be >= batch_delay_ms (%d)", label, profile.ProbeIntervalMs, limiter.IntervalMs())
	}
	if profile.WarmupProbes >= profile.ProbeCount {
		return Summary{}, fmt.Errorf("calibration %s: warmup_probes (%d) must be less than probe_count (%d)", label, profile.WarmupProbes, profile.ProbeCount)
	}

	logf("%s calibration enabled: %d probes every %dms (warmup: %d)", label, profile.ProbeCount, profile.ProbeIntervalMs, profile.WarmupProbes)

	rttsMs := make([]int64, 0, profile.ProbeCount)
	lastProbeWallMs := clock.NowMs()
	lastWallMs := lastProbeWallMs

	for i := 0; i < profile.ProbeCount; i++ {
		probeStart := time.Now()

		if err := limiter.Wait(ctx); err != nil {
			return Summary{}, fmt.Errorf("calibration %s: rate limiter wait: %w", label, err)
		}

		currentWallMs := clock.NowMs()
		if currentWallMs < lastWallMs {
			return Summary{}, fmt.Errorf("calibration %s: system clock moved backwards during calibration; aborting", label)
		}
		lastWallMs = currentWallMs

		sample, err := probe(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("calibration %s: probe #%d: %w", label, i+1, err)
		}
		lastProbeWallMs = clock.NowMs()

		logf("%s probe #%d/%d status=%d rtt=%dms (%dµs)", label, i+1, profile.ProbeCount, sample.Status, sample.RTTMs, sample.RTTMicros)

		if sample.RTTMs > profile.MaxAcceptableRTTMs {
			return Summary{}, fmt.Errorf("calibration %s: probe RTT %dms exceeded max_acceptable_rtt_ms %d", label, sample.RTTMs, profile.MaxAcceptableRTTMs)
		}

		rttsMs = append(rttsMs, sample.RTTMs)

		if i+1 < profile.ProbeCount {
			elapsed := time.Since(probeStart)
			target := time.Duration(profile.ProbeIntervalMs) * time.Millisecond
			if elapsed < target {
				select {
				case <-time.After(target - elapsed):
				case <-ctx.Done():
					return Summary{}, ctx.Err()
				}
			}
		}
	}

	samplesMs := rttsMs[profile.WarmupProbes:]
	if len(samplesMs) == 0 {
		return Summary{}, fmt.Errorf("calibration %s: no calibration samples available after warmup", label)
	}

	sorted := make([]int64, len(samplesMs))
	copy(sorted, samplesMs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	minMs := sorted[0]
	maxMs := sorted[len(sorted)-1]
	p50Ms := percentile(sorted, 50)
	p75Ms := percentile(sorted, 75)
	p90Ms := percentile(sorted, 90)
	jitterMs := p90Ms - p50Ms
	if jitterMs < 0 {
		jitterMs = 0
	}

	var estimatedDelayMs int64
	switch profile.Estimator {
	case EstimatorP50:
		estimatedDelayMs = p50Ms
	case EstimatorP75:
		estimatedDelayMs = p75Ms
	case EstimatorP90:
		estimatedDelayMs = p90Ms
	case EstimatorMin:
		estimatedDelayMs = minMs
	case EstimatorEWMA:
		estimatedDelayMs = ewma(samplesMs, 0.3)
	default:
		return Summary{}, fmt.Errorf("calibration %s: unknown estimator %q", label, profile.Estimator)
	}

	logf("%s calibration stats: min=%dms p50=%dms p75=%dms p90=%dms max=%dms jitter=%dms estimator=%s estimate=%dms",
		label, minMs, p50Ms, p75Ms, p90Ms, maxMs, jitterMs, profile.Estimator, estimatedDelayMs)

	return Summary{
		EstimatedDelayMs: estimatedDelayMs,
		LastProbeWallMs:  lastProbeWallMs,
		MinMs:            minMs,
		MaxMs:            maxMs,
		P50Ms:            p50Ms,
		P75Ms:            p75Ms,
		P90Ms:            p90Ms,
		JitterMs:         jitterMs,
	}, nil
}

// percentile returns the rank-based percentile value of a sorted ascending
// slice, per spec.md §8: rank = round(p/100 * (n-1)), clamped to [0, n-1].
func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(roundHalfAwayFromZero((pct / 100.0) * float64(len(sorted)-1)))
	if rank < 0 {
		rank = 0
	}
	if rank > len(sorted)-1 {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

// ewma left-folds over the unsorted post-warmup samples, seeded with the
// first sample, v <- alpha*x + (1-alpha)*v, and rounds the final value.
func ewma(samples []int64, alpha float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	v := float64(samples[0])
	for _, s := range samples[1:] {
		v = alpha*float64(s) + (1-alpha)*v
	}
	rounded := roundHalfAwayFromZero(v)
	if rounded < 0 {
		rounded = 0
	}
	return int64(rounded)
}
