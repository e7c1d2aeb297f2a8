package calibration

import (
	"context"
	"strings"
	"testing"

	"github.com/sarkhati/dispatcher/internal/ratelimiter"
)

type fixedClock struct{ ms int64 }

func (c *fixedClock) NowMs() int64 {
	c.ms += 1
	return c.ms
}

func probeSequence(t *testing.T, rtts []int64) ProbeFunc {
	t.Helper()
	i := 0
	return func(ctx context.Context) (Sample, error) {
		if i >= len(rtts) {
			t.Fatalf("probe called more times than rtts provided (%d)", len(rtts))
		}
		r := rtts[i]
		i++
		return Sample{RTTMs: r, RTTMicros: r * 1000, Status: 200}, nil
	}
}

func TestRun_p50Estimate(t *testing.T) {
	rtts := []int64{80, 500, 40, 42, 43, 44, 45, 46, 47, 48}
	profile := Profile{
		Enabled:            true,
		ProbeCount:         10,
		ProbeIntervalMs:    1,
		WarmupProbes:       2,
		Estimator:          EstimatorP50,
		MaxAcceptableRTTMs: 1000,
	}
	rl := ratelimiter.New(0)

	summary, err := Run(context.Background(), "[test]", profile, rl, &fixedClock{}, nil, probeSequence(t, rtts))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.EstimatedDelayMs != 45 {
		t.Errorf("EstimatedDelayMs = %d, want 45", summary.EstimatedDelayMs)
	}
	if summary.MinMs != 40 || summary.MaxMs != 48 {
		t.Errorf("MinMs/MaxMs = %d/%d, want 40/48", summary.MinMs, summary.MaxMs)
	}
}

func TestRun_abortsOnOverRTT(t *testing.T) {
	rtts := []int64{10, 20, 150, 30, 30}
	profile := Profile{
		Enabled:            true,
		ProbeCount:         5,
		ProbeIntervalMs:    1,
		WarmupProbes:       0,
		Estimator:          EstimatorP50,
		MaxAcceptableRTTMs: 100,
	}
	rl := ratelimiter.New(0)

	_, err := Run(context.Background(), "[test]", profile, rl, &fixedClock{}, nil, probeSequence(t, rtts))
	if err == nil {
		t.Fatal("Run() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "150") || !strings.Contains(err.Error(), "100") {
		t.Errorf("error %q does not contain both 150 and 100", err.Error())
	}
}

func TestRun_rejectsIntervalBelowLimiter(t *testing.T) {
	profile := Profile{
		ProbeCount:      5,
		ProbeIntervalMs: 10,
		Estimator:       EstimatorP50,
	}
	rl := ratelimiter.New(50)

	_, err := Run(context.Background(), "[test]", profile, rl, &fixedClock{}, nil, probeSequence(t, []int64{1, 1, 1, 1, 1}))
	if err == nil {
		t.Fatal("Run() expected error for probe_interval_ms < batch_delay_ms")
	}
}

func TestRun_rejectsWarmupAtOrAboveCount(t *testing.T) {
	profile := Profile{
		ProbeCount:      3,
		ProbeIntervalMs: 1,
		WarmupProbes:    3,
		Estimator:       EstimatorP50,
	}
	rl := ratelimiter.New(0)

	_, err := Run(context.Background(), "[test]", profile, rl, &fixedClock{}, nil, probeSequence(t, []int64{1, 1, 1}))
	if err == nil {
		t.Fatal("Run() expected error for warmup_probes >= probe_count")
	}
}

func TestRun_ewmaSingleSample(t *testing.T) {
	profile := Profile{
		ProbeCount:         1,
		ProbeIntervalMs:    1,
		WarmupProbes:       0,
		Estimator:          EstimatorEWMA,
		MaxAcceptableRTTMs: 1000,
	}
	rl := ratelimiter.New(0)

	summary, err := Run(context.Background(), "[test]", profile, rl, &fixedClock{}, nil, probeSequence(t, []int64{77}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.EstimatedDelayMs != 77 {
		t.Errorf("EstimatedDelayMs = %d, want 77 (EWMA seeded with only sample)", summary.EstimatedDelayMs)
	}
}

func TestProfile_WithDefaults(t *testing.T) {
	p := Profile{}.WithDefaults()
	if p.ProbeCount != 10 {
		t.Errorf("ProbeCount = %d, want 10", p.ProbeCount)
	}
	if p.ProbeIntervalMs != 300 {
		t.Errorf("ProbeIntervalMs = %d, want 300", p.ProbeIntervalMs)
	}
	if p.Estimator != EstimatorP50 {
		t.Errorf("Estimator = %q, want p50", p.Estimator)
	}
	if p.MaxAcceptableRTTMs != 500 {
		t.Errorf("MaxAcceptableRTTMs = %d, want 500", p.MaxAcceptableRTTMs)
	}
}
