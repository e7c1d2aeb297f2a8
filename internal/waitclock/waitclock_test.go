package waitclock

import (
	"strings"
	"testing"
	"time"
)

func TestUntil_returnsAtOrAfterTarget(t *testing.T) {
	start := time.Now().UnixMicro()
	last := start
	target := start + 8000 // 8ms: exercises both the sleep and spin branches.

	err := Until(nil, &last, target)
	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
	if last < target {
		t.Errorf("last seen %d, want >= target %d", last, target)
	}
}

func TestUntil_detectsRegression(t *testing.T) {
	readings := []int64{100, 90}
	i := 0
	clock := func() int64 {
		v := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return v
	}
	last := int64(100)

	err := Until(clock, &last, 200)
	if err == nil {
		t.Fatal("Until() expected error on clock regression, got nil")
	}
	if !strings.Contains(err.Error(), "regressed") {
		t.Errorf("error %q does not mention regression", err.Error())
	}
}

func TestUntil_alreadyPastTarget(t *testing.T) {
	last := int64(1000)
	clock := func() int64 { return 1000 }

	err := Until(clock, &last, 999)
	if err != nil {
		t.Fatalf("Until() error = %v, want nil (target already reached)", err)
	}
}

func TestUntil_spinOnlyPath(t *testing.T) {
	// Target within SpinThreshold of "now": exercises the spin loop without
	// the cooperative-sleep branch.
	calls := 0
	start := int64(1_000_000)
	clock := func() int64 {
		calls++
		if calls < 3 {
			return start
		}
		return start + 2
	}
	last := start

	err := Until(clock, &last, start+2)
	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
	if calls < 3 {
		t.Errorf("expected spin loop to re-read clock, got %d calls", calls)
	}
}
