package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_exposesRegisteredCollectors(t *testing.T) {
	m := New()
	m.ProbeRTT.WithLabelValues("acme").Observe(42)
	m.CalibrationDelay.WithLabelValues("acme", "p50").Set(45)
	m.CycleOutcomes.WithLabelValues("acme", "success").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"dispatcher_probe_rtt_milliseconds",
		"dispatcher_calibration_estimated_delay_milliseconds",
		"dispatcher_cycle_outcomes_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
