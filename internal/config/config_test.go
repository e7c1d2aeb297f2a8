package config

import (
	"os"
	"testing"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.RegistryDir != "./config" {
		t.Errorf("RegistryDir default: got %q", c.RegistryDir)
	}
	if c.TimeZone != "Asia/Tehran" {
		t.Errorf("TimeZone default: got %q", c.TimeZone)
	}
	if c.MetricsAddr != "" {
		t.Errorf("MetricsAddr default should be empty; got %q", c.MetricsAddr)
	}
	if c.HostConcurrency != 4 {
		t.Errorf("HostConcurrency default: got %d, want 4", c.HostConcurrency)
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("DISPATCHER_REGISTRY_DIR", "/etc/dispatcher")
	os.Setenv("DISPATCHER_TIMEZONE", "UTC")
	os.Setenv("DISPATCHER_METRICS_ADDR", ":9090")
	os.Setenv("DISPATCHER_HOST_CONCURRENCY", "8")
	c := Load()
	if c.RegistryDir != "/etc/dispatcher" {
		t.Errorf("RegistryDir: got %q", c.RegistryDir)
	}
	if c.TimeZone != "UTC" {
		t.Errorf("TimeZone: got %q", c.TimeZone)
	}
	if c.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr: got %q", c.MetricsAddr)
	}
	if c.HostConcurrency != 8 {
		t.Errorf("HostConcurrency: got %d, want 8", c.HostConcurrency)
	}
}

func TestLoad_hostConcurrencyIgnoresMalformedValue(t *testing.T) {
	os.Clearenv()
	os.Setenv("DISPATCHER_HOST_CONCURRENCY", "not-a-number")
	c := Load()
	if c.HostConcurrency != 4 {
		t.Errorf("HostConcurrency: got %d, want default 4 on malformed input", c.HostConcurrency)
	}
}
