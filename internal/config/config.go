package config

import (
	"os"
	"strconv"
)

// Config holds the handful of process-wide settings that apply to every
// endpoint in a run. Per-endpoint settings (auth, orders, calibration,
// target time) are loaded separately by internal/registry.
type Config struct {
	// RegistryDir holds the "standard" and "exir" family subdirectories; every
	// CLI endpoint name is resolved as <dir>/standard/<name>.json, then
	// <dir>/exir/<name>.json. There are no built-in endpoint names.
	RegistryDir string

	// TimeZone is the IANA zone name target_time is interpreted in.
	TimeZone string

	// MetricsAddr is the optional listen address for the Prometheus
	// /metrics endpoint (e.g. ":9090"). Empty disables the metrics server.
	MetricsAddr string

	// HostConcurrency caps how many in-flight requests continuous mode may
	// hold open against any one broker host at once, across every endpoint
	// task tree in the process (see internal/httpclient.HostSemaphore).
	HostConcurrency int
}

// Load reads Config from the environment. Call LoadEnvFile(".env") first to
// source a .env file into the environment.
func Load() *Config {
	return &Config{
		RegistryDir:     getEnv("DISPATCHER_REGISTRY_DIR", "./config"),
		TimeZone:        getEnv("DISPATCHER_TIMEZONE", "Asia/Tehran"),
		MetricsAddr:     os.Getenv("DISPATCHER_METRICS_ADDR"),
		HostConcurrency: getEnvInt("DISPATCHER_HOST_CONCURRENCY", 4),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
