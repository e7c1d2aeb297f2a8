package httpclient

import (
	"net/http"
	"time"
)

// ForProbe returns the HTTP client shared across one endpoint's calibration
// probes: keep-alive is left on so TCP/TLS warm-up is paid once and reused
// across the probe sequence.
func ForProbe() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 8 * time.Second,
			ExpectContinueTimeout: 2 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

// ForOrder returns the HTTP client used for an order send: a fresh
// connection per call, since the core's default policy is a stateless
// connection for each order rather than a shared pool.
func ForOrder() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 2 * time.Second,
			DisableKeepAlives:     true,
		},
	}
}
