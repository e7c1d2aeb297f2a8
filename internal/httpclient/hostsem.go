package httpclient

import (
	"net/url"
	"sync"
)

// HostSemaphore is a per-host concurrency limiter. The continuous-mode
// dispatch path spawns one goroutine per order per batch (spec.md §5's
// fire-and-forget fan-out), and the "all" pseudo-endpoint spawns one task
// tree per registry entry on top of that; this caps how many of those
// goroutines, across every endpoint sharing one instance, may have an
// outbound request in flight against the same broker host at once, so a
// large order list or a wide "all" fan-out doesn't open a burst of
// simultaneous connections the broker reads as abuse. Unlike the teacher's
// single process-wide instance, the cap is operator-tunable
// (DISPATCHER_HOST_CONCURRENCY, internal/config) and one instance is built
// in cmd/dispatcher and threaded explicitly into the scheduler, rather than
// reached for as a package-level global.
//
// Usage: acquire before sending a request, release when the response arrives.
//
//	release := sem.Acquire(host)
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// NewHostSemaphore builds a limiter capping concurrent in-flight requests per
// host at concurrency (clamped to at least 1).
func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is available for host and returns a release func.
// host should be the scheme+host (e.g. "http://example.com:8080").
func (h *HostSemaphore) Acquire(host string) func() {
	sem := h.semFor(host)
	sem <- struct{}{}
	return func() { <-sem }
}

func (h *HostSemaphore) semFor(host string) chan struct{} {
	// Normalise: strip path/query, keep scheme+host.
	if u, err := url.Parse(host); err == nil {
		host = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	h.mu.Unlock()
	return s
}
