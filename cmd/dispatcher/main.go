// Command dispatcher arms a precisely-timed burst of HTTP order submissions
// against one trading endpoint, or every configured endpoint at once, so
// their arrival coincides with an operator-specified wall-clock target.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/sarkhati/dispatcher/internal/config"
	"github.com/sarkhati/dispatcher/internal/endpoint"
	"github.com/sarkhati/dispatcher/internal/health"
	"github.com/sarkhati/dispatcher/internal/httpclient"
	"github.com/sarkhati/dispatcher/internal/metrics"
	"github.com/sarkhati/dispatcher/internal/ratelimiter"
	"github.com/sarkhati/dispatcher/internal/registry"
	"github.com/sarkhati/dispatcher/internal/scheduler"
)

func main() {
	test := flag.Bool("test", false, "bypass scheduling and send the first order once")
	curl := flag.Bool("curl", false, "print the equivalent curl command instead of sending")
	registryDir := flag.String("registry", "", "override the endpoint registry directory")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	healthcheck := flag.Bool("healthcheck", false, "check the order authority is reachable, then exit")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dispatcher [-test] [-curl] [-registry dir] [-metrics-addr addr] <endpoint-name|all>")
		os.Exit(1)
	}
	arg := flag.Arg(0)

	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()
	if *registryDir != "" {
		cfg.RegistryDir = *registryDir
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		log.Fatalf("load timezone %q: %v", cfg.TimeZone, err)
	}

	names := []string{arg}
	if arg == "all" {
		names, err = registry.Names(cfg.RegistryDir)
		if err != nil {
			log.Fatalf("list registry %s: %v", cfg.RegistryDir, err)
		}
		if len(names) == 0 {
			log.Fatalf("no endpoints configured under %s", cfg.RegistryDir)
		}
	}

	var met *metrics.Metrics
	if cfg.MetricsAddr != "" {
		met = metrics.New()
		go func() {
			log.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := met.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("shutting down")
		cancel()
	}()

	opts := scheduler.Options{Test: *test, CurlOnly: *curl}
	logf := scheduler.Logf(log.Printf)
	hostSem := httpclient.NewHostSemaphore(cfg.HostConcurrency)

	if arg != "all" {
		if err := runEndpoint(ctx, cfg, loc, arg, *healthcheck, met, hostSem, opts, logf); err != nil {
			log.Fatalf("[%s] %v", arg, err)
		}
		return
	}

	// "all" runs every registry entry's task tree concurrently, one goroutine
	// per endpoint; one endpoint's failure is logged but never cancels its
	// siblings, matching original_source/src/main.rs::run_all. All endpoints
	// share one hostSem, so the per-host cap on continuous-mode sends holds
	// across the whole fan-out, not just within one endpoint's own batch;
	// scheduled-burst sends do not acquire it.
	log.Printf("starting all %d configured endpoint(s) in parallel", len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := runEndpoint(ctx, cfg, loc, name, *healthcheck, met, hostSem, opts, logf); err != nil {
				log.Printf("[%s] error: %v", name, err)
			}
		}(name)
	}
	wg.Wait()
}

// runEndpoint loads one named endpoint's registry document and runs either
// its health check or its full scheduled dispatch cycle.
func runEndpoint(ctx context.Context, cfg *config.Config, loc *time.Location, name string, healthcheckOnly bool, met *metrics.Metrics, hostSem *httpclient.HostSemaphore, opts scheduler.Options, logf scheduler.Logf) error {
	doc, fam, err := registry.Load(cfg.RegistryDir, name)
	if err != nil {
		return fmt.Errorf("load endpoint: %w", err)
	}

	ep, err := endpoint.FromDocument(name, fam, doc, endpoint.Client())
	if err != nil {
		return fmt.Errorf("build endpoint: %w", err)
	}

	if healthcheckOnly {
		authority, err := endpoint.ProbeURL(doc.OrderURL)
		if err != nil {
			return err
		}
		hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
		defer hcancel()
		if err := health.CheckAuthority(hctx, authority); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		log.Printf("[%s] authority %s is reachable", name, authority)
		return nil
	}

	rl := ratelimiter.New(doc.BatchDelayMs)
	return scheduler.RunScheduled(ctx, logf, met, ep, rl, loc, hostSem, opts)
}
