// Command leasedemo is a minimal operational entrypoint for the lease
// package: it wires log -> config -> backend client -> metrics -> a
// provider -> lease.Manager, acquires one lease, holds it with auto-renewal until
// SIGTERM/SIGINT, and releases it on the way out. It exists to give the
// ambient stack (config loading, structured logging, metrics
// registration) something to start up, the way the teacher's cmd/app.go
// exists to start its HTTP server and workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasing/lease"
	"leasing/pkg/config"
	"leasing/pkg/db"
	"leasing/pkg/log"
	"leasing/pkg/metrics"
)

type initTask struct {
	Name string
	Task func() error
}

func (t initTask) begin(prefix string) {
	log.Infof("%s %s%s%s %s...%s", prefix, log.Orange, t.Name, log.Reset, log.Grey, log.Reset)
}

func main() {
	modeFlag := flag.String("mode", "dev", "application mode: dev, test, or prod")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	if err := log.SetupLogger(*modeFlag); err != nil {
		panic(fmt.Sprintf("failed to set up logger: %s", err))
	}

	var manager *lease.Manager
	var provider lease.Provider

	tasks := []initTask{
		{Name: "Setup environment", Task: func() error { return config.SetupEnvironment(*modeFlag) }},
		{Name: "Setup backend connections", Task: db.Setup},
		{Name: "Register metrics", Task: func() error { return metrics.Register(prometheus.DefaultRegisterer) }},
		{Name: "Construct provider", Task: func() error {
			p, err := buildProvider(context.Background())
			provider = p
			return err
		}},
		{Name: "Construct lease manager", Task: func() error {
			m, err := lease.NewManager(lease.NewBreakerProvider(provider), managerConfigFromConfig())
			manager = m
			return err
		}},
	}

	for idx, task := range tasks {
		task.begin(fmt.Sprintf("(%d/%d)", idx+1, len(tasks)))
		if err := task.Task(); err != nil {
			log.Fatalf("init task %s failed: %s", task.Name, err.Error())
		}
	}
	log.Printf("%sInitialization complete%s", log.Orange, log.Reset)

	if *metricsAddr != "" {
		go func() {
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				log.Errorf("metrics server stopped: %s", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	leaseName := config.Config.Lease.Name
	handle, err := manager.Acquire(ctx, leaseName)
	if err != nil {
		log.Fatalf("failed to acquire lease %q: %s", leaseName, err.Error())
	}
	log.Printf("%sacquired lease %s%s%s, fencing token %s%s", log.Bold, log.Orange, leaseName, log.Reset, handle.LeaseID(), log.Reset)

	handle.Subscribe(func(ev lease.Event) {
		switch ev.Type {
		case lease.EventRenewed:
			log.Debugf("lease %s renewed, expires at %s", ev.LeaseName, ev.ExpiresAt)
		case lease.EventRenewalFailed:
			log.Warnf("lease %s renewal attempt %d failed: %v", ev.LeaseName, ev.Attempt, ev.Err)
		case lease.EventLost:
			log.Errorf("lease %s lost: %v", ev.LeaseName, ev.Err)
		}
	})

	<-ctx.Done()
	log.Println("shutdown signal received, releasing lease")

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Release(releaseCtx); err != nil {
		log.Errorf("failed to release lease cleanly: %s", err)
	}
	db.Shutdown()
	log.Println("exited successfully")
}

func buildProvider(ctx context.Context) (lease.Provider, error) {
	switch config.Config.Backend {
	case "redis":
		return lease.NewRedisProvider(db.DB.RedisClient, config.Config.Redis.Prefix), nil
	case "azureblob":
		return lease.NewAzureBlobProviderFromConfig(config.Config.AzureBlob)
	case "cosmos":
		return lease.NewCosmosProviderFromConfig(config.Config.Cosmos)
	default:
		return nil, fmt.Errorf("unknown backend %q", config.Config.Backend)
	}
}

func managerConfigFromConfig() lease.ManagerConfig {
	l := config.Config.Lease
	return lease.ManagerConfig{
		DefaultLeaseDuration:    l.DefaultDuration,
		AutoRenew:               true,
		AutoRenewInterval:       l.AutoRenewInterval,
		AutoRenewRetryInterval:  l.AutoRenewRetryInterval,
		AutoRenewMaxRetries:     l.AutoRenewMaxRetries,
		AutoRenewSafetyFraction: l.AutoRenewSafetyFraction,
		AcquireTimeout:          l.AcquireTimeout,
		AcquireRetryInterval:    l.AcquireRetryInterval,
	}
}
