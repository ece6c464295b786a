package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"rawload/internal/metrics"
	"rawload/internal/metrics/datadog"
)

// metricsBackend is a metrics backend that owns background work and must be
// closed to flush its tail.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, datadog.WrapInitErr(err)
		}
		return b, nil
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil and must be called exactly once.
func initMetrics(ctx context.Context, jobName, backendName string, tags []string) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName: jobName,
			Tags:    tags,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			setMetricsBackend(nil)
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (none|datadog)", backendName)
	}
}
