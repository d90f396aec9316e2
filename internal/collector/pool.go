package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/metrics"
)

// backoffAfterError is the pause before resuming continuous collection
// after a cycle-level error not tied to any single host.
const backoffAfterError = 60 * time.Second

// CycleResult aggregates every host's Batch from one collection cycle.
type CycleResult struct {
	Batches []Batch
}

// TotalEntries returns the number of LogEntry values across every host
// in the cycle.
func (c CycleResult) TotalEntries() int {
	n := 0
	for _, b := range c.Batches {
		n += len(b.Entries)
	}
	return n
}

// Pool fans HostCollectors out across all configured hosts with a
// bounded concurrency cap.
type Pool struct {
	collectors []*HostCollector
	lookback   time.Duration
	cap        int
	log        *logrus.Entry
}

// NewPool builds a Pool over collectors with concurrency cap w (default
// 10 if w <= 0) and a lookback window of lookback hours-equivalent
// duration.
func NewPool(collectors []*HostCollector, lookback time.Duration, w int, log *logrus.Entry) *Pool {
	if w <= 0 {
		w = 10
	}
	return &Pool{collectors: collectors, lookback: lookback, cap: w, log: log}
}

// RunCycle drives one collection cycle across every host, bounded by
// the pool's concurrency cap. Dispatch order is unspecified; a host's
// failure is recorded in its Batch's Statuses and does not abort the
// cycle for other hosts.
func (p *Pool) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	defer func() { metrics.CollectionCycleDuration.Observe(time.Since(start).Seconds()) }()

	sem := make(chan struct{}, p.cap)
	results := make([]Batch, len(p.collectors))

	var wg sync.WaitGroup
	for i, hc := range p.collectors {
		i, hc := i, hc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = hc.Collect(ctx, p.lookback)
		}()
	}
	wg.Wait()

	return CycleResult{Batches: results}
}

// RunContinuous runs RunCycle every interval, handing each cycle's
// aggregated entries to onCycle in one call. On an unexpected error
// from onCycle, it backs off for 60s before resuming. Cancellation via
// ctx is honored between cycles.
func (p *Pool) RunContinuous(ctx context.Context, interval time.Duration, onCycle func(CycleResult) error) {
	iteration := 1
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.log.WithField("iteration", iteration).Info("collection cycle starting")
		result := p.RunCycle(ctx)

		if err := onCycle(result); err != nil {
			p.log.WithError(err).Error("cycle handling failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffAfterError):
			}
			continue
		}

		iteration++

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
