package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With a cap of 2 and 5 hosts each blocking 1s, wall time falls in
// [3s, 4s) since at most two hosts run at a time (3 waves of ~1s each).
func TestPool_ConcurrencyCapBoundsCycleWallTime(t *testing.T) {
	var collectors []*HostCollector
	for i := 0; i < 5; i++ {
		exec := &fakeExecutor{stdout: fixtureEvent, delay: time.Second}
		collectors = append(collectors, NewHostCollector("h", []string{"Security"}, exec, 0, discardLogger()))
	}
	pool := NewPool(collectors, time.Hour, 2, discardLogger())

	start := time.Now()
	pool.RunCycle(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 3*time.Second)
	assert.Less(t, elapsed, 4*time.Second)
}

// Host A returns 10 events, host B's executor fails; the cycle still
// reports A's entries and does not abort.
func TestPool_PartialHostFailureStillFlushesSuccesses(t *testing.T) {
	var events string
	for i := 0; i < 10; i++ {
		events += fixtureEvent + "\n---EVENT_SEPARATOR---\n"
	}
	hostA := NewHostCollector("A", []string{"Security"}, &fakeExecutor{stdout: events}, 0, discardLogger())
	hostB := NewHostCollector("B", []string{"Security"}, &fakeExecutor{failWith: errors.New("transport error")}, 0, discardLogger())

	pool := NewPool([]*HostCollector{hostA, hostB}, time.Hour, 10, discardLogger())
	result := pool.RunCycle(context.Background())

	require.Len(t, result.Batches, 2)
	assert.Equal(t, 10, result.TotalEntries())

	var sawBFailure bool
	for _, b := range result.Batches {
		if b.Host == "B" {
			require.Len(t, b.Statuses, 1)
			sawBFailure = b.Statuses[0].Err != nil
		}
	}
	assert.True(t, sawBFailure)
}
