package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/orderdesk/internal/catalog"
	"github.com/spec-kit/orderdesk/internal/config"
)

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil)
	err := s.Add(Job{Name: "broken", Schedule: "every tuesday", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context) error {
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestDefaultJobs(t *testing.T) {
	tickets := config.TicketConfig{SweepSchedule: "@every 1m", RetentionSchedule: "@every 24h"}
	catalogCfg := config.CatalogConfig{RefreshSchedule: "@every 6h"}

	jobs := DefaultJobs(tickets, catalogCfg, nil, nil)
	require.Len(t, jobs, 2)
	assert.Equal(t, "inactivity_sweep", jobs[0].Name)
	assert.Equal(t, "@every 24h", jobs[1].Schedule)

	coordinator := catalog.NewCoordinator(catalog.CoordinatorDependencies{
		Fetcher: catalog.FetcherFunc(func(context.Context) (*catalog.Document, error) { return nil, nil }),
	})
	jobs = DefaultJobs(tickets, catalogCfg, nil, coordinator)
	require.Len(t, jobs, 3)
	assert.Equal(t, "catalog_refresh", jobs[2].Name)

	s := NewScheduler(nil)
	for _, job := range jobs {
		assert.NoError(t, s.Add(job))
	}
}
