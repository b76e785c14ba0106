package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument(groups ...string) *Document {
	doc := &Document{}
	for _, g := range groups {
		doc.Data = append(doc.Data, json.RawMessage(`{"name":"`+g+`"}`))
	}
	return doc
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator(t *testing.T, fetcher Fetcher) (*Coordinator, *testClock, string) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	mirror := filepath.Join(t.TempDir(), "scraped_products.json")
	return NewCoordinator(CoordinatorDependencies{
		Fetcher:    fetcher,
		MirrorPath: mirror,
		Cooldown:   time.Hour,
		Clock:      clock.Now,
	}), clock, mirror
}

func TestConcurrentRequestsFetchOnce(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	coord, _, mirror := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		calls.Add(1)
		close(started)
		<-release
		return sampleDocument("tiles", "planks"), nil
	}))

	type answer struct {
		result Result
		err    error
	}
	first := make(chan answer, 1)
	go func() {
		result, err := coord.RequestSnapshot(context.Background())
		first <- answer{result, err}
	}()

	<-started
	second, err := coord.RequestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeInProgress, second.Outcome)
	assert.Nil(t, second.Document)
	assert.Equal(t, "Scrape in progress, please wait", second.Message())

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, OutcomeFetched, got.result.Outcome)
	assert.Equal(t, 2, got.result.Document.Len())
	assert.Equal(t, DefaultImagePathPrefix, got.result.Document.ImagePathPrefix)
	assert.Equal(t, int32(1), calls.Load())

	third, err := coord.RequestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeServed, third.Outcome)
	assert.Equal(t, int32(1), calls.Load())

	persisted, err := LoadMirror(mirror)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.Len())
}

func TestFailedFetchStartsCooldown(t *testing.T) {
	var calls atomic.Int32
	coord, clock, _ := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		calls.Add(1)
		return nil, errors.New("login failed")
	}))

	result, err := coord.RequestSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeUnavailable, result.Outcome)

	clock.Advance(59 * time.Minute)
	result, err = coord.RequestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCooldown, result.Outcome)
	assert.Equal(t, "Scrape cooldown active", result.Message())
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Minute)
	_, err = coord.RequestSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmptyFetchKeepsPreviousSnapshot(t *testing.T) {
	responses := []*Document{sampleDocument("tiles"), sampleDocument()}
	coord, _, _ := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		doc := responses[0]
		responses = responses[1:]
		return doc, nil
	}))

	require.NoError(t, coord.PeriodicRefresh(context.Background()))
	err := coord.PeriodicRefresh(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	doc, _, ok := coord.Cache().Snapshot()
	require.True(t, ok)
	assert.Equal(t, 1, doc.Len())
}

func TestPeriodicRefreshSkipsWhileBusy(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	coord, _, _ := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		calls.Add(1)
		close(started)
		<-release
		return sampleDocument("tiles"), nil
	}))

	done := make(chan error, 1)
	go func() { done <- coord.PeriodicRefresh(context.Background()) }()
	<-started

	assert.True(t, coord.Cache().InProgress())
	assert.NoError(t, coord.PeriodicRefresh(context.Background()))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, coord.Cache().InProgress())
}

func TestPeriodicRefreshIgnoresCooldown(t *testing.T) {
	var calls atomic.Int32
	coord, _, _ := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return sampleDocument("tiles"), nil
	}))

	_, err := coord.RequestSnapshot(context.Background())
	require.Error(t, err)
	require.NoError(t, coord.PeriodicRefresh(context.Background()))

	result, err := coord.RequestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeServed, result.Outcome)
}

func TestFetcherPanicReleasesSlot(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		panic("browser crashed")
	}))

	_, err := coord.RequestSnapshot(context.Background())
	require.Error(t, err)
	assert.False(t, coord.Cache().InProgress())
}

func TestWarmFromMirror(t *testing.T) {
	coord, clock, mirror := newTestCoordinator(t, FetcherFunc(func(ctx context.Context) (*Document, error) {
		t.Fatal("fetch must not run when the mirror is warm")
		return nil, nil
	}))

	n, err := coord.WarmFromMirror()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, SaveMirror(mirror, sampleDocument("a", "b", "c")))
	n, err = coord.WarmFromMirror()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	result, err := coord.RequestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeServed, result.Outcome)
	assert.Equal(t, clock.Now(), result.CapturedAt)
}
