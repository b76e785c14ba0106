package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/observability"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

// Fetcher produces a fresh catalog. It is slow and may fail.
type Fetcher interface {
	Fetch(ctx context.Context) (*Document, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (*Document, error)

func (f FetcherFunc) Fetch(ctx context.Context) (*Document, error) {
	return f(ctx)
}

// ErrEmptyCatalog is reported when a fetch returned no product groups.
var ErrEmptyCatalog = errors.New("catalog fetch returned no products")

// Outcome says how a snapshot request was answered.
type Outcome string

const (
	OutcomeServed      Outcome = "served"
	OutcomeFetched     Outcome = "fetched"
	OutcomeInProgress  Outcome = "in_progress"
	OutcomeCooldown    Outcome = "cooldown"
	OutcomeUnavailable Outcome = "unavailable"
)

// Result is the answer to RequestSnapshot. Document is nil unless the outcome
// is Served or Fetched.
type Result struct {
	Outcome    Outcome
	Document   *Document
	CapturedAt time.Time
}

// Message is the storefront-facing text for outcomes without a document.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeInProgress:
		return "Scrape in progress, please wait"
	case OutcomeCooldown:
		return "Scrape cooldown active"
	case OutcomeUnavailable:
		return "Could not load product data"
	default:
		return ""
	}
}

// Trigger values for metrics.
const (
	triggerRequest  = "request"
	triggerSchedule = "schedule"
)

// Coordinator bounds catalog fetches to one in flight and backs off after failures.
type Coordinator struct {
	cache      *Cache
	fetcher    Fetcher
	mirrorPath string
	cooldown   time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// CoordinatorDependencies bundles collaborators for Coordinator.
type CoordinatorDependencies struct {
	Cache      *Cache
	Fetcher    Fetcher
	MirrorPath string
	Cooldown   time.Duration
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(deps CoordinatorDependencies) *Coordinator {
	c := &Coordinator{
		cache:      deps.Cache,
		fetcher:    deps.Fetcher,
		mirrorPath: deps.MirrorPath,
		cooldown:   deps.Cooldown,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	if c.cooldown <= 0 {
		c.cooldown = time.Hour
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Cache exposes the underlying cache.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// WarmFromMirror seeds the cache from the on-disk mirror. The mirror's age is
// not checked.
func (c *Coordinator) WarmFromMirror() (int, error) {
	doc, err := LoadMirror(c.mirrorPath)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}
	c.cache.Seed(doc, c.now())
	c.logger.Info("catalog loaded from mirror", zap.String("path", c.mirrorPath), zap.Int("groups", doc.Len()))
	return doc.Len(), nil
}

// RequestSnapshot serves the cached snapshot when there is one. Otherwise it
// runs a fetch unless one is already running or the last one failed within
// the cooldown; callers are never queued behind a running fetch.
func (c *Coordinator) RequestSnapshot(ctx context.Context) (Result, error) {
	if doc, at, ok := c.cache.Snapshot(); ok {
		return Result{Outcome: OutcomeServed, Document: doc, CapturedAt: at}, nil
	}

	switch c.cache.begin(c.now(), c.cooldown) {
	case gateBusy:
		c.metrics.RecordRefresh(triggerRequest, string(OutcomeInProgress))
		return Result{Outcome: OutcomeInProgress}, nil
	case gateCooldown:
		c.metrics.RecordRefresh(triggerRequest, string(OutcomeCooldown))
		return Result{Outcome: OutcomeCooldown}, nil
	}

	c.logger.Info("no cached catalog, fetching")
	// The fetch outlives the request that triggered it.
	doc, err := c.run(context.WithoutCancel(ctx), triggerRequest)
	if err != nil {
		if stale, at, ok := c.cache.Snapshot(); ok {
			return Result{Outcome: OutcomeServed, Document: stale, CapturedAt: at}, nil
		}
		return Result{Outcome: OutcomeUnavailable}, apperrors.NewTransient("catalog fetch failed", err)
	}
	_, at, _ := c.cache.Snapshot()
	return Result{Outcome: OutcomeFetched, Document: doc, CapturedAt: at}, nil
}

// PeriodicRefresh replaces the snapshot with a fresh fetch. It skips when a
// fetch is already running; the failure cooldown does not apply.
func (c *Coordinator) PeriodicRefresh(ctx context.Context) error {
	if c.cache.begin(c.now(), 0) == gateBusy {
		c.logger.Info("skipping catalog refresh, fetch already in progress")
		c.metrics.RecordRefresh(triggerSchedule, "skipped")
		return nil
	}
	c.logger.Info("refreshing catalog")
	_, err := c.run(ctx, triggerSchedule)
	return err
}

// run performs a fetch for a caller that holds the fetch slot and always releases it.
func (c *Coordinator) run(ctx context.Context, trigger string) (doc *Document, err error) {
	committed := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("catalog fetch panicked: %v", r)
		}
		if !committed {
			c.cache.finish(nil, c.now())
			c.metrics.RecordRefresh(trigger, "failed")
			c.logger.Warn("catalog fetch failed, keeping previous snapshot", zap.String("trigger", trigger), zap.Error(err))
		}
	}()

	doc, err = c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	if doc.ImagePathPrefix == "" {
		doc.ImagePathPrefix = DefaultImagePathPrefix
	}

	committed = c.cache.finish(doc, c.now())
	c.metrics.RecordRefresh(trigger, "succeeded")
	c.logger.Info("catalog refreshed", zap.String("trigger", trigger), zap.Int("groups", doc.Len()))
	if err := SaveMirror(c.mirrorPath, doc); err != nil {
		c.logger.Warn("could not persist catalog mirror", zap.Error(err))
	}
	return doc, nil
}
