package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/cache"
	"github.com/maltedev/ksa-price-scraper/internal/fetch"
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/proxy"
	"github.com/maltedev/ksa-price-scraper/internal/queue"
	"github.com/maltedev/ksa-price-scraper/internal/ratelimit"
	"github.com/maltedev/ksa-price-scraper/internal/stores"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const DefaultConcurrency = 3

// Batch is one comparison request.
type Batch struct {
	Products []string
	// Stores also fixes the tie-break order. Empty means every store.
	Stores []models.StoreID
	// City defaults to Riyadh.
	City models.City
	// Concurrency overrides Config.Concurrency when > 0.
	Concurrency int
}

// Progress is reported after every finished work item, in completion order.
type Progress struct {
	Completed int
	Total     int
	Product   string
	Store     models.StoreID
	Result    models.FetchResult
	Cached    bool
}

type ProgressFunc func(Progress)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Config struct {
	UseProxy     bool
	Proxies      []proxy.Endpoint
	Concurrency  int
	CacheTTL     time.Duration
	ReadyTimeout time.Duration
	// StoreDelayMin and StoreDelayMax space requests to the same store.
	StoreDelayMin time.Duration
	StoreDelayMax time.Duration
	// RequestsPerSecond caps all requests together; 0 means unlimited.
	RequestsPerSecond float64
}

// Orchestrator runs comparison batches. One instance may serve several
// batches at once; identical in-flight lookups are fetched only once.
type Orchestrator struct {
	registry *stores.Registry
	fetcher  fetch.Fetcher
	cache    cache.Cache
	selector *proxy.Selector
	pacer    *ratelimit.PerStore
	limiter  *ratelimit.Global
	cfg      Config
	flights  singleflight.Group
	logger   *slog.Logger
}

func NewOrchestrator(registry *stores.Registry, fetcher fetch.Fetcher, c cache.Cache, cfg Config, logger *slog.Logger) *Orchestrator {
	if registry == nil {
		registry = stores.DefaultRegistry()
	}
	if c == nil {
		c = cache.NewMemory(cache.DefaultCapacity, cfg.CacheTTL)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		registry: registry,
		fetcher:  fetcher,
		cache:    c,
		selector: proxy.NewSelector(),
		pacer:    ratelimit.NewPerStore(cfg.StoreDelayMin, cfg.StoreDelayMax),
		limiter:  ratelimit.NewGlobal(cfg.RequestsPerSecond, 1),
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
	}
}

func (o *Orchestrator) Registry() *stores.Registry {
	return o.registry
}

// Normalize trims and de-duplicates the batch and fills in defaults.
func (o *Orchestrator) Normalize(batch Batch) (Batch, error) {
	var products []string
	seen := make(map[string]bool)
	for _, p := range batch.Products {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		products = append(products, p)
	}
	if len(products) == 0 {
		return Batch{}, &ValidationError{Field: "products", Message: "at least one product name is required"}
	}

	storeIDs := batch.Stores
	if storeIDs == nil {
		storeIDs = o.registry.IDs()
	}
	var unique []models.StoreID
	seenStores := make(map[models.StoreID]bool)
	for _, s := range storeIDs {
		s = models.StoreID(strings.ToLower(strings.TrimSpace(string(s))))
		if s == "" || seenStores[s] {
			continue
		}
		seenStores[s] = true
		unique = append(unique, s)
	}
	if len(unique) == 0 {
		return Batch{}, &ValidationError{Field: "stores", Message: "at least one store is required"}
	}

	city := models.CityRiyadh
	if batch.City != "" {
		c, err := models.ParseCity(string(batch.City))
		if err != nil {
			return Batch{}, &ValidationError{Field: "city", Message: err.Error()}
		}
		city = c
	}

	concurrency := batch.Concurrency
	if concurrency <= 0 {
		concurrency = o.cfg.Concurrency
	}

	return Batch{Products: products, Stores: unique, City: city, Concurrency: concurrency}, nil
}

// Run fills a price matrix for every (product, store) pair. Individual
// failures are recorded in their cells and never fail the batch. When ctx
// is canceled the partial matrix is returned with ctx.Err(); cells that
// never ran are marked canceled.
func (o *Orchestrator) Run(ctx context.Context, batch Batch, progress ProgressFunc) (*models.PriceMatrix, error) {
	batch, err := o.Normalize(batch)
	if err != nil {
		return nil, err
	}

	matrix := models.NewPriceMatrix(batch.City, batch.Products, batch.Stores)
	total := len(batch.Products) * len(batch.Stores)

	q := queue.NewInMemoryQueue()
	tasks := make([]*queue.Task, 0, total)
	for _, product := range batch.Products {
		for _, store := range batch.Stores {
			tasks = append(tasks, &queue.Task{
				ID:      strconv.Itoa(len(tasks)),
				Product: product,
				Store:   store,
				City:    batch.City,
			})
		}
	}
	if err := q.PushBatch(tasks); err != nil {
		return nil, fmt.Errorf("failed to enqueue work: %w", err)
	}
	q.Close()

	var (
		mu        sync.Mutex
		completed int
	)
	record := func(task *queue.Task, result models.FetchResult, cached bool) {
		matrix.Set(task.Product, task.Store, result)

		mu.Lock()
		defer mu.Unlock()
		completed++
		if progress != nil {
			progress(Progress{
				Completed: completed,
				Total:     total,
				Product:   task.Product,
				Store:     task.Store,
				Result:    result,
				Cached:    cached,
			})
		}
	}

	workers := min(batch.Concurrency, total)
	start := time.Now()
	o.logger.Info("starting batch",
		"products", len(batch.Products),
		"stores", len(batch.Stores),
		"city", batch.City,
		"workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				task, err := q.Pop(gctx)
				if errors.Is(err, queue.ErrQueueClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				result, cached := o.process(gctx, task)
				record(task, result, cached)
			}
		})
	}
	waitErr := g.Wait()

	for _, task := range q.Drain() {
		record(task, models.Failed(models.FailureCanceled), false)
	}

	o.logger.Info("batch finished",
		"items", total,
		"unavailable", len(matrix.Unavailable()),
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return matrix, err
	}
	if waitErr != nil {
		return matrix, waitErr
	}
	return matrix, nil
}

// process resolves one work item. It never returns an error; every
// failure becomes a failed result.
func (o *Orchestrator) process(ctx context.Context, task *queue.Task) (result models.FetchResult, cached bool) {
	logger := o.logger.With("product", task.Product, "store", task.Store)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("work item panicked", "panic", r)
			result, cached = models.Failed(models.FailureExtraction), false
		}
	}()

	adapter, err := o.registry.Get(task.Store)
	if err != nil {
		logger.Warn("skipping store", "error", err)
		return models.Failed(models.FailureUnknownStore), false
	}

	key := task.Key()
	if r, ok := o.cache.Get(ctx, key); ok {
		logger.Debug("cache hit")
		return r, true
	}

	for attempt := 0; attempt < 2; attempt++ {
		v, _, _ := o.flights.Do(key.String(), func() (interface{}, error) {
			if r, ok := o.cache.Get(ctx, key); ok {
				return flight{result: r, cached: true}, nil
			}
			r := o.fetchAndExtract(ctx, adapter, task, logger)
			if cache.Cacheable(r) {
				o.cache.Put(ctx, key, r, o.cfg.CacheTTL)
			}
			return flight{result: r}, nil
		})
		f := v.(flight)

		// A flight led by another, now canceled, batch says nothing about
		// this one.
		if f.result.Failure == models.FailureCanceled && ctx.Err() == nil {
			continue
		}
		return f.result, f.cached
	}

	return models.Failed(models.FailureCanceled), false
}

type flight struct {
	result models.FetchResult
	cached bool
}

func (o *Orchestrator) fetchAndExtract(ctx context.Context, adapter stores.Adapter, task *queue.Task, logger *slog.Logger) models.FetchResult {
	if err := o.pacer.Wait(ctx, task.Store); err != nil {
		return models.Failed(models.FailureCanceled)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return models.Failed(models.FailureCanceled)
		}
		return models.Failed(models.FailureTimeout)
	}

	endpoint := proxy.Direct
	if o.cfg.UseProxy {
		endpoint = o.selector.Select(o.cfg.Proxies)
	}

	searchURL, err := adapter.BuildURL(task.Product, task.City)
	if err != nil {
		logger.Warn("failed to build search URL", "error", err)
		return models.Failed(models.FailureExtraction)
	}

	html, err := o.fetcher.Fetch(ctx, fetch.Request{
		URL:           searchURL,
		Proxy:         endpoint,
		ReadySelector: adapter.ReadySelector(),
		ReadyTimeout:  o.cfg.ReadyTimeout,
	})
	if err != nil {
		reason := fetch.FailureOf(err)
		if reason != models.FailureCanceled {
			o.pacer.Record(task.Store, false)
			logger.Warn("fetch failed", "url", searchURL, "proxy", endpoint.String(), "reason", reason, "error", err)
		}
		return models.Failed(reason)
	}
	o.pacer.Record(task.Store, true)

	result, err := adapter.Extract(html, searchURL)
	if err != nil {
		logger.Warn("no price extracted", "url", searchURL, "error", err)
		return result
	}

	logger.Debug("price found", "price", result.Price.Decimal.String(), "link", result.Link)
	return result
}
