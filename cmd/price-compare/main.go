package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/ksa-price-scraper/internal/cache"
	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/config"
	"github.com/maltedev/ksa-price-scraper/internal/fetch"
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/proxy"
	"github.com/maltedev/ksa-price-scraper/internal/report"
	"github.com/maltedev/ksa-price-scraper/internal/stores"
	"github.com/maltedev/ksa-price-scraper/pkg/logger"
)

func main() {
	var (
		productsFile = flag.String("products", "", "File with one product name per line, - for stdin")
		city         = flag.String("city", "", "City (riyadh, jeddah, dammam, makkah, madinah); defaults to SCRAPER_CITY")
		storeList    = flag.String("stores", "", "Comma-separated store ids; defaults to all stores")
		proxiesFile  = flag.String("proxies", "", "File with one proxy per line")
		noProxy      = flag.Bool("no-proxy", false, "Connect directly even if proxies are configured")
		concurrency  = flag.Int("concurrency", 0, "Parallel work items; defaults to SCRAPER_CONCURRENT_LIMIT")
		backend      = flag.String("backend", "", "Fetch backend: playwright, chromedp or http")
		csvPath      = flag.String("csv", "", "Write the price table as CSV")
		xlsxPath     = flag.String("xlsx", "", "Write the price table as XLSX")
		cacheFile    = flag.String("cache-file", "", "Load and save the result cache snapshot")
		envFile      = flag.String("env", ".env", "Environment file")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	products, err := loadProducts(*productsFile, flag.Args())
	if err != nil {
		logger.Error("Failed to read products", "error", err)
		os.Exit(1)
	}
	if len(products) == 0 {
		fmt.Fprintln(os.Stderr, "No products to compare. Use -products or pass product names as arguments.")
		flag.Usage()
		os.Exit(1)
	}

	pool, err := cfg.ProxyPool()
	if err != nil {
		logger.Error("Failed to load proxies", "error", err)
		os.Exit(1)
	}
	if *proxiesFile != "" {
		fromFile, err := proxy.LoadFile(*proxiesFile)
		if err != nil {
			logger.Error("Failed to load proxies", "error", err)
			os.Exit(1)
		}
		pool = append(pool, fromFile...)
	}

	compareCfg := cfg.CompareConfig(pool)
	if *noProxy {
		compareCfg.UseProxy = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing with partial results")
		cancel()
	}()

	if *backend == "" {
		*backend = cfg.Browser.Backend
	}
	fetcher, err := fetch.New(*backend, cfg.FetchOptions(), logger)
	if err != nil {
		logger.Error("Failed to initialize fetcher", "error", err)
		os.Exit(1)
	}
	defer fetcher.Close()

	memory := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.TTL)
	if *cacheFile != "" {
		n, err := memory.LoadFile(*cacheFile)
		if err != nil {
			logger.Warn("Failed to load cache snapshot", "path", *cacheFile, "error", err)
		} else {
			logger.Info("Cache snapshot loaded", "path", *cacheFile, "entries", n)
		}
	}
	resultCache, closeCache := buildCache(ctx, cfg, memory, logger)
	defer closeCache()

	orchestrator := compare.NewOrchestrator(stores.DefaultRegistry(), fetcher, resultCache, compareCfg, logger)

	batch := compare.Batch{
		Products:    products,
		Stores:      cfg.StoreIDs(),
		City:        cfg.City(),
		Concurrency: *concurrency,
	}
	if *storeList != "" {
		batch.Stores = models.ParseStoreIDs(*storeList)
	}
	if *city != "" {
		batch.City = models.City(*city)
	}

	matrix, err := orchestrator.Run(ctx, batch, logProgress(logger))
	if matrix == nil {
		logger.Error("Comparison failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("Comparison interrupted", "error", err)
	}

	table := report.BuildTable(matrix)
	if err := report.WriteSummary(os.Stdout, table); err != nil {
		logger.Error("Failed to print summary", "error", err)
	}

	if *csvPath != "" {
		if err := writeFile(*csvPath, table, report.WriteCSV); err != nil {
			logger.Error("Failed to write CSV", "path", *csvPath, "error", err)
		} else {
			logger.Info("CSV written", "path", *csvPath)
		}
	}
	if *xlsxPath != "" {
		if err := writeFile(*xlsxPath, table, report.WriteXLSX); err != nil {
			logger.Error("Failed to write XLSX", "path", *xlsxPath, "error", err)
		} else {
			logger.Info("XLSX written", "path", *xlsxPath)
		}
	}

	if *cacheFile != "" {
		if err := memory.SaveFile(*cacheFile); err != nil {
			logger.Error("Failed to save cache snapshot", "path", *cacheFile, "error", err)
		}
	}
}

// buildCache puts a shared Redis tier behind the local cache when
// CACHE_REDIS_ADDR is set and reachable.
func buildCache(ctx context.Context, cfg *config.Config, memory *cache.Memory, logger *slog.Logger) (cache.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		return memory, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, using local cache only", "addr", cfg.Cache.RedisAddr, "error", err)
		client.Close()
		return memory, func() {}
	}

	remote := cache.NewRedis(client, cfg.Cache.RedisPrefix, cfg.Cache.TTL, logger)
	return cache.NewTiered(memory, remote), func() { client.Close() }
}

func logProgress(logger *slog.Logger) compare.ProgressFunc {
	return func(p compare.Progress) {
		attrs := []any{
			"completed", p.Completed,
			"total", p.Total,
			"product", p.Product,
			"store", p.Store,
			"cached", p.Cached,
		}
		if p.Result.Available() {
			logger.Info("Price found", append(attrs, "price", p.Result.Price.Decimal.StringFixed(2))...)
			return
		}
		logger.Warn("No price", append(attrs, "reason", p.Result.Failure)...)
	}
}

// loadProducts reads product names from path (or stdin for "-") followed by
// any names given as arguments. Blank lines and # comments are skipped.
func loadProducts(path string, args []string) ([]string, error) {
	var products []string

	if path != "" {
		var r io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open products file: %w", err)
			}
			defer f.Close()
			r = f
		}

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			products = append(products, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read products: %w", err)
		}
	}

	for _, arg := range args {
		if arg = strings.TrimSpace(arg); arg != "" {
			products = append(products, arg)
		}
	}

	return products, nil
}

func writeFile(path string, t report.Table, write func(io.Writer, report.Table) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
