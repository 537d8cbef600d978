package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"runtime"
	runtimemetrics "runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/depscan/depscan/internal/cache"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/pkg/types"
)

// Analyzer is the injected per-item analysis function. The engine treats
// it as opaque: it only needs success or failure plus a serializable result.
type Analyzer func(ctx context.Context, itemID string) ([]byte, error)

// ProgressFunc is called after each wave with (completed, total) counts
type ProgressFunc func(completed, total int)

// Strategy selects the failure-tolerance behavior of a batch run
type Strategy int

const (
	// StrategyBestEffort processes every wave but aborts once the running
	// error rate exceeds the configured threshold after enough attempts
	StrategyBestEffort Strategy = iota
	// StrategyFailFast aborts the run after the first wave that produced
	// any per-item error
	StrategyFailFast
	// StrategyCollectAll processes every wave regardless of errors
	StrategyCollectAll
)

// Options control one ProcessBatch invocation
type Options struct {
	Strategy Strategy
	Progress ProgressFunc

	// CacheKeyFn derives the cache key for an item. The default hashes
	// the item identifier; callers whose items can change content under
	// the same identifier should fold a content fingerprint in here.
	CacheKeyFn func(itemID string) string
}

// Config configures an Engine. The zero value of every field has a
// documented default applied by New.
type Config struct {
	MaxConcurrency  int           // Concurrency ceiling (default runtime.NumCPU())
	MemoryLimitMB   float64       // Pressure denominator (default 1024)
	DisableAdaptive bool          // Pin concurrency at MaxConcurrency
	SampleInterval  time.Duration // Periodic resource sampling (default 5s)
	GCSettleDelay   time.Duration // Wait after a forced GC (default 100ms)

	// Best-effort abort tuning. Defaults are conventions, not guarantees.
	ErrorRateThreshold float64 // Abort above this error rate (default 0.10)
	MinAttempts        int     // Attempts before the rate is judged (default 10)

	// Sampler returns current memory usage in MB. The default reads the
	// runtime heap; tests inject a stub to simulate pressure.
	Sampler func() float64

	// CPUSampler returns current CPU utilization in percent. The default
	// derives it from the runtime's cumulative CPU counters.
	CPUSampler func() float64

	Logger  *slog.Logger
	Metrics metrics.Recorder
}

func (c *Config) withDefaults() Config {
	out := Config{
		MaxConcurrency:     runtime.NumCPU(),
		MemoryLimitMB:      1024,
		SampleInterval:     5 * time.Second,
		GCSettleDelay:      100 * time.Millisecond,
		ErrorRateThreshold: 0.10,
		MinAttempts:        10,
		Sampler:            heapAllocMB,
		CPUSampler:         newCPUSampler(),
		Logger:             slog.Default(),
		Metrics:            metrics.Nop{},
	}
	if c == nil {
		return out
	}
	if c.MaxConcurrency > 0 {
		out.MaxConcurrency = c.MaxConcurrency
	}
	if c.MemoryLimitMB > 0 {
		out.MemoryLimitMB = c.MemoryLimitMB
	}
	out.DisableAdaptive = c.DisableAdaptive
	if c.SampleInterval > 0 {
		out.SampleInterval = c.SampleInterval
	}
	if c.GCSettleDelay > 0 {
		out.GCSettleDelay = c.GCSettleDelay
	}
	if c.ErrorRateThreshold > 0 {
		out.ErrorRateThreshold = c.ErrorRateThreshold
	}
	if c.MinAttempts > 0 {
		out.MinAttempts = c.MinAttempts
	}
	if c.Sampler != nil {
		out.Sampler = c.Sampler
	}
	if c.CPUSampler != nil {
		out.CPUSampler = c.CPUSampler
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	return out
}

// Engine drives concurrent invocation of an injected analyzer across a
// list of inputs, adapting wave concurrency to live memory pressure and
// memoizing results through an optional tiered cache.
type Engine struct {
	config   Config
	analyzer Analyzer
	cache    *cache.Tiered

	// Shared mutable counters, updated atomically because workers run on
	// separate goroutines
	activeWorkers atomic.Int64
	queuedItems   atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	lastMemoryMB  atomic.Uint64 // math.Float64bits encoded

	increasedSampling atomic.Bool

	stopSampler chan struct{}
	closeOnce   sync.Once
}

// New creates an Engine around the injected analyzer. The cache may be
// nil, in which case every item is analyzed unconditionally.
func New(analyzer Analyzer, resultCache *cache.Tiered, config *Config) *Engine {
	e := &Engine{
		config:      config.withDefaults(),
		analyzer:    analyzer,
		cache:       resultCache,
		stopSampler: make(chan struct{}),
	}
	e.storeMemoryMB(e.config.Sampler())
	go e.sampleLoop()
	return e
}

// ProcessBatch runs the analyzer over itemIDs in waves sized by the
// adaptive concurrency decision. It returns a BatchReport, or one of the
// aggregate error kinds: *types.BatchError (strategy abort or
// cancellation) or *types.ResourceExhaustedError.
func (e *Engine) ProcessBatch(ctx context.Context, itemIDs []string, opts Options) (*types.BatchReport, error) {
	if len(itemIDs) == 0 {
		return nil, types.ErrEmptyBatch
	}

	keyFn := opts.CacheKeyFn
	if keyFn == nil {
		keyFn = defaultCacheKey
	}

	start := time.Now()
	total := len(itemIDs)
	e.queuedItems.Store(int64(total))
	defer e.queuedItems.Store(0)

	var (
		mu        sync.Mutex
		results   []types.BatchItemResult
		itemErrs  []types.BatchItemError
		cacheHits int
	)

	waves := 0
	for next := 0; next < total; {
		// Cancellation is cooperative: checked between waves, never
		// preemptive mid-item
		if ctx.Err() != nil {
			return nil, &types.BatchError{
				Message:    "batch run cancelled",
				Results:    results,
				ItemErrors: itemErrs,
				Cancelled:  true,
			}
		}

		ratio := e.sampleRatio()
		size := e.waveSize(ratio)
		if rem := total - next; size > rem {
			size = rem
		}
		wave := itemIDs[next : next+size]
		next += size
		waves++

		waveStart := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		for _, itemID := range wave {
			g.Go(func() error {
				e.activeWorkers.Add(1)
				e.config.Metrics.SetActiveWorkers(int(e.activeWorkers.Load()))
				defer e.activeWorkers.Add(-1)

				value, fromCache, err := e.processItem(gctx, itemID, keyFn)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					itemErrs = append(itemErrs, itemError(itemID, err))
					e.failed.Add(1)
					e.config.Metrics.ItemFailed()
					return nil // Per-item failures never abort a wave
				}
				results = append(results, types.BatchItemResult{
					ItemID:    itemID,
					Value:     value,
					FromCache: fromCache,
				})
				if fromCache {
					cacheHits++
				}
				e.completed.Add(1)
				e.config.Metrics.ItemProcessed(fromCache)
				return nil
			})
		}
		_ = g.Wait()
		e.queuedItems.Add(-int64(size))
		e.config.Metrics.WaveCompleted(size, time.Since(waveStart))

		if opts.Progress != nil {
			opts.Progress(next, total)
		}

		if err := e.evaluateThresholds(); err != nil {
			return nil, err
		}

		if err := e.evaluateStrategy(opts.Strategy, results, itemErrs); err != nil {
			return nil, err
		}
	}

	return &types.BatchReport{
		Results: results,
		Errors:  itemErrs,
		Summary: types.BatchSummary{
			TotalItems: total,
			Succeeded:  len(results),
			Failed:     len(itemErrs),
			CacheHits:  cacheHits,
			Waves:      waves,
			Duration:   time.Since(start),
		},
	}, nil
}

// ResourceMetrics returns a point-in-time resource snapshot
func (e *Engine) ResourceMetrics() types.ResourceSnapshot {
	return types.ResourceSnapshot{
		MemoryUsedMB:    e.loadMemoryMB(),
		CPUUsagePercent: e.config.CPUSampler(),
		ActiveWorkers:   int(e.activeWorkers.Load()),
		QueuedItems:     int(e.queuedItems.Load()),
		CompletedItems:  int(e.completed.Load()),
		FailedItems:     int(e.failed.Load()),
	}
}

// Close releases the periodic resource sampler. It is safe to call more
// than once and does not clear the cache; cache lifetime is independent
// of engine lifetime.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stopSampler)
	})
	return nil
}

// processItem looks the item up in the cache, running the analyzer on a
// miss. Concurrent same-key loads are serialized by the cache.
func (e *Engine) processItem(ctx context.Context, itemID string, keyFn func(string) string) ([]byte, bool, error) {
	if e.cache == nil {
		value, err := e.analyzer(ctx, itemID)
		return value, false, err
	}
	return e.cache.GetOrLoad(keyFn(itemID), func() ([]byte, error) {
		return e.analyzer(ctx, itemID)
	})
}

// waveSize computes the next wave's concurrency from the pressure ratio
func (e *Engine) waveSize(ratio float64) int {
	if e.config.DisableAdaptive {
		return e.config.MaxConcurrency
	}
	return targetConcurrency(ratio, e.config.MaxConcurrency)
}

// evaluateThresholds applies the post-wave resource policy. Only the
// emergency band fails the run; everything below degrades gracefully.
func (e *Engine) evaluateThresholds() error {
	ratio := e.sampleRatio()

	switch actionForRatio(ratio) {
	case actionFailRun:
		// The forced collection frees memory for whatever runs next;
		// this run still fails
		runtime.GC()
		usage := ratio * e.config.MemoryLimitMB
		e.config.Logger.Error("memory limit breached, failing run",
			"memory_mb", usage, "limit_mb", e.config.MemoryLimitMB)
		return &types.ResourceExhaustedError{
			MemoryUsedMB:  usage,
			MemoryLimitMB: e.config.MemoryLimitMB,
		}
	case actionForcedGC:
		e.config.Logger.Warn("critical memory pressure, forcing collection", "ratio", ratio)
		runtime.GC()
		time.Sleep(e.config.GCSettleDelay)
	case actionGCHint:
		e.config.Logger.Info("high memory pressure, throttling", "ratio", ratio)
		go runtime.GC()
	case actionIncreasedSampling:
		e.increasedSampling.Store(true)
	case actionMonitor:
		e.increasedSampling.Store(false)
	}
	return nil
}

// evaluateStrategy decides whether the run aborts after this wave
func (e *Engine) evaluateStrategy(strategy Strategy, results []types.BatchItemResult, itemErrs []types.BatchItemError) error {
	switch strategy {
	case StrategyFailFast:
		if len(itemErrs) > 0 {
			return &types.BatchError{
				Message:    "fail-fast abort",
				Results:    results,
				ItemErrors: itemErrs,
			}
		}
	case StrategyCollectAll:
		// Never aborts early
	case StrategyBestEffort:
		attempted := len(results) + len(itemErrs)
		if attempted >= e.config.MinAttempts {
			rate := float64(len(itemErrs)) / float64(attempted)
			if rate > e.config.ErrorRateThreshold {
				return &types.BatchError{
					Message:    "error rate exceeded best-effort threshold",
					Results:    results,
					ItemErrors: itemErrs,
				}
			}
		}
	}
	return nil
}

// sampleRatio reads current memory usage and records it for metrics
func (e *Engine) sampleRatio() float64 {
	usedMB := e.config.Sampler()
	e.storeMemoryMB(usedMB)
	ratio := usedMB / e.config.MemoryLimitMB
	e.config.Metrics.SetMemoryRatio(ratio)
	return ratio
}

// sampleLoop refreshes the memory reading on a fixed interval, halved
// while the policy has requested increased sampling
func (e *Engine) sampleLoop() {
	for {
		interval := e.config.SampleInterval
		if e.increasedSampling.Load() {
			interval /= 2
		}
		select {
		case <-e.stopSampler:
			return
		case <-time.After(interval):
			e.storeMemoryMB(e.config.Sampler())
		}
	}
}

func (e *Engine) storeMemoryMB(mb float64) {
	e.lastMemoryMB.Store(math.Float64bits(mb))
}

func (e *Engine) loadMemoryMB() float64 {
	return math.Float64frombits(e.lastMemoryMB.Load())
}

// heapAllocMB is the default memory sampler
func heapAllocMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / (1024 * 1024)
}

// newCPUSampler returns the default CPU sampler. Each call reports the
// process CPU utilization over the window since the previous call,
// derived from the runtime's cumulative CPU counters.
func newCPUSampler() func() float64 {
	samples := []runtimemetrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/idle:cpu-seconds"},
	}
	runtimemetrics.Read(samples)

	var mu sync.Mutex
	prevTotal := samples[0].Value.Float64()
	prevIdle := samples[1].Value.Float64()

	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		runtimemetrics.Read(samples)
		total := samples[0].Value.Float64()
		idle := samples[1].Value.Float64()
		window := total - prevTotal
		busy := window - (idle - prevIdle)
		prevTotal, prevIdle = total, idle
		if window <= 0 {
			return 0
		}
		return busy / window * 100
	}
}

// defaultCacheKey hashes the item identifier into a stable hex digest
func defaultCacheKey(itemID string) string {
	digest := sha256.Sum256([]byte(itemID))
	return hex.EncodeToString(digest[:])
}

// itemError converts an analyzer failure into a recorded per-item error
func itemError(itemID string, err error) types.BatchItemError {
	code := "analysis_failed"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = "cancelled"
	}
	return types.BatchItemError{
		ItemID:  itemID,
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}
