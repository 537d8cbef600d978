package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the narrow surface the engine and scanner record through.
// A nil-safe no-op implementation keeps instrumentation optional.
type Recorder interface {
	ItemProcessed(fromCache bool)
	ItemFailed()
	WaveCompleted(size int, duration time.Duration)
	SetActiveWorkers(n int)
	SetMemoryRatio(ratio float64)
}

// Nop is a Recorder that discards all observations
type Nop struct{}

func (Nop) ItemProcessed(bool)               {}
func (Nop) ItemFailed()                      {}
func (Nop) WaveCompleted(int, time.Duration) {}
func (Nop) SetActiveWorkers(int)             {}
func (Nop) SetMemoryRatio(float64)           {}

// Config configures the Prometheus collector and its HTTP endpoint
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Collector implements Recorder on a dedicated Prometheus registry
type Collector struct {
	registry *prometheus.Registry
	server   *http.Server

	itemsProcessed *prometheus.CounterVec
	itemsFailed    prometheus.Counter
	waveDuration   prometheus.Histogram
	waveSize       prometheus.Histogram
	activeWorkers  prometheus.Gauge
	memoryRatio    prometheus.Gauge
}

// NewCollector creates a collector with all engine metrics registered
func NewCollector(config Config) (*Collector, error) {
	if config.Namespace == "" {
		config.Namespace = "depscan"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "items_processed_total",
			Help:      "Items successfully processed, by source",
		}, []string{"source"}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "item_failures_total",
			Help:      "Items whose analysis failed",
		}),
		waveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "wave_duration_seconds",
			Help:      "Duration of one concurrently-dispatched wave",
			Buckets:   prometheus.DefBuckets,
		}),
		waveSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "wave_size",
			Help:      "Items dispatched per wave",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "active_workers",
			Help:      "Workers currently executing items",
		}),
		memoryRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "memory_pressure_ratio",
			Help:      "memoryUsedMB / memoryLimitMB as sampled before each wave",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.itemsProcessed, c.itemsFailed, c.waveDuration, c.waveSize, c.activeWorkers, c.memoryRatio,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	if config.Enabled && config.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(config.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		c.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() { _ = c.server.ListenAndServe() }()
	}

	return c, nil
}

// Close shuts the metrics endpoint down, if one was started
func (c *Collector) Close() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *Collector) ItemProcessed(fromCache bool) {
	source := "analyzer"
	if fromCache {
		source = "cache"
	}
	c.itemsProcessed.WithLabelValues(source).Inc()
}

func (c *Collector) ItemFailed() {
	c.itemsFailed.Inc()
}

func (c *Collector) WaveCompleted(size int, duration time.Duration) {
	c.waveSize.Observe(float64(size))
	c.waveDuration.Observe(duration.Seconds())
}

func (c *Collector) SetActiveWorkers(n int) {
	c.activeWorkers.Set(float64(n))
}

func (c *Collector) SetMemoryRatio(ratio float64) {
	c.memoryRatio.Set(ratio)
}
