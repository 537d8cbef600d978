package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/depscan/depscan/internal/metrics"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig   `yaml:"global"`
	Storage StorageConfig  `yaml:"storage"`
	Cache   CacheConfig    `yaml:"cache"`
	Engine  EngineConfig   `yaml:"engine"`
	Scan    ScanConfig     `yaml:"scan"`
	Metrics metrics.Config `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// StorageConfig represents database settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// CacheConfig represents the tiered result cache settings
type CacheConfig struct {
	MemoryMaxEntries int           `yaml:"memory_max_entries"`
	FileMaxEntries   int           `yaml:"file_max_entries"`
	Directory        string        `yaml:"directory"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	MemoryFirst      bool          `yaml:"memory_first"`
}

// EngineConfig represents batch engine settings
type EngineConfig struct {
	MaxConcurrency     int           `yaml:"max_concurrency"`
	MemoryLimitMB      float64       `yaml:"memory_limit_mb"`
	DisableAdaptive    bool          `yaml:"disable_adaptive"`
	SampleInterval     time.Duration `yaml:"sample_interval"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	MinAttempts        int           `yaml:"min_attempts"`
}

// ScanConfig represents project scan settings
type ScanConfig struct {
	BatchSize     int  `yaml:"batch_size"`
	IncludeTests  bool `yaml:"include_tests"`
	IncludeVendor bool `yaml:"include_vendor"`
}

// NewDefault returns a configuration populated with defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
		},
		Storage: StorageConfig{
			DatabasePath: defaultDatabasePath(),
		},
		Cache: CacheConfig{
			MemoryMaxEntries: 1000,
			FileMaxEntries:   10000,
			Directory:        defaultCacheDir(),
			DefaultTTL:       24 * time.Hour,
			MemoryFirst:      true,
		},
		Engine: EngineConfig{
			MaxConcurrency:     runtime.NumCPU(),
			MemoryLimitMB:      1024,
			SampleInterval:     5 * time.Second,
			ErrorRateThreshold: 0.10,
			MinAttempts:        10,
		},
		Scan: ScanConfig{
			BatchSize:    20,
			IncludeTests: true,
		},
		Metrics: metrics.Config{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "depscan",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration overrides from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("DEPSCAN_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("DEPSCAN_DB_PATH"); val != "" {
		c.Storage.DatabasePath = val
	}
	if val := os.Getenv("DEPSCAN_CACHE_DIR"); val != "" {
		c.Cache.Directory = val
	}
	if val := os.Getenv("DEPSCAN_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = duration
		}
	}
	if val := os.Getenv("DEPSCAN_MAX_CONCURRENCY"); val != "" {
		if concurrency, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxConcurrency = concurrency
		}
	}
	if val := os.Getenv("DEPSCAN_MEMORY_LIMIT_MB"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil {
			c.Engine.MemoryLimitMB = limit
		}
	}
	if val := os.Getenv("DEPSCAN_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DEPSCAN_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}

	return nil
}

// Validate checks the configuration for invalid values
func (c *Configuration) Validate() error {
	if c.Engine.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be greater than 0")
	}

	if c.Engine.MemoryLimitMB <= 0 {
		return fmt.Errorf("memory_limit_mb must be greater than 0")
	}

	if c.Engine.ErrorRateThreshold < 0 || c.Engine.ErrorRateThreshold > 1 {
		return fmt.Errorf("error_rate_threshold must be between 0 and 1")
	}

	if c.Cache.MemoryMaxEntries <= 0 {
		return fmt.Errorf("memory_max_entries must be greater than 0")
	}

	if c.Cache.FileMaxEntries <= 0 {
		return fmt.Errorf("file_max_entries must be greater than 0")
	}

	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Global.LogLevel, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "depscan.db"
	}
	return home + "/.depscan/depscan.db"
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".depscan-cache"
	}
	return home + "/.depscan/cache"
}
