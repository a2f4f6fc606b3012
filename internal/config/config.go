package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/tiercache/pkg/cache"
	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
	"github.com/objectfs/tiercache/pkg/utils"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TIERCACHE_"

const bytesPerMB = 1024 * 1024

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// ComponentLevels overrides LogLevel per component, e.g. file_store: DEBUG
	ComponentLevels map[string]string `yaml:"component_levels,omitempty"`
}

// CacheConfig represents two-tier cache settings
type CacheConfig struct {
	CacheDir         string `yaml:"cache_dir"`
	MemoryMaxEntries int    `yaml:"memory_max_entries"`
	// FileMaxSize takes humanized sizes ("512MiB", "2GB") and wins over FileMaxSizeMB
	FileMaxSize     string        `yaml:"file_max_size,omitempty"`
	FileMaxSizeMB   float64       `yaml:"file_max_size_mb"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	Compress        bool          `yaml:"compress"`
	Compression     string        `yaml:"compression"`
	Codec           string        `yaml:"codec"`
	MetadataFile    string        `yaml:"metadata_file"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// Disk failures in a row before file writes pause for FileCooldown
	FileFailureThreshold int           `yaml:"file_failure_threshold"`
	FileCooldown         time.Duration `yaml:"file_cooldown"`
}

// MetricsConfig represents Prometheus exporter settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Cache: CacheConfig{
			CacheDir:         cache.DefaultCacheDir,
			MemoryMaxEntries: cache.DefaultMemoryMaxEntries,
			FileMaxSizeMB:    1000,
			Compress:         true,
			Compression:      codec.CompressionGzip,
			Codec:            "msgpack",
			MetadataFile:     cache.DefaultMetadataFile,
			CleanupInterval:  5 * time.Minute,

			FileFailureThreshold: cache.DefaultFileFailureThreshold,
			FileCooldown:         cache.DefaultFileCooldown,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "tiercache",
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeConfigLoad, "failed to read config file", err).
			WithDetail("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeConfigLoad, "failed to parse config file", err).
			WithDetail("file", filename)
	}

	return nil
}

// LoadFromEnv loads configuration from TIERCACHE_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := getenv("LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := getenv("LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Cache settings
	if val := getenv("CACHE_DIR"); val != "" {
		c.Cache.CacheDir = val
	}
	if val := getenv("MEMORY_MAX_ENTRIES"); val != "" {
		entries, err := strconv.Atoi(val)
		if err != nil {
			return envError("MEMORY_MAX_ENTRIES", err)
		}
		c.Cache.MemoryMaxEntries = entries
	}
	if val := getenv("FILE_MAX_SIZE"); val != "" {
		c.Cache.FileMaxSize = val
	}
	if val := getenv("FILE_MAX_SIZE_MB"); val != "" {
		mb, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError("FILE_MAX_SIZE_MB", err)
		}
		c.Cache.FileMaxSizeMB = mb
	}
	if val := getenv("DEFAULT_TTL"); val != "" {
		ttl, err := parseDuration(val)
		if err != nil {
			return envError("DEFAULT_TTL", err)
		}
		c.Cache.DefaultTTL = ttl
	}
	if val := getenv("COMPRESS"); val != "" {
		compress, err := strconv.ParseBool(val)
		if err != nil {
			return envError("COMPRESS", err)
		}
		c.Cache.Compress = compress
	}
	if val := getenv("COMPRESSION"); val != "" {
		c.Cache.Compression = strings.ToLower(val)
	}
	if val := getenv("CODEC"); val != "" {
		c.Cache.Codec = strings.ToLower(val)
	}
	if val := getenv("CLEANUP_INTERVAL"); val != "" {
		interval, err := parseDuration(val)
		if err != nil {
			return envError("CLEANUP_INTERVAL", err)
		}
		c.Cache.CleanupInterval = interval
	}
	if val := getenv("FILE_FAILURE_THRESHOLD"); val != "" {
		threshold, err := strconv.Atoi(val)
		if err != nil {
			return envError("FILE_FAILURE_THRESHOLD", err)
		}
		c.Cache.FileFailureThreshold = threshold
	}
	if val := getenv("FILE_COOLDOWN"); val != "" {
		cooldown, err := parseDuration(val)
		if err != nil {
			return envError("FILE_COOLDOWN", err)
		}
		c.Cache.FileCooldown = cooldown
	}

	// Metrics settings
	if val := getenv("METRICS_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return envError("METRICS_ENABLED", err)
		}
		c.Metrics.Enabled = enabled
	}
	if val := getenv("METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envError("METRICS_PORT", err)
		}
		c.Metrics.Port = port
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("log_level", c.Global.LogLevel, "must be one of: DEBUG, INFO, WARN, ERROR")
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("log_format", c.Global.LogFormat, "must be text or json")
	}
	for component, level := range c.Global.ComponentLevels {
		if _, err := utils.ParseLogLevel(level); err != nil {
			return invalid("component_levels."+component, level, "must be one of: DEBUG, INFO, WARN, ERROR")
		}
	}

	if c.Cache.MemoryMaxEntries < 0 {
		return invalid("memory_max_entries", c.Cache.MemoryMaxEntries, "must not be negative")
	}
	if c.Cache.FileMaxSizeMB < 0 {
		return invalid("file_max_size_mb", c.Cache.FileMaxSizeMB, "must not be negative")
	}
	if _, err := c.Cache.FileMaxSizeBytes(); err != nil {
		return err
	}
	if c.Cache.DefaultTTL < 0 {
		return invalid("default_ttl", c.Cache.DefaultTTL, "must not be negative")
	}
	if c.Cache.CleanupInterval < 0 {
		return invalid("cleanup_interval", c.Cache.CleanupInterval, "must not be negative")
	}
	if c.Cache.FileFailureThreshold < 0 {
		return invalid("file_failure_threshold", c.Cache.FileFailureThreshold, "must not be negative")
	}
	if c.Cache.FileCooldown < 0 {
		return invalid("file_cooldown", c.Cache.FileCooldown, "must not be negative")
	}
	if _, err := codec.NewCompressor(c.Cache.Compression); err != nil {
		return invalid("compression", c.Cache.Compression, "must be gzip, zstd or none")
	}
	if _, err := codec.ByName[any](c.Cache.Codec); err != nil {
		return invalid("codec", c.Cache.Codec, "must be msgpack or json")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port", c.Metrics.Port, "must be between 1 and 65535")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path", c.Metrics.Path, "must start with /")
		}
	}

	return nil
}

// FileMaxSizeBytes resolves the file tier budget. Humanized sizes follow
// go-humanize: "MB" is 1000*1000 bytes, "MiB" is 1024*1024. FileMaxSizeMB
// counts binary megabytes.
func (c CacheConfig) FileMaxSizeBytes() (int64, error) {
	if c.FileMaxSize != "" {
		size, err := humanize.ParseBytes(c.FileMaxSize)
		if err != nil {
			return 0, cacheerrors.Wrap(cacheerrors.ErrCodeConfigValidation, "invalid file_max_size", err).
				WithDetail("file_max_size", c.FileMaxSize)
		}
		if size > math.MaxInt64 {
			return 0, invalid("file_max_size", c.FileMaxSize, "is too large")
		}
		return int64(size), nil
	}
	size := c.FileMaxSizeMB * bytesPerMB
	if size >= math.MaxInt64 {
		return 0, invalid("file_max_size_mb", c.FileMaxSizeMB, "is too large")
	}
	return int64(size), nil
}

// ToCacheConfig maps the cache section onto cache.Config
func (c *Configuration) ToCacheConfig() (*cache.Config, error) {
	maxSize, err := c.Cache.FileMaxSizeBytes()
	if err != nil {
		return nil, err
	}

	return &cache.Config{
		MemoryMaxEntries: c.Cache.MemoryMaxEntries,
		FileMaxSizeBytes: maxSize,
		DefaultTTL:       c.Cache.DefaultTTL,
		Compress:         c.Cache.Compress,
		Compression:      c.Cache.Compression,
		CacheDir:         c.Cache.CacheDir,
		MetadataFile:     c.Cache.MetadataFile,
		Codec:            c.Cache.Codec,

		FileFailureThreshold: c.Cache.FileFailureThreshold,
		FileCooldown:         c.Cache.FileCooldown,
	}, nil
}

// LoggerConfig maps the global section onto a logger configuration
func (c *Configuration) LoggerConfig() *utils.StructuredLoggerConfig {
	cfg := utils.DefaultStructuredLoggerConfig()
	if level, err := utils.ParseLogLevel(c.Global.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.Format = utils.ParseLogFormat(c.Global.LogFormat)
	if len(c.Global.ComponentLevels) > 0 {
		cfg.ComponentLevels = make(map[string]utils.LogLevel, len(c.Global.ComponentLevels))
		for component, level := range c.Global.ComponentLevels {
			if parsed, err := utils.ParseLogLevel(level); err == nil {
				cfg.ComponentLevels[component] = parsed
			}
		}
	}
	return cfg
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// parseDuration accepts Go durations ("90s") and plain seconds ("90")
func parseDuration(val string) (time.Duration, error) {
	if seconds, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(val)
}

func envError(name string, err error) error {
	return cacheerrors.Wrap(cacheerrors.ErrCodeConfigLoad, "invalid environment variable", err).
		WithDetail("variable", EnvPrefix+name)
}

func invalid(field string, value interface{}, reason string) error {
	return cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, fmt.Sprintf("invalid %s: %v (%s)", field, value, reason)).
		WithDetail("field", field)
}
