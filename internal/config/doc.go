/*
Package config provides configuration management for tiercache with multi-source support.

Configuration is assembled from compiled-in defaults, an optional YAML file and
TIERCACHE_* environment variables, in that order of increasing precedence.
Command-line flags are applied by the caller after Load returns.

# Configuration Structure

	global:
	  log_level: INFO          # DEBUG, INFO, WARN, ERROR
	  log_format: text         # text (logfmt) or json

	cache:
	  cache_dir: cache
	  memory_max_entries: 1000
	  file_max_size_mb: 1000   # binary megabytes
	  file_max_size: "512MiB"  # optional, humanized, wins over file_max_size_mb
	  default_ttl: 0s          # 0 means entries never expire
	  compress: true
	  compression: gzip        # gzip, zstd or none
	  codec: msgpack           # msgpack or json
	  metadata_file: cache_metadata.json
	  cleanup_interval: 5m

	metrics:
	  enabled: false
	  port: 9090
	  path: /metrics
	  namespace: tiercache

# Environment Variables

	TIERCACHE_LOG_LEVEL, TIERCACHE_LOG_FORMAT
	TIERCACHE_CACHE_DIR, TIERCACHE_MEMORY_MAX_ENTRIES
	TIERCACHE_FILE_MAX_SIZE, TIERCACHE_FILE_MAX_SIZE_MB
	TIERCACHE_DEFAULT_TTL, TIERCACHE_CLEANUP_INTERVAL   # "90s" or plain seconds
	TIERCACHE_COMPRESS, TIERCACHE_COMPRESSION, TIERCACHE_CODEC
	TIERCACHE_METRICS_ENABLED, TIERCACHE_METRICS_PORT

Unlike unknown YAML keys, a malformed environment value is an error.

# Usage

	cfg, err := config.Load("/etc/tiercache/config.yaml")
	if err != nil {
		return err
	}
	cacheCfg, err := cfg.ToCacheConfig()
	if err != nil {
		return err
	}
	m, err := cache.New[Quote](cacheCfg)

Validate rejects negative sizes, entry limits and durations, unknown log levels,
compressions and codecs. All errors are *errors.CacheError values with a
CONFIG_LOAD or CONFIG_VALIDATION code.
*/
package config
