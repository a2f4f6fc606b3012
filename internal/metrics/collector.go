package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/tiercache/pkg/types"
	"github.com/objectfs/tiercache/pkg/utils"
)

// Collector exports cache events as Prometheus metrics. It implements
// types.Recorder so the cache tiers and the manager can report to it directly.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *utils.StructuredLogger

	// Prometheus metrics
	hitCounter      *prometheus.CounterVec
	missCounter     prometheus.Counter
	setCounter      *prometheus.CounterVec
	evictionCounter *prometheus.CounterVec
	entriesGauge    *prometheus.GaugeVec
	sizeGauge       *prometheus.GaugeVec

	// statsFunc backs the /debug/stats endpoint
	statsFunc func() types.ManagerStats
	started   time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

var _ types.Recorder = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *utils.StructuredLogger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "tiercache",
		}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	if !config.Enabled {
		return &Collector{config: config, logger: logger}, nil
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	collector := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logger.WithComponent("metrics"),
		started:  time.Now(),
	}

	collector.initMetrics()

	// Register metrics with registry
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Registry returns the registry the collector exports, nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetStatsSource installs the function /debug/stats reports
func (c *Collector) SetStatsSource(fn func() types.ManagerStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statsFunc = fn
}

// Start binds the metrics port and serves /metrics, /health and /debug/stats
// in the background.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/stats", c.debugStatsHandler)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port: %w", err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	c.mu.Lock()
	c.server = server
	c.listener = listener
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	c.logger.Info("metrics server listening", map[string]interface{}{
		"addr": listener.Addr().String(),
		"path": c.config.Path,
	})
	return nil
}

// Addr returns the bound address once started
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.RLock()
	server := c.server
	c.mu.RUnlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordHit records a lookup served by tier
func (c *Collector) RecordHit(tier types.Tier) {
	if !c.config.Enabled {
		return
	}
	c.hitCounter.With(prometheus.Labels{"tier": string(tier)}).Inc()
}

// RecordMiss records a lookup neither tier could serve
func (c *Collector) RecordMiss() {
	if !c.config.Enabled {
		return
	}
	c.missCounter.Inc()
}

// RecordSet records a write and where it was placed
func (c *Collector) RecordSet(memoryOnly bool) {
	if !c.config.Enabled {
		return
	}
	placement := "both"
	if memoryOnly {
		placement = "memory_only"
	}
	c.setCounter.With(prometheus.Labels{"placement": placement}).Inc()
}

// RecordEviction records entries leaving a tier
func (c *Collector) RecordEviction(tier types.Tier, reason types.EvictionReason, count int) {
	if !c.config.Enabled || count <= 0 {
		return
	}
	c.evictionCounter.With(prometheus.Labels{
		"tier":   string(tier),
		"reason": string(reason),
	}).Add(float64(count))
}

// UpdateTier updates the occupancy gauges of a tier
func (c *Collector) UpdateTier(tier types.Tier, entries int, sizeBytes int64) {
	if !c.config.Enabled {
		return
	}
	labels := prometheus.Labels{"tier": string(tier)}
	c.entriesGauge.With(labels).Set(float64(entries))
	c.sizeGauge.With(labels).Set(float64(sizeBytes))
}

// Helper methods

func (c *Collector) initMetrics() {
	c.hitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "hits_total",
			Help:      "Total number of lookups served, by tier",
		},
		[]string{"tier"},
	)

	c.missCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "misses_total",
			Help:      "Total number of lookups found in neither tier",
		},
	)

	c.setCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "sets_total",
			Help:      "Total number of writes, by placement",
		},
		[]string{"placement"},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "evictions_total",
			Help:      "Total number of entries removed by capacity, expiry or corruption",
		},
		[]string{"tier", "reason"},
	)

	c.entriesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "entries",
			Help:      "Current number of entries per tier",
		},
		[]string{"tier"},
	)

	c.sizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "size_bytes",
			Help:      "Current tracked size per tier in bytes",
		},
		[]string{"tier"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.hitCounter,
		c.missCounter,
		c.setCounter,
		c.evictionCounter,
		c.entriesGauge,
		c.sizeGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy","service":"tiercache","uptime":%q}`, time.Since(c.started).Round(time.Second))
}

func (c *Collector) debugStatsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsFunc := c.statsFunc
	c.mu.RUnlock()

	if statsFunc == nil {
		http.Error(w, "no stats source configured", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(statsFunc())
}
