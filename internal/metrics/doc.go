/*
Package metrics exports tiercache events as Prometheus metrics.

# Overview

Collector implements types.Recorder. Pass it to the cache with
cache.WithRecorder and every tier and the manager report to it:

	┌──────────────┐  RecordHit / RecordMiss / RecordSet
	│   Manager    │──────────────────────────┐
	└──────┬───────┘                          │
	       │ RecordEviction / UpdateTier   ┌──▼────────────┐
	┌──────▼───────┐                       │   Collector   │
	│ Memory, File │──────────────────────▶│   registry    │
	└──────────────┘                       └──┬────────────┘
	                                          │ /metrics  /health  /debug/stats

Usage:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "tiercache",
	}, logger)
	if err != nil {
		return err
	}

	m, err := cache.New[Quote](cfg, cache.WithRecorder(collector))
	collector.SetStatsSource(m.Stats)

	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

# Exported Metrics

	<ns>_hits_total{tier}               lookups served by memory or file
	<ns>_misses_total                   lookups served by neither tier
	<ns>_sets_total{placement}          writes, placement both or memory_only
	<ns>_evictions_total{tier,reason}   reason capacity, expired or corrupt
	<ns>_entries{tier}                  current entry count
	<ns>_size_bytes{tier}               current tracked size

A collector built with Enabled false has no registry and ignores every event,
so callers never need to nil-check it.
*/
package metrics
