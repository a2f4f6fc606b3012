/*
Package cache implements a two-tier cache: a bounded in-process LRU tier in
front of a size-bounded on-disk tier.

# Architecture

	Manager
	├── MemoryStore  LRU map, per-entry TTL, entry count bound
	└── FileStore    one blob per key + cache_metadata.json, byte budget

Reads check memory first, then disk. A disk hit is promoted into memory with
the lifetime it has left. Writes go to both tiers unless MemoryOnly is given.

# Failure Model

The cache fails open towards emptiness. A missing, unreadable or undecodable
blob is discarded and reported as a miss; a failed disk write leaves the value
in memory only, drops any older copy on disk, and is logged. After
FileFailureThreshold disk errors in a row the manager stops writing to disk for
FileCooldown, then lets one trial write through. Only construction with invalid
configuration returns an error to the caller.

# Persistence

FileStore writes each blob to a temp file, syncs it and renames it into place
before the metadata file is rewritten, so the metadata never references a blob
that is not on disk. On open, records without a blob are dropped and blobs
without a record are deleted. Access bookkeeping (last access time, access
count) is written with the next structural change, or by Flush and Close.

Once the tier exceeds its byte budget it evicts by ascending last access time
until usage is at EvictionTarget (80%) of the budget.

# Usage

	m, err := cache.New[Quote](cache.DefaultConfig(), cache.WithLogger(logger))
	if err != nil {
		return err
	}
	defer m.Close()

	m.Set("quote:AAPL", q, cache.WithTTL(time.Minute))
	if q, ok := m.Get("quote:AAPL"); ok {
		// ...
	}

	fetch := cache.Memoize(m, "fetchQuote", fetchQuote, cache.WithMemoTTL[string](time.Minute))

Expired entries are invisible to reads immediately; a Sweeper only reclaims
their space:

	sweeper := cache.NewSweeper(m, 5*time.Minute, logger)
	_ = sweeper.Start(ctx)
	defer sweeper.Stop()

# Thread Safety

Each tier guards its state with one mutex; the manager counters are atomic.
There is no cross-tier atomicity and no single-flight deduplication in
Memoize.
*/
package cache
