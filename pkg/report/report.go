// Package report turns cache statistics into a readable report with tuning
// suggestions. Everything here is a pure function of types.ManagerStats.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/objectfs/tiercache/pkg/types"
)

// Default thresholds, in percent
const (
	LowHitRatePercent  = 50.0
	HighHitRatePercent = 90.0
	HighUsagePercent   = 90.0
)

// Suggestion texts
const (
	SuggestLowHitRate     = "Hit rate is low: review the caching strategy and TTL settings."
	SuggestHighHitRate    = "Hit rate is very high: consider growing the cache to hold more data."
	SuggestMemoryFull     = "Memory tier is nearly full: raise memory_max_entries or shorten TTLs."
	SuggestFileFull       = "File tier is nearly full: raise file_max_size or clean up expired data."
	SuggestFileHitsHigher = "File hits exceed memory hits: raise memory_max_entries to serve more reads from memory."
	SuggestFileWritesOff  = "File tier writes are paused after repeated disk errors: check free space and permissions on the cache directory."
	SuggestHealthy        = "Cache performance is healthy, keep monitoring usage."
)

// Thresholds controls when suggestions fire
type Thresholds struct {
	LowHitRatePercent  float64
	HighHitRatePercent float64
	HighUsagePercent   float64
}

// DefaultThresholds returns the documented 50/90/90 thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowHitRatePercent:  LowHitRatePercent,
		HighHitRatePercent: HighHitRatePercent,
		HighUsagePercent:   HighUsagePercent,
	}
}

// Suggestions returns tuning suggestions for stats using the default thresholds
func Suggestions(stats types.ManagerStats) []string {
	return SuggestionsWithThresholds(stats, DefaultThresholds())
}

// SuggestionsWithThresholds returns tuning suggestions for stats. It always
// returns at least one suggestion. Hit rate rules need at least one lookup.
func SuggestionsWithThresholds(stats types.ManagerStats, th Thresholds) []string {
	var suggestions []string

	if stats.TotalRequests > 0 {
		switch {
		case stats.HitRatePercent < th.LowHitRatePercent:
			suggestions = append(suggestions, SuggestLowHitRate)
		case stats.HitRatePercent > th.HighHitRatePercent:
			suggestions = append(suggestions, SuggestHighHitRate)
		}
	}

	if stats.Memory.UsagePercent() > th.HighUsagePercent {
		suggestions = append(suggestions, SuggestMemoryFull)
	}
	if stats.File.UsagePercent() > th.HighUsagePercent {
		suggestions = append(suggestions, SuggestFileFull)
	}
	if stats.FileHits > stats.MemoryHits {
		suggestions = append(suggestions, SuggestFileHitsHigher)
	}
	if stats.FileBreaker.State == "OPEN" {
		suggestions = append(suggestions, SuggestFileWritesOff)
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, SuggestHealthy)
	}
	return suggestions
}

// Generate renders stats as a markdown report stamped with now
func Generate(stats types.ManagerStats, now time.Time) string {
	var b strings.Builder

	b.WriteString("# Cache Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format("2006-01-02 15:04:05"))

	b.WriteString("\n## Overall\n")
	fmt.Fprintf(&b, "- Hit rate: %.1f%%\n", stats.HitRatePercent)
	fmt.Fprintf(&b, "- Total requests: %s\n", comma(stats.TotalRequests))
	fmt.Fprintf(&b, "- Memory hits: %s\n", comma(stats.MemoryHits))
	fmt.Fprintf(&b, "- File hits: %s\n", comma(stats.FileHits))
	fmt.Fprintf(&b, "- Misses: %s\n", comma(stats.Misses))
	fmt.Fprintf(&b, "- Sets: %s\n", comma(stats.Sets))

	mem := stats.Memory
	b.WriteString("\n## Memory Tier\n")
	fmt.Fprintf(&b, "- Entries: %s / %s (%.1f%%)\n",
		humanize.Comma(int64(mem.EntryCount)), humanize.Comma(int64(mem.MaxEntries)), mem.UsagePercent())
	fmt.Fprintf(&b, "- Total size: %s\n", bytes(mem.TotalSizeBytes))
	fmt.Fprintf(&b, "- Average size: %s\n", bytes(int64(mem.AvgSizeBytes)))
	fmt.Fprintf(&b, "- Total accesses: %s\n", humanize.Comma(mem.TotalAccessCount))

	file := stats.File
	b.WriteString("\n## File Tier\n")
	if file.Directory != "" {
		fmt.Fprintf(&b, "- Directory: %s\n", file.Directory)
	}
	fmt.Fprintf(&b, "- Entries: %s\n", humanize.Comma(int64(file.EntryCount)))
	fmt.Fprintf(&b, "- Total size: %s / %s (%.1f%%)\n",
		bytes(file.TotalSizeBytes), bytes(file.MaxSizeBytes), file.UsagePercent())
	fmt.Fprintf(&b, "- Average size: %s\n", bytes(int64(file.AvgSizeBytes)))
	fmt.Fprintf(&b, "- Total accesses: %s\n", humanize.Comma(file.TotalAccessCount))
	if breaker := stats.FileBreaker; breaker.State != "" {
		fmt.Fprintf(&b, "- Write breaker: %s (%s failures, %s writes skipped)\n",
			breaker.State, humanize.Comma(int64(breaker.TotalFailures)), comma(breaker.Rejected))
	}

	b.WriteString("\n## Suggestions\n")
	for i, suggestion := range Suggestions(stats) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, suggestion)
	}

	return b.String()
}

func comma(n uint64) string {
	return humanize.Comma(int64(n))
}

func bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
