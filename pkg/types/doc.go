/*
Package types provides the shared data structures and interfaces for tiercache.

Both cache tiers, the manager, the reporting package and the metrics collector
agree on the definitions in this package, so none of them has to import another
just to exchange an entry or a statistics snapshot.

# Entries

Entry pairs a value with the metadata the tiers need for eviction and expiry:

	entry := types.NewEntry("quote:AAPL", price, time.Minute, 128, time.Now())
	if entry.IsExpired(time.Now()) {
		// logically absent, even before a sweep removes it
	}

An entry with a zero TTL never expires. LastAccessedAt never precedes CreatedAt.

# Interfaces

Codec serializes values for the file tier. Compressor wraps the encoded bytes
before they reach disk. Recorder receives hit, miss, set and eviction events
and is implemented by the Prometheus collector; NopRecorder is the default.
ExpiryCleaner is the contract a host-owned background sweep drives.

# Thread Safety

The stats structs are plain values and safe to copy. Entry is not synchronized;
the stores guard every entry behind their own lock.
*/
package types
