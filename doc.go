// Package tiercache provides an embedded three-tier cache for expensive,
// text-keyed results.
//
// Values live in up to three tiers, fastest first:
//
//   - Hot: a bounded in-memory LRU.
//   - Warm: one uncompressed file per entry under <dir>/<bucket>/<key>.
//   - Cold: the same layout, compressed with zstd (default) or lz4.
//
// Warm and Cold survive restarts; a new Cache pointed at the same
// directories sees every entry that has not expired.
//
// # Quick Start
//
//	c, err := tiercache.New[Answer](tiercache.WithDirectory("./cache"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	key, _ := c.Store(ctx, "explain caching", "agent-1", "qa", answer)
//	v, ok, _ := c.Get(ctx, key)
//
// # Reads write
//
// Get is not read-only at the storage layer. A hit in Warm copies the entry
// into Hot; a hit in Cold copies it into Warm and Hot. These promotion writes
// are best effort: a failed promotion is logged and counted, and Get still
// returns the value it found.
//
// # Writes fan out
//
// Set writes every enabled tier. A tier that fails (disk full, permission
// denied) does not stop the others; Set then returns a *SetError naming the
// tiers that failed.
//
// # Similarity
//
// Every entry remembers the query text it was stored under. FindSimilar and
// FindBestMatch score that text against the query text of each entry with Jaccard similarity over
// case-folded word sets and return the cached values of every live entry at
// or above the threshold.
//
// # Expiry
//
// Entries expire lazily: a read past the TTL removes the entry and reports a
// miss. There is no background sweeper.
package tiercache
