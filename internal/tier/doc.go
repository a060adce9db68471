// Package tier implements the three storage tiers of the cache.
//
// # Hot
//
// HotTier is a bounded in-memory LRU (hashicorp/golang-lru simplelru) with an
// entry-count cap, a byte-size cap and a TTL per entry. All mutation happens
// behind one mutex.
//
// # Warm and Cold
//
// DiskTier stores one file per key under <dir>/<bucket>/<key>. Writes go to a
// uniquely named temp file that is renamed into place, so concurrent writers
// of the same key resolve to last-writer-wins and readers never observe a
// partial file. An in-memory index ordered by write time drives oldest-first
// eviction once the tier exceeds its byte budget. The index is rebuilt from
// disk when a tier is opened; expired, corrupted and leftover temp files are
// removed during that scan.
//
// The Cold tier is a DiskTier with a compressor between the entry frame and
// the file.
//
// # Listener
//
// Tiers report every store and removal to a Listener. The cache uses this to
// keep the similarity index in step with what the tiers actually hold. The
// listener runs while the tier holds its lock and must not call back into
// the tier.
package tier
