// Package keygen derives cache keys and shard buckets.
//
// A key is the hex SHA-256 of the normalized (query, namespace, category) triple.
// Normalization lowercases every part and collapses runs of whitespace, so
// "Explain  Caching" and "explain caching" share a key. The bucket is the first
// two hex characters of the SHA-256 of the key itself, which spreads keys over
// 256 directories regardless of who produced them.
package keygen
