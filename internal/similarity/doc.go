// Package similarity implements the fuzzy-lookup index over cached query texts.
//
// Each indexed key is assigned a dense document id. Query texts are tokenized
// into case-folded word sets and stored in roaring-bitmap postings, so a
// search only scores documents that share at least one token with the search text
// (or every document when the threshold is zero). Scores are Jaccard
// similarity over token sets.
//
// The index tracks which tiers hold each key. A key stays searchable while at
// least one tier holds a non-expired copy; it is dropped once the last tier
// lets go of it.
package similarity
