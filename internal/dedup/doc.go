// Package dedup rejects content that has already been observed, regardless
// of which detection path produced it.
//
// Two independent checks:
//   - identity (content id or normalized URL)
//   - fingerprint (id + normalized title + truncated publish time)
//
// Both are backed by bounded insertion-ordered caches with FIFO eviction.
package dedup
