package config

import "hash/fnv"

// hashBytes returns a stable 64-bit FNV-1a digest; 0 means "no content".
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
