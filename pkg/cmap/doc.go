// Package cmap provides a concurrent-safe sharded map.
//
// Each shard has its own RWMutex, so unrelated keys rarely contend.
// Compute gives per-key read-modify-write under the shard lock, which is
// how lockout counters and expiring store entries are mutated.
//
// Usage:
//
//	m := cmap.New[string, int]()
//	m.Compute("k", func(v int, ok bool) (int, bool) { return v + 1, true })
package cmap
