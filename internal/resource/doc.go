// Package resource implements the per-index resource controller.
//
// The Controller governs three resources:
//
//   - Memory: track and limit arena memory (non-blocking, fail-fast)
//   - Searches: bound the number of searches running at once
//   - Inserts: throttle the insertion rate with a token bucket
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                           │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Limit   │  Search Slots   │  Insert Rate Limiter    │
//	│  (fail-fast)    │  (semaphore)    │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquireMemory  │  AcquireSearch  │  WaitInserts            │
//	│  ReleaseMemory  │  ReleaseSearch  │                         │
//	│  MemoryUsage    │                 │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory Management
//
// The controller satisfies the arena's MemoryAcquirer. AcquireMemory is
// non-blocking and returns ErrMemoryLimitExceeded at once; the arena then
// refuses to grow and the graph reports a capacity error:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//	store := arena.New[uint32](arena.WithMemoryAcquirer(rc))
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
package resource
