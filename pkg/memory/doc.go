// Package memory keeps an agent's recent conversation notes and a durable
// archive of the important ones.
//
// Invariants:
//   - Short-term memory never holds more than MaxShortTerm items once an
//     operation returns.
//   - An item evicted from short-term memory is appended to long-term memory
//     exactly once when its importance is at least PromotionThreshold, and is
//     dropped otherwise.
//   - Long-term memory is loaded once at construction and fully rewritten to
//     the Store after every add. Store failures are logged, never returned.
//   - Short-term memory is never persisted.
//
// Usage:
//
//	store, _ := memory.OpenStore(memory.BackendJSON, "/data/memory.json")
//	mgr := memory.NewManager(memory.Config{Store: store, Logger: logger})
//	mgr.AddShortTerm("User: load 1ubq", memory.WithImportance(0.8))
//	items := mgr.SearchMemory("1ubq", memory.DefaultSearchLimit)
//	_ = items
package memory
