// Package store provides the SQLite-backed local cache for growth progress.
//
// The cache holds three things per user:
//   - progress_cache: the last-known UserProgress record
//   - experience_ledger: experience granted per calendar day
//   - task_credits: which per-day-limited sources were credited on which day
//
// The cache is ephemeral from the system's point of view: it may be rebuilt
// from the remote document store at any time. Conflict resolution happens in
// the engine; at this layer Save is last-writer-wins.
//
// # Malformed Data
//
// Load never fails because of what it reads. A record that does not decode, or
// decodes to values that violate the record invariants, is logged as a warning
// and reported as absent so the caller falls back to defaults. Only I/O errors
// are returned.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite has one writer; this also keeps ":memory:"
//     databases alive for the life of the Store
//
// Days are stored as YYYY-MM-DD text so that lexical order is calendar order.
package store
