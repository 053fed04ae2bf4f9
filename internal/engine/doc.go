// Package engine implements the experience, level and streak sync engine.
//
// The engine owns one user's session at a time. A session starts with
// Reconcile, which merges the local cached record with the remote one, and
// then accepts Grant calls that award experience against the daily ceiling.
//
// ARCHITECTURE:
//
// Single Writer:
// Reconcile and Grant hold one mutex for their whole read-modify-write,
// including the bounded remote write. Two overlapping grants therefore can
// never both pass the ceiling check.
//
// Local First:
// Every accepted mutation is committed to the local store in one
// transaction before the remote copy is written. Remote failures are logged
// and healed by the next call, which always sends the full record.
//
// Max Merge:
// Reconcile never sums the two copies. Experience and counters take the
// larger value, so a record that reached both sides is not counted twice.
//
// Level is never stored independently of experience: it is recomputed from
// the configured level.Table on every mutation.
package engine
