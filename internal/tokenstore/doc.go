// Package tokenstore persists the bearer token and a snapshot of the signed-in user so a
// session survives process restarts.
//
// A store holds at most one token. [Store.Save] with an empty string clears it, and
// [Store.Load] never fails: storage problems are logged and reported as absence.
//
// Implementations:
//   - [SQLiteStore] : durable key-value table session_store(key, value)
//   - [MemoryStore] : process-local, for tests and ephemeral runs
package tokenstore
