// Package session owns in-memory conversation history.
//
// Invariants:
// - Histories are append-only: prior turns are never edited or reordered.
// - Appends for the same session are serialized by a per-session lock.
// - Sessions are volatile; idle sessions are evicted on a schedule and
//   optionally archived to SQLite on the way out.
//
// Usage:
//
//	store := session.NewStore(session.StoreConfig{})
//	id, _, _ := store.GetOrCreate(ctx, "")
//	_, _ = store.Append(ctx, id, session.Message{Role: session.RoleUser, Content: "hello"})
//	history, _ := store.Get(ctx, id)
//	_ = history
package session
