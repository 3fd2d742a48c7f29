// Package rescache memoizes reasoning engine results under
// content-addressed keys with per-entry TTLs.
//
// The cache is advisory: a failed read is a miss, a failed write is a
// no-op, and neither is ever surfaced to the caller of a chat turn.
// Keys are derived deterministically from the agent type and the full
// serialized message list, so two processes given identical inputs
// compute identical keys.
package rescache
