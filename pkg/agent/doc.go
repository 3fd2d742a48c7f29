// Package agent implements the turn orchestrator: the state machine
// that drives one user message through reasoning-engine calls, bounded
// tool execution rounds, response caching, and fallback degradation
// until an assistant message can be returned. Turns against the same
// session are serialized through a per-session lane; turns against
// different sessions run in parallel.
package agent
