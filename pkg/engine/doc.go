// Package engine provides clients for the reasoning backends that
// power conversation turns. Each provider implements the Client
// interface so the orchestrator can stay provider-agnostic; failures
// are classified into a small set of typed errors that callers use to
// decide between surfacing, degrading, or rejecting a turn.
package engine
