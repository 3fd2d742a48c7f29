// Package toolregistry declares the tools the reasoning engine may
// call and resolves invocations by name.
//
// Execution failures are captured, not propagated: a failed tool call
// becomes error text in the Result so the orchestrator can feed it
// back to the engine, and the turn keeps going.
package toolregistry
