// Package opstools provides the built-in operational tools exposed to
// the reasoning engine: metrics queries, service health checks, and
// dashboard generation. Each tool wraps an HTTP collaborator service
// and returns a string payload suitable for feeding back into the
// conversation as a tool message.
package opstools
