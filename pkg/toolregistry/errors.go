package toolregistry

import "errors"

var (
	// ErrDuplicateTool is returned by Register for an already-taken name.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound marks an invocation of an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidArguments marks an engine-supplied payload the tool's
	// schema rejected.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrExecutionFailed wraps a downstream failure from the tool's
	// collaborator.
	ErrExecutionFailed = errors.New("tool execution failed")
)
