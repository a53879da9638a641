package agent

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrTransport marks failures of the underlying LLM transport: a failed
	// round trip or a response with no choices. Transport failures abort the
	// run, callers match with errors.Is.
	ErrTransport = errors.New("transport failed")

	// ErrAnswerFormat marks final answers that cannot be decoded or validated
	// into the requested output type. The run is aborted, history is not
	// updated.
	ErrAnswerFormat = errors.New("answer does not match the requested format")

	// ErrIterationLimit marks runs aborted because the model kept requesting
	// tools past the configured iteration bound.
	ErrIterationLimit = errors.New("iteration limit reached")
)
