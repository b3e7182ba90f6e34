package core

import "errors"

var (
	// ErrAgentExists is returned when registering a name that is taken.
	ErrAgentExists = errors.New("agent already registered")
	// ErrAgentAtCapacity is returned when an agent cannot accept more work.
	ErrAgentAtCapacity = errors.New("agent cannot accept task")
	// ErrAlreadyAssigned is returned when a task is handed to a second agent.
	ErrAlreadyAssigned = errors.New("task already assigned to another agent")
	// ErrInvalidTransition is returned for a backwards or terminal task transition.
	ErrInvalidTransition = errors.New("invalid task status transition")
	// ErrTaskTimeout is reported when an execution outlives its timeout.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrRequestTimeout is returned when a bus request receives no response.
	ErrRequestTimeout = errors.New("request timeout")
	// ErrMissingCorrelation is returned when responding to a message without a correlation id.
	ErrMissingCorrelation = errors.New("cannot respond to message without correlation id")
	// ErrBusClosed is returned when publishing on a closed bus.
	ErrBusClosed = errors.New("message bus closed")
)
