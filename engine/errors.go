package engine

import (
	"errors"
	"fmt"
)

var ErrDoubleResume = errors.New("instance is not suspended, resume rejected")

type InvalidArgumentError struct {
	Arg string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s is required", e.Arg)
}

// ExecutionFault wraps any error or panic raised while a state ran.
type ExecutionFault struct {
	State string
	Err   error
}

func (e ExecutionFault) Error() string {
	return fmt.Sprintf("state %s failed: %v", e.State, e.Err)
}

func (e ExecutionFault) Unwrap() error {
	return e.Err
}

// TransitionInvariantViolation is raised when a transition is requested for an
// instance that already reached a final status.
type TransitionInvariantViolation struct {
	State      string
	InstanceId string
}

func (e TransitionInvariantViolation) Error() string {
	return fmt.Sprintf("instance %s of state %s already finished", e.InstanceId, e.State)
}
