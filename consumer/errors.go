package consumer

import "fmt"

// EventsFrameworkDownError marks the stream source as temporarily unavailable.
// The consumer loop backs off and retries.
type EventsFrameworkDownError struct {
	Err error
}

func (e EventsFrameworkDownError) Error() string {
	return fmt.Sprintf("events framework down: %v", e.Err)
}

func (e EventsFrameworkDownError) Unwrap() error {
	return e.Err
}

type HandlerFailure struct {
	MessageId string
	Err       error
}

func (e HandlerFailure) Error() string {
	return fmt.Sprintf("handler failed for message %s: %v", e.MessageId, e.Err)
}

func (e HandlerFailure) Unwrap() error {
	return e.Err
}
