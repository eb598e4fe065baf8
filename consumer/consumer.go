package consumer

import (
	"context"
	"time"

	"github.com/mohitkumar/stepflow/model"
)

// Consumer is a durable stream source. Messages read but never acknowledged
// are redelivered by the source itself.
type Consumer interface {
	Read(ctx context.Context, maxWait time.Duration) ([]model.Message, error)
	Acknowledge(ctx context.Context, messageId string) error
}

type MessageListener interface {
	IsProcessable(msg model.Message) bool
	HandleMessage(msg model.Message) bool
}
