package events

import (
	"context"
	"errors"

	"github.com/mohitkumar/stepflow/consumer"
	"github.com/mohitkumar/stepflow/engine"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, response model.NotifyResponse) error
}

type Starter interface {
	ExecuteByID(ctx context.Context, req model.ExecutionRequest) (*model.StateExecutionInstance, error)
}

var (
	_ consumer.MessageListener = new(AdviseEventListener)
	_ consumer.MessageListener = new(StartEventListener)
)

// addressedTo matches messages of topic sent to serviceName or to nobody in
// particular.
func addressedTo(msg model.Message, topic string, serviceName string) bool {
	if msg.Topic != topic {
		return false
	}
	return len(msg.ServiceName) == 0 || msg.ServiceName == serviceName
}

// AdviseEventListener turns advise events into notifications of the
// correlation id they carry.
type AdviseEventListener struct {
	serviceName string
	notifier    Notifier
	encDec      util.EncoderDecoder[model.AdviseEvent]
}

func NewAdviseEventListener(serviceName string, notifier Notifier) *AdviseEventListener {
	return &AdviseEventListener{
		serviceName: serviceName,
		notifier:    notifier,
		encDec:      util.NewJsonEncoderDecoder[model.AdviseEvent](),
	}
}

func (l *AdviseEventListener) IsProcessable(msg model.Message) bool {
	return addressedTo(msg, model.TOPIC_ADVISE, l.serviceName)
}

func (l *AdviseEventListener) HandleMessage(msg model.Message) bool {
	event, err := l.encDec.Decode(msg.Payload)
	if err != nil {
		logger.Error("dropping undecodable advise event", zap.String("messageId", msg.Id), zap.Error(err))
		return true
	}
	if len(event.CorrelationId) == 0 {
		logger.Error("dropping advise event without correlation id", zap.String("messageId", msg.Id))
		return true
	}
	err = l.notifier.Notify(context.Background(), model.NotifyResponse{
		CorrelationId: event.CorrelationId,
		Status:        event.Status,
		ErrorMsg:      event.ErrorMsg,
		Data:          event.Data,
	})
	if err != nil {
		logger.Error("error notifying advise event", zap.String("messageId", msg.Id), zap.String("correlationId", event.CorrelationId), zap.Error(err))
		return false
	}
	return true
}

// StartEventListener starts a stored state machine for every start event.
type StartEventListener struct {
	serviceName string
	starter     Starter
	encDec      util.EncoderDecoder[model.StartEvent]
}

func NewStartEventListener(serviceName string, starter Starter) *StartEventListener {
	return &StartEventListener{
		serviceName: serviceName,
		starter:     starter,
		encDec:      util.NewJsonEncoderDecoder[model.StartEvent](),
	}
}

func (l *StartEventListener) IsProcessable(msg model.Message) bool {
	return addressedTo(msg, model.TOPIC_START, l.serviceName)
}

func (l *StartEventListener) HandleMessage(msg model.Message) bool {
	event, err := l.encDec.Decode(msg.Payload)
	if err != nil {
		logger.Error("dropping undecodable start event", zap.String("messageId", msg.Id), zap.Error(err))
		return true
	}
	instance, err := l.starter.ExecuteByID(context.Background(), model.ExecutionRequest{
		AppId:           event.AppId,
		StateMachineId:  event.StateMachineId,
		ExecutionUuid:   event.ExecutionUuid,
		ContextElements: event.ContextElements,
		Callback:        event.Callback,
	})
	if err != nil {
		var invalid engine.InvalidArgumentError
		if errors.As(err, &invalid) || errors.Is(err, persistence.ErrNotFound) {
			logger.Error("dropping start event", zap.String("messageId", msg.Id), zap.Error(err))
			return true
		}
		logger.Error("error starting execution", zap.String("messageId", msg.Id), zap.Error(err))
		return false
	}
	logger.Info("execution started", zap.String("messageId", msg.Id), zap.String("executionUuid", instance.ExecutionUuid))
	return true
}
