package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohitkumar/stepflow/consumer"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const FIELD_TOPIC string = "topic"
const FIELD_SUB_TOPIC string = "subTopic"
const FIELD_SERVICE_NAME string = "serviceName"
const FIELD_PAYLOAD string = "payload"

type StreamConfig struct {
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int64
	// RedeliverAfter is the idle time after which pending entries of any
	// consumer in the group are claimed again. Zero disables reclaiming.
	RedeliverAfter time.Duration
}

var _ consumer.Consumer = new(redisStream)

// redisStream reads a redis stream through a consumer group.
type redisStream struct {
	*baseDao
	StreamConfig
}

func NewRedisStream(baseDao *baseDao, conf StreamConfig) *redisStream {
	if conf.BatchSize <= 0 {
		conf.BatchSize = 10
	}
	return &redisStream{
		baseDao:      baseDao,
		StreamConfig: conf,
	}
}

func (r *redisStream) EnsureGroup(ctx context.Context) error {
	err := r.redisClient.XGroupCreateMkStream(ctx, r.Stream, r.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		logger.Error("error creating consumer group", zap.String("stream", r.Stream), zap.String("group", r.Group), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisStream) Read(ctx context.Context, maxWait time.Duration) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	if r.RedeliverAfter > 0 {
		claimed, _, err := r.redisClient.XAutoClaim(ctx, &rd.XAutoClaimArgs{
			Stream:   r.Stream,
			Group:    r.Group,
			Consumer: r.ConsumerName,
			MinIdle:  r.RedeliverAfter,
			Start:    "0-0",
			Count:    r.BatchSize,
		}).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return nil, r.readError(ctx, err)
		}
		for _, m := range claimed {
			messages = append(messages, toMessage(m))
		}
		if int64(len(messages)) >= r.BatchSize {
			return messages, nil
		}
	}
	streams, err := r.redisClient.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.Group,
		Consumer: r.ConsumerName,
		Streams:  []string{r.Stream, ">"},
		Count:    r.BatchSize - int64(len(messages)),
		Block:    maxWait,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return messages, nil
		}
		return nil, r.readError(ctx, err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			messages = append(messages, toMessage(m))
		}
	}
	return messages, nil
}

func (r *redisStream) readError(ctx context.Context, err error) error {
	if strings.Contains(err.Error(), "NOGROUP") {
		if gerr := r.EnsureGroup(ctx); gerr == nil {
			return nil
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return consumer.EventsFrameworkDownError{Err: err}
}

func (r *redisStream) Acknowledge(ctx context.Context, messageId string) error {
	if err := r.redisClient.XAck(ctx, r.Stream, r.Group, messageId).Err(); err != nil {
		logger.Error("error acknowledging message", zap.String("stream", r.Stream), zap.String("messageId", messageId), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisStream) Publish(ctx context.Context, msg model.Message) (string, error) {
	id, err := r.redisClient.XAdd(ctx, &rd.XAddArgs{
		Stream: r.Stream,
		Values: map[string]any{
			FIELD_TOPIC:        msg.Topic,
			FIELD_SUB_TOPIC:    msg.SubTopic,
			FIELD_SERVICE_NAME: msg.ServiceName,
			FIELD_PAYLOAD:      string(msg.Payload),
		},
	}).Result()
	if err != nil {
		logger.Error("error publishing message", zap.String("stream", r.Stream), zap.String("topic", msg.Topic), zap.Error(err))
		return "", persistence.StorageLayerError{Message: err.Error()}
	}
	return id, nil
}

func toMessage(m rd.XMessage) model.Message {
	str := func(k string) string {
		if v, ok := m.Values[k].(string); ok {
			return v
		}
		return ""
	}
	return model.Message{
		Id:          m.ID,
		Topic:       str(FIELD_TOPIC),
		SubTopic:    str(FIELD_SUB_TOPIC),
		ServiceName: str(FIELD_SERVICE_NAME),
		Payload:     []byte(str(FIELD_PAYLOAD)),
	}
}
