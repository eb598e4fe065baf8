package container

import (
	"context"
	"fmt"

	"github.com/mohitkumar/stepflow/cluster"
	"github.com/mohitkumar/stepflow/config"
	"github.com/mohitkumar/stepflow/consumer"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/persistence/memory"
	rd "github.com/mohitkumar/stepflow/persistence/redis"
	redis "github.com/redis/go-redis/v9"
)

// Stream is one topic's event stream: read by a consumer, written by the
// event endpoint.
type Stream interface {
	consumer.Consumer
	Publish(ctx context.Context, msg model.Message) (string, error)
	EnsureGroup(ctx context.Context) error
}

type DIContainer struct {
	initialized       bool
	ring              *cluster.Ring
	redisClient       redis.UniversalClient
	executionStore    persistence.ExecutionStore
	stateMachineStore persistence.StateMachineStore
	waitNotifyStore   persistence.WaitNotifyStore
	maintenanceStore  persistence.MaintenanceStore
	streams           map[string]Stream
}

func (d *DIContainer) setInitialized() {
	d.initialized = true
}

func NewDiContainer(ring *cluster.Ring) *DIContainer {
	return &DIContainer{
		initialized: false,
		ring:        ring,
		streams:     make(map[string]Stream),
	}
}

// StreamName is the stream carrying events of topic.
func StreamName(base string, topic string) string {
	return base + ":" + topic
}

func (d *DIContainer) Init(conf config.Config) error {
	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		d.redisClient = rd.NewClient(rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
			Password:  conf.RedisConfig.Password,
		})
		dao := rd.NewBaseDao(d.redisClient, conf.RedisConfig.Namespace, d.ring)
		if err := dao.Ping(context.Background()); err != nil {
			return fmt.Errorf("redis not reachable: %w", err)
		}
		d.executionStore = rd.NewRedisExecutionStore(dao)
		d.stateMachineStore = rd.NewRedisStateMachineStore(dao)
		d.waitNotifyStore = rd.NewRedisWaitNotifyStore(dao).WithResponseTTL(conf.ResponseTTL)
		d.maintenanceStore = rd.NewRedisMaintenanceStore(dao)
		for _, topic := range []string{model.TOPIC_ADVISE, model.TOPIC_START} {
			d.streams[topic] = rd.NewRedisStream(dao, rd.StreamConfig{
				Stream:         StreamName(conf.ConsumerConfig.Stream, topic),
				Group:          conf.ConsumerConfig.Group,
				ConsumerName:   conf.ConsumerConfig.ConsumerName,
				BatchSize:      int64(conf.ConsumerConfig.BatchSize),
				RedeliverAfter: conf.ConsumerConfig.RedeliverAfter,
			})
		}
	case config.STORAGE_TYPE_INMEM:
		d.executionStore = memory.NewInMemoryExecutionStore()
		d.stateMachineStore = memory.NewInMemoryStateMachineStore()
		d.waitNotifyStore = memory.NewInMemoryWaitNotifyStore().WithResponseTTL(conf.ResponseTTL)
		d.maintenanceStore = memory.NewInMemoryMaintenanceStore()
	default:
		return fmt.Errorf("unknown storage type %s", conf.StorageType)
	}
	d.setInitialized()
	return nil
}

func (d *DIContainer) GetExecutionStore() persistence.ExecutionStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.executionStore
}

func (d *DIContainer) GetStateMachineStore() persistence.StateMachineStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.stateMachineStore
}

func (d *DIContainer) GetWaitNotifyStore() persistence.WaitNotifyStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.waitNotifyStore
}

func (d *DIContainer) GetMaintenanceStore() persistence.MaintenanceStore {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.maintenanceStore
}

// GetStream returns the stream of topic. In memory storage has none.
func (d *DIContainer) GetStream(topic string) (Stream, bool) {
	if !d.initialized {
		panic("persistence not initalized")
	}
	s, ok := d.streams[topic]
	return s, ok
}

func (d *DIContainer) HasStreams() bool {
	return len(d.streams) > 0
}

// Publish routes msg to the stream of its topic.
func (d *DIContainer) Publish(ctx context.Context, msg model.Message) (string, error) {
	s, ok := d.GetStream(msg.Topic)
	if !ok {
		return "", fmt.Errorf("no stream for topic %s", msg.Topic)
	}
	return s.Publish(ctx, msg)
}

func (d *DIContainer) Close() error {
	if d.redisClient != nil {
		return d.redisClient.Close()
	}
	return nil
}
