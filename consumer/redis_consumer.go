package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/maintenance"
	"github.com/mohitkumar/stepflow/metrics"
	"github.com/mohitkumar/stepflow/model"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const DEFAULT_READ_WAIT = 10 * time.Second
const DEFAULT_FRAMEWORK_DOWN_WAIT = 10 * time.Second
const DEFAULT_MAINTENANCE_WAIT = time.Second

type Options struct {
	ReadWait          time.Duration
	FrameworkDownWait time.Duration
	MaintenanceWait   time.Duration
}

// RedisConsumer polls a stream source, filters and de-duplicates messages and
// hands them to a listener. A message is acknowledged only when it was
// processable, seen for the first time and handled successfully.
type RedisConsumer struct {
	name        string
	source      Consumer
	listener    MessageListener
	eventsCache *c.Cache
	maintenance *maintenance.Controller
	opts        Options
	shouldStop  atomic.Bool
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewRedisConsumer(name string, source Consumer, listener MessageListener, eventsCache *c.Cache, mc *maintenance.Controller, opts Options) *RedisConsumer {
	if opts.ReadWait <= 0 {
		opts.ReadWait = DEFAULT_READ_WAIT
	}
	if opts.FrameworkDownWait <= 0 {
		opts.FrameworkDownWait = DEFAULT_FRAMEWORK_DOWN_WAIT
	}
	if opts.MaintenanceWait <= 0 {
		opts.MaintenanceWait = DEFAULT_MAINTENANCE_WAIT
	}
	if mc == nil {
		mc = maintenance.NewController()
	}
	return &RedisConsumer{
		name:        name,
		source:      source,
		listener:    listener,
		eventsCache: eventsCache,
		maintenance: mc,
		opts:        opts,
		stop:        make(chan struct{}),
	}
}

// NewEventsCache builds the de-duplication cache shared by consumers.
func NewEventsCache(ttl time.Duration) *c.Cache {
	return c.New(ttl, 10*time.Minute)
}

func (rc *RedisConsumer) Name() string {
	return rc.name
}

// Run blocks until ShutDown is called or ctx is done.
func (rc *RedisConsumer) Run(ctx context.Context) {
	logger.Info("started consumer", zap.String("consumer", rc.name))
	for !rc.shouldStop.Load() && ctx.Err() == nil {
		if rc.maintenance.IsOn() {
			rc.sleep(ctx, rc.opts.MaintenanceWait)
			continue
		}
		err := rc.PollAndProcessMessages(ctx)
		if err == nil {
			continue
		}
		var downErr EventsFrameworkDownError
		if errors.As(err, &downErr) {
			logger.Error("events framework is down, retrying", zap.String("consumer", rc.name), zap.Duration("backoff", rc.opts.FrameworkDownWait), zap.Error(err))
			rc.sleep(ctx, rc.opts.FrameworkDownWait)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		logger.Error("error in consumer loop", zap.String("consumer", rc.name), zap.Error(err))
	}
	logger.Info("stopped consumer", zap.String("consumer", rc.name))
}

func (rc *RedisConsumer) PollAndProcessMessages(ctx context.Context) error {
	messages, err := rc.source.Read(ctx, rc.opts.ReadWait)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		rc.processMessage(ctx, msg)
	}
	return nil
}

func (rc *RedisConsumer) processMessage(ctx context.Context, msg model.Message) {
	if !rc.listener.IsProcessable(msg) {
		metrics.ConsumerMessages.WithLabelValues(rc.name, "skipped").Inc()
		return
	}
	if rc.isAlreadyProcessed(msg) {
		logger.Warn("duplicate message", zap.String("consumer", rc.name), zap.String("messageId", msg.Id))
		metrics.ConsumerMessages.WithLabelValues(rc.name, "duplicate").Inc()
		return
	}
	rc.insertMessageInCache(msg)
	ok, err := rc.handle(msg)
	if err != nil {
		logger.Error("error handling message", zap.String("consumer", rc.name), zap.String("messageId", msg.Id), zap.Error(err))
	}
	if !ok {
		metrics.ConsumerMessages.WithLabelValues(rc.name, "failed").Inc()
		return
	}
	if err := rc.source.Acknowledge(ctx, msg.Id); err != nil {
		logger.Error("error acknowledging message", zap.String("consumer", rc.name), zap.String("messageId", msg.Id), zap.Error(err))
		return
	}
	metrics.ConsumerMessages.WithLabelValues(rc.name, "acked").Inc()
}

func (rc *RedisConsumer) handle(msg model.Message) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = HandlerFailure{MessageId: msg.Id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return rc.listener.HandleMessage(msg), nil
}

func (rc *RedisConsumer) cacheKey(msg model.Message) string {
	return fmt.Sprintf("%s_%s", rc.name, msg.Id)
}

func (rc *RedisConsumer) isAlreadyProcessed(msg model.Message) bool {
	if rc.eventsCache == nil {
		return false
	}
	key := rc.cacheKey(msg)
	if _, found := rc.eventsCache.Get(key); !found {
		return false
	}
	if _, err := rc.eventsCache.IncrementInt(key, 1); err != nil {
		logger.Error("error updating events cache", zap.String("key", key), zap.Error(err))
	}
	return true
}

func (rc *RedisConsumer) insertMessageInCache(msg model.Message) {
	if rc.eventsCache == nil {
		return
	}
	rc.eventsCache.Set(rc.cacheKey(msg), 1, c.DefaultExpiration)
}

// DuplicateCount returns how many times a message was seen again after its
// first delivery.
func (rc *RedisConsumer) DuplicateCount(messageId string) int {
	if rc.eventsCache == nil {
		return 0
	}
	v, found := rc.eventsCache.Get(fmt.Sprintf("%s_%s", rc.name, messageId))
	if !found {
		return 0
	}
	return v.(int) - 1
}

func (rc *RedisConsumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-rc.stop:
	}
}

func (rc *RedisConsumer) ShutDown() {
	rc.shouldStop.Store(true)
	rc.stopOnce.Do(func() {
		close(rc.stop)
	})
}
