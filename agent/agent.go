package agent

import (
	"context"
	"sync"

	"github.com/mohitkumar/stepflow/analytics"
	"github.com/mohitkumar/stepflow/cluster"
	"github.com/mohitkumar/stepflow/config"
	"github.com/mohitkumar/stepflow/consumer"
	"github.com/mohitkumar/stepflow/container"
	"github.com/mohitkumar/stepflow/engine"
	"github.com/mohitkumar/stepflow/events"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/maintenance"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/rest"
	"github.com/mohitkumar/stepflow/state"
	"github.com/mohitkumar/stepflow/statemachine"
	"github.com/mohitkumar/stepflow/util"
	"github.com/mohitkumar/stepflow/waitnotify"
	"go.uber.org/zap"
)

type Agent struct {
	Config       config.Config
	container    *container.DIContainer
	worker       *util.Worker
	coordinator  *waitnotify.Coordinator
	executor     *engine.StateMachineExecutor
	controller   *maintenance.Controller
	poller       *maintenance.Poller
	consumers    []*consumer.RedisConsumer
	httpServer   *rest.Server
	ctx          context.Context
	cancel       context.CancelFunc
	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		Config:    config,
		ctx:       ctx,
		cancel:    cancel,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupContainer,
		a.setupExecutor,
		a.setupMaintenance,
		a.setupDefinitions,
		a.setupConsumers,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			a.abort()
			return nil, err
		}
	}
	return a, nil
}

// abort releases what a failed setup already started.
func (a *Agent) abort() {
	a.cancel()
	if a.worker != nil {
		_ = a.worker.Stop()
	}
	a.wg.Wait()
	if a.container != nil {
		_ = a.container.Close()
	}
}

func (a *Agent) setupAnalytics() error {
	return analytics.InitDataCollector(a.Config.AnalyticsConfig)
}

func (a *Agent) setupContainer() error {
	ring := cluster.NewRing(cluster.RingConfig{PartitionCount: a.Config.PartitionCount}, cluster.Node{Name: a.Config.ServiceName})
	a.container = container.NewDiContainer(ring)
	return a.container.Init(a.Config)
}

func (a *Agent) setupExecutor() error {
	a.worker = util.NewWorker("state-machine-executor", &a.wg, util.RunFunc, a.Config.ExecutorWorkers, a.Config.ExecutorCapacity)
	a.worker.Start()
	a.coordinator = waitnotify.NewCoordinator(a.container.GetWaitNotifyStore(), a.worker)
	a.executor = engine.NewStateMachineExecutor(a.container.GetExecutionStore(), a.container.GetStateMachineStore(),
		state.DefaultRegistry(), a.coordinator, a.worker)
	return nil
}

func (a *Agent) setupMaintenance() error {
	a.controller = maintenance.NewController()
	a.poller = maintenance.NewPoller(a.controller, a.container.GetMaintenanceStore(), a.Config.MaintenancePoll, &a.wg)
	return nil
}

func (a *Agent) setupDefinitions() error {
	for _, file := range a.Config.DefinitionFiles {
		def, err := statemachine.LoadDefinition(file)
		if err != nil {
			return err
		}
		sm, err := a.executor.SaveStateMachine(a.ctx, def)
		if err != nil {
			return err
		}
		logger.Info("loaded state machine", zap.String("file", file), zap.String("appId", sm.AppId()), zap.String("id", sm.Id()))
	}
	return nil
}

func (a *Agent) setupConsumers() error {
	if a.Config.DisableConsumers || !a.container.HasStreams() {
		logger.Info("event consumers disabled")
		return nil
	}
	eventsCache := consumer.NewEventsCache(a.Config.ConsumerConfig.DedupTTL)
	opts := consumer.Options{
		ReadWait:          a.Config.ConsumerConfig.ReadWait,
		FrameworkDownWait: a.Config.ConsumerConfig.FrameworkDownWait,
	}
	listeners := map[string]consumer.MessageListener{
		model.TOPIC_ADVISE: events.NewAdviseEventListener(a.Config.ServiceName, a.coordinator),
		model.TOPIC_START:  events.NewStartEventListener(a.Config.ServiceName, a.executor),
	}
	for topic, listener := range listeners {
		stream, ok := a.container.GetStream(topic)
		if !ok {
			continue
		}
		if err := stream.EnsureGroup(a.ctx); err != nil {
			return err
		}
		a.consumers = append(a.consumers, consumer.NewRedisConsumer(topic, stream, listener, eventsCache, a.controller, opts))
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var publisher rest.Publisher
	if a.container.HasStreams() {
		publisher = a.container
	}
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.executor, a.coordinator, a.poller, publisher)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	a.coordinator.StartWatchdog(a.Config.WaitTimeoutPoll, &a.wg)
	a.poller.Start()
	for _, c := range a.consumers {
		a.wg.Add(1)
		go func(c *consumer.RedisConsumer) {
			defer a.wg.Done()
			c.Run(a.ctx)
		}(c)
	}
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			for _, c := range a.consumers {
				c.ShutDown()
			}
			a.cancel()
			return nil
		},
		a.poller.Stop,
		a.coordinator.Stop,
		a.worker.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	if err := analytics.Sync(); err != nil {
		logger.Warn("error flushing analytics", zap.Error(err))
	}
	return a.container.Close()
}

// Done is closed once Shutdown starts.
func (a *Agent) Done() <-chan struct{} {
	return a.shutdowns
}
