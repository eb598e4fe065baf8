package waitnotify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

const TIMEOUT_ERROR_MSG string = "timed out waiting for response"

// CallbackFunc runs once every correlation id of a wait has a response.
type CallbackFunc func(ctx context.Context, params map[string]string, responses map[string]model.NotifyResponse) error

// Coordinator registers waits on sets of correlation ids and fires the wait's
// callback exactly once, after the last response arrives. Callbacks are
// resolved by name so a wait survives restarts.
type Coordinator struct {
	store     persistence.WaitNotifyStore
	worker    *util.Worker
	mu        sync.RWMutex
	callbacks map[string]CallbackFunc
	watchdog  *util.TickWorker
}

func NewCoordinator(store persistence.WaitNotifyStore, worker *util.Worker) *Coordinator {
	return &Coordinator{
		store:     store,
		worker:    worker,
		callbacks: make(map[string]CallbackFunc),
	}
}

func (c *Coordinator) RegisterCallback(name string, fn CallbackFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[name] = fn
}

func (c *Coordinator) callback(name string) (CallbackFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.callbacks[name]
	return fn, ok
}

// WaitForAll registers a wait on correlationIds and returns its id. Responses
// delivered before the registration count.
func (c *Coordinator) WaitForAll(ctx context.Context, cb model.CallbackRef, correlationIds ...string) (string, error) {
	if len(correlationIds) == 0 {
		return "", errors.New("wait needs at least one correlation id")
	}
	if _, ok := c.callback(cb.Name); !ok {
		return "", fmt.Errorf("callback %s is not registered", cb.Name)
	}
	wait := &model.WaitInstance{
		Id:             uuid.New().String(),
		CorrelationIds: util.AppendUnique(nil, correlationIds...),
		Callback:       cb,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := c.store.SaveWaitInstance(ctx, wait); err != nil {
		return "", err
	}
	logger.Debug("registered wait", zap.String("waitId", wait.Id), zap.Strings("correlationIds", wait.CorrelationIds))
	if err := c.tryComplete(ctx, wait); err != nil {
		return "", err
	}
	return wait.Id, nil
}

// Notify records the response for one correlation id and completes every wait
// that now has all of its responses.
func (c *Coordinator) Notify(ctx context.Context, response model.NotifyResponse) error {
	if len(response.CorrelationId) == 0 {
		return errors.New("notify needs a correlation id")
	}
	if len(response.Status) == 0 {
		response.Status = model.SUCCESS
	}
	if err := c.store.SaveResponse(ctx, &response); err != nil {
		return err
	}
	waitIds, err := c.store.GetWaiters(ctx, response.CorrelationId)
	if err != nil {
		return err
	}
	for _, waitId := range waitIds {
		wait, err := c.store.GetWaitInstance(ctx, waitId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return err
		}
		if err := c.tryComplete(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) tryComplete(ctx context.Context, wait *model.WaitInstance) error {
	responses, err := c.store.GetResponses(ctx, wait.CorrelationIds...)
	if err != nil {
		return err
	}
	if len(responses) < len(wait.CorrelationIds) {
		return nil
	}
	claimed, err := c.store.ClaimWaitInstance(ctx, wait)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	c.dispatch(wait, responses)
	return nil
}

func (c *Coordinator) dispatch(wait *model.WaitInstance, responses map[string]model.NotifyResponse) {
	fn, ok := c.callback(wait.Callback.Name)
	if !ok {
		logger.Error("no callback registered for wait", zap.String("waitId", wait.Id), zap.String("callback", wait.Callback.Name))
		return
	}
	logger.Info("wait completed", zap.String("waitId", wait.Id), zap.String("callback", wait.Callback.Name))
	c.worker.Submit(func() {
		if err := fn(context.Background(), wait.Callback.Params, responses); err != nil {
			logger.Error("error running wait callback", zap.String("waitId", wait.Id), zap.String("callback", wait.Callback.Name), zap.Error(err))
		}
	})
}

// Timeout fails correlationId if nothing was delivered for it within d.
func (c *Coordinator) Timeout(ctx context.Context, correlationId string, d time.Duration) error {
	return c.store.AddDeadline(ctx, correlationId, d)
}

// CheckDeadlines notifies a failure for every expired correlation id that has
// no response yet.
func (c *Coordinator) CheckDeadlines() {
	ctx := context.Background()
	ids, err := c.store.PollExpiredDeadlines(ctx)
	if err != nil {
		logger.Error("error polling expired deadlines", zap.Error(err))
		return
	}
	for _, id := range ids {
		responses, err := c.store.GetResponses(ctx, id)
		if err != nil {
			logger.Error("error reading responses", zap.String("correlationId", id), zap.Error(err))
			continue
		}
		if _, ok := responses[id]; ok {
			continue
		}
		logger.Warn("correlation id timed out", zap.String("correlationId", id))
		err = c.Notify(ctx, model.NotifyResponse{
			CorrelationId: id,
			Status:        model.FAILED,
			ErrorMsg:      TIMEOUT_ERROR_MSG,
		})
		if err != nil {
			logger.Error("error notifying timeout", zap.String("correlationId", id), zap.Error(err))
		}
	}
}

func (c *Coordinator) StartWatchdog(interval time.Duration, wg *sync.WaitGroup) {
	c.watchdog = util.NewTickWorker("wait-timeout-watchdog", interval, c.CheckDeadlines, wg)
	c.watchdog.Start()
}

func (c *Coordinator) Stop() error {
	if c.watchdog == nil {
		return nil
	}
	return c.watchdog.Stop()
}
