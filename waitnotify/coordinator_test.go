package waitnotify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence/memory"
	"github.com/mohitkumar/stepflow/util"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	calls     atomic.Int32
	params    map[string]string
	responses map[string]model.NotifyResponse
}

func (r *recorder) callback(ctx context.Context, params map[string]string, responses map[string]model.NotifyResponse) error {
	r.mu.Lock()
	r.params = params
	r.responses = responses
	r.mu.Unlock()
	r.calls.Add(1)
	return nil
}

func (r *recorder) lastResponses() map[string]model.NotifyResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responses
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recorder) {
	var wg sync.WaitGroup
	worker := util.NewWorker("test-coordinator", &wg, util.RunFunc, 2, 16)
	worker.Start()
	c := NewCoordinator(memory.NewInMemoryWaitNotifyStore(), worker)
	rec := &recorder{}
	c.RegisterCallback("record", rec.callback)
	t.Cleanup(func() {
		_ = c.Stop()
		_ = worker.Stop()
		wg.Wait()
	})
	return c, rec
}

func TestCoordinator(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, c *Coordinator, rec *recorder){
		"fires once after last notify":       testFiresAfterLast,
		"notify before wait":                 testNotifyBeforeWait,
		"duplicate notify fires once":        testDuplicateNotify,
		"independent waits on shared id":     testSharedId,
		"validation":                         testValidation,
		"expired deadline fails the id":      testDeadline,
		"deadline after response is ignored": testDeadlineAfterResponse,
		"reused id needs a new notify":       testReusedId,
	} {
		t.Run(scenario, func(t *testing.T) {
			c, rec := newTestCoordinator(t)
			fn(t, c, rec)
		})
	}
}

func testFiresAfterLast(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record", Params: map[string]string{"instanceId": "i1"}}, "c1", "c2")
	require.NoError(t, err)

	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "c1", Status: model.SUCCESS}))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), rec.calls.Load())

	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "c2", Data: map[string]any{"k": "v"}}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	responses := rec.lastResponses()
	require.Len(t, responses, 2)
	require.Equal(t, model.SUCCESS, responses["c2"].Status)
	require.Equal(t, "v", responses["c2"].Data["k"])
	require.Equal(t, "i1", rec.params["instanceId"])
}

func testNotifyBeforeWait(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "early", Status: model.SUCCESS}))
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "early")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func testDuplicateNotify(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "d1")
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Notify(ctx, model.NotifyResponse{CorrelationId: "d1", Status: model.SUCCESS})
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), rec.calls.Load())
}

func testSharedId(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "s1")
	require.NoError(t, err)
	_, err = c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "s1", "s2")
	require.NoError(t, err)

	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "s1"}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "s2"}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func testValidation(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"})
	require.Error(t, err)
	_, err = c.WaitForAll(ctx, model.CallbackRef{Name: "unknown"}, "x")
	require.Error(t, err)
	require.Error(t, c.Notify(ctx, model.NotifyResponse{}))
}

func testDeadline(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "slow")
	require.NoError(t, err)
	require.NoError(t, c.Timeout(ctx, "slow", 10*time.Millisecond))

	var wg sync.WaitGroup
	c.StartWatchdog(10*time.Millisecond, &wg)
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	resp := rec.lastResponses()["slow"]
	require.Equal(t, model.FAILED, resp.Status)
	require.Equal(t, TIMEOUT_ERROR_MSG, resp.ErrorMsg)
	require.NoError(t, c.Stop())
	wg.Wait()
}

func testDeadlineAfterResponse(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "fast", "other")
	require.NoError(t, err)
	require.NoError(t, c.Timeout(ctx, "fast", time.Millisecond))
	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "fast", Status: model.SUCCESS}))
	time.Sleep(5 * time.Millisecond)

	c.CheckDeadlines()
	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "other", Status: model.SUCCESS}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, model.SUCCESS, rec.lastResponses()["fast"].Status)
}

func testReusedId(t *testing.T, c *Coordinator, rec *recorder) {
	ctx := context.Background()
	_, err := c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "r1")
	require.NoError(t, err)
	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "r1", Status: model.FAILED}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = c.WaitForAll(ctx, model.CallbackRef{Name: "record"}, "r1")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), rec.calls.Load())

	require.NoError(t, c.Notify(ctx, model.NotifyResponse{CorrelationId: "r1", Status: model.SUCCESS}))
	require.Eventually(t, func() bool {
		return rec.calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, model.SUCCESS, rec.lastResponses()["r1"].Status)
}
