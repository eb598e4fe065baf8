package state

import (
	"testing"
	"time"

	"github.com/mohitkumar/stepflow/model"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	instanceId string
	elements   model.ContextStack
	data       map[string]any
	timeouts   map[string]time.Duration
}

func newTestContext(data map[string]any) *testContext {
	return &testContext{
		instanceId: "inst-1",
		data:       data,
		timeouts:   map[string]time.Duration{},
	}
}

func (c *testContext) AppId() string                       { return "app" }
func (c *testContext) ExecutionUuid() string               { return "exec" }
func (c *testContext) InstanceId() string                  { return c.instanceId }
func (c *testContext) StateName() string                   { return "current" }
func (c *testContext) ContextElements() model.ContextStack { return c.elements }
func (c *testContext) Data() map[string]any                { return c.data }

func (c *testContext) PushContextElement(e model.ContextElement) {
	c.elements.Push(e)
}

func (c *testContext) ScheduleTimeout(correlationId string, d time.Duration) error {
	c.timeouts[correlationId] = d
	return nil
}

func testData() map[string]any {
	return map[string]any{
		"context": map[string]any{
			"env": map[string]any{"name": "qa", "replicas": float64(2), "enabled": true},
		},
		"states": map[string]any{},
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.Contains(t, r.Types(), WAIT_STATE)
	require.Error(t, r.Register(NOOP_STATE, NewNoopState))
	require.Error(t, r.Register("NoOp", NewNoopState))

	s, err := r.New(model.StateDef{Name: "a", Type: "NOOP"})
	require.NoError(t, err)
	require.Equal(t, NOOP_STATE, s.Type())
	require.Equal(t, "a", s.Name())

	_, err = r.New(model.StateDef{Name: "a", Type: "unknown"})
	require.Error(t, err)

	_, err = r.New(model.StateDef{Name: "", Type: "noop"})
	require.Error(t, err)

	_, err = r.New(model.StateDef{Name: "js", Type: "javascript", Params: map[string]any{"script": "var x = ;"}})
	require.Error(t, err)

	_, err = r.New(model.StateDef{Name: "fork", Type: "fork"})
	require.Error(t, err)

	require.NoError(t, r.Register("custom", NewNoopState))
	_, err = r.New(model.StateDef{Name: "c", Type: "custom", SkipType: "SKIP_NODE"})
	require.NoError(t, err)
}

func TestStates(t *testing.T) {
	r := DefaultRegistry()
	for scenario, tc := range map[string]struct {
		def    model.StateDef
		status model.ExecutionStatus
		data   map[string]any
	}{
		"noop succeeds": {
			def:    model.StateDef{Name: "n", Type: "noop"},
			status: model.SUCCESS,
		},
		"fail fails": {
			def:    model.StateDef{Name: "f", Type: "fail", Params: map[string]any{"message": "nope"}},
			status: model.FAILED,
		},
		"condition matches": {
			def:    model.StateDef{Name: "c", Type: "condition", Params: map[string]any{"expression": "{$.context.env.name}", "equals": "qa"}},
			status: model.SUCCESS,
			data:   map[string]any{"value": "qa"},
		},
		"condition on number": {
			def:    model.StateDef{Name: "c", Type: "condition", Params: map[string]any{"expression": "$.context.env.replicas", "equals": 2}},
			status: model.SUCCESS,
			data:   map[string]any{"value": "2"},
		},
		"condition mismatch": {
			def:    model.StateDef{Name: "c", Type: "condition", Params: map[string]any{"expression": "$.context.env.enabled", "equals": "false"}},
			status: model.FAILED,
			data:   map[string]any{"value": "true"},
		},
		"condition missing path": {
			def:    model.StateDef{Name: "c", Type: "condition", Params: map[string]any{"expression": "$.context.missing.x", "equals": "x"}},
			status: model.FAILED,
		},
		"jsonmapper resolves": {
			def: model.StateDef{Name: "m", Type: "jsonmapper", Params: map[string]any{
				"output": map[string]any{"target": "{$.context.env.name}", "count": "{$.context.env.replicas}"},
			}},
			status: model.SUCCESS,
			data:   map[string]any{"target": "qa", "count": float64(2)},
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			s, err := r.New(tc.def)
			require.NoError(t, err)
			resp, err := s.Execute(newTestContext(testData()))
			require.NoError(t, err)
			require.False(t, resp.Async)
			require.Equal(t, tc.status, resp.Status)
			if tc.data != nil {
				require.Equal(t, tc.data, resp.StateExecutionData.Data)
			}
		})
	}
}

func TestJavascriptState(t *testing.T) {
	r := DefaultRegistry()
	s, err := r.New(model.StateDef{Name: "js", Type: "javascript", Params: map[string]any{
		"script": "$.result = $.context.env.replicas * 2; $.context.env.name == 'qa'",
	}})
	require.NoError(t, err)
	resp, err := s.Execute(newTestContext(testData()))
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, resp.Status)
	require.Equal(t, float64(4), resp.StateExecutionData.Data["result"])

	s, err = r.New(model.StateDef{Name: "js", Type: "javascript", Params: map[string]any{"script": "$.context.env.name == 'prod'"}})
	require.NoError(t, err)
	resp, err = s.Execute(newTestContext(testData()))
	require.NoError(t, err)
	require.Equal(t, model.FAILED, resp.Status)

	s, err = r.New(model.StateDef{Name: "js", Type: "javascript", Params: map[string]any{"script": "var x = 1;"}})
	require.NoError(t, err)
	resp, err = s.Execute(newTestContext(testData()))
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, resp.Status)

	s, err = r.New(model.StateDef{Name: "js", Type: "javascript", Params: map[string]any{"script": "throw new Error('bad')"}})
	require.NoError(t, err)
	_, err = s.Execute(newTestContext(testData()))
	require.Error(t, err)
}

func TestJsonMapperPublishesContext(t *testing.T) {
	s, err := DefaultRegistry().New(model.StateDef{Name: "m", Type: "jsonmapper", Params: map[string]any{
		"output":    map[string]any{"env": "{$.context.env.name}"},
		"publishAs": "target",
	}})
	require.NoError(t, err)
	ctx := newTestContext(testData())
	_, err = s.Execute(ctx)
	require.NoError(t, err)
	e, ok := ctx.elements.PeekByName("target")
	require.True(t, ok)
	require.Equal(t, "qa", e.Value["env"])
}

func TestWaitState(t *testing.T) {
	r := DefaultRegistry()
	s, err := r.New(model.StateDef{Name: "w", Type: "wait", Params: map[string]any{
		"correlationIds": []any{"approval-{$.context.env.name}", "fixed"},
		"timeoutSeconds": "30",
	}})
	require.NoError(t, err)
	ctx := newTestContext(testData())
	resp, err := s.Execute(ctx)
	require.NoError(t, err)
	require.True(t, resp.Async)
	require.Equal(t, []string{"approval-qa", "fixed"}, resp.CorrelationIds)
	require.Equal(t, 30*time.Second, ctx.timeouts["approval-qa"])
	require.Equal(t, 30*time.Second, ctx.timeouts["fixed"])

	resp, err = s.HandleAsyncResponse(ctx, map[string]model.NotifyResponse{
		"approval-qa": {CorrelationId: "approval-qa", Status: model.SUCCESS},
		"fixed":       {CorrelationId: "fixed", Status: model.SUCCESS, Data: map[string]any{"by": "ops"}},
	})
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, resp.Status)

	resp, err = s.HandleAsyncResponse(ctx, map[string]model.NotifyResponse{
		"approval-qa": {CorrelationId: "approval-qa", Status: model.FAILED, ErrorMsg: "timed out"},
		"fixed":       {CorrelationId: "fixed", Status: model.SUCCESS},
	})
	require.NoError(t, err)
	require.Equal(t, model.FAILED, resp.Status)

	s, err = r.New(model.StateDef{Name: "w", Type: "wait"})
	require.NoError(t, err)
	resp, err = s.Execute(newTestContext(testData()))
	require.NoError(t, err)
	require.Len(t, resp.CorrelationIds, 1)
}

func TestForkState(t *testing.T) {
	s, err := DefaultRegistry().New(model.StateDef{Name: "f", Type: "fork", Params: map[string]any{"branches": []any{"b1", "b2"}}})
	require.NoError(t, err)
	ctx := newTestContext(testData())
	ctx.elements.Push(model.ContextElement{Name: "env", Type: "ENV"})

	resp, err := s.Execute(ctx)
	require.NoError(t, err)
	require.True(t, resp.Async)
	require.Len(t, resp.SpawnInstances, 2)
	require.Len(t, resp.CorrelationIds, 2)
	for i, child := range resp.SpawnInstances {
		require.Equal(t, resp.CorrelationIds[i], child.NotifyId)
		require.Equal(t, "inst-1", child.ParentInstanceId)
		require.Equal(t, 1, child.ContextElements.Len())
	}
	require.Equal(t, "b1", resp.SpawnInstances[0].StateName)
	require.Equal(t, "b2", resp.SpawnInstances[1].StateName)
}
