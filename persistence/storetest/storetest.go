// Package storetest holds behaviour checks shared by every persistence
// implementation.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/stretchr/testify/require"
)

func newInstance(executionUuid string, stateName string) *model.StateExecutionInstance {
	return &model.StateExecutionInstance{
		AppId:          "app",
		ExecutionUuid:  executionUuid,
		StateMachineId: "sm",
		StateName:      stateName,
		StateType:      "noop",
		NotifyId:       "notify-1",
		Callback:       &model.CallbackRef{Name: "cb", Params: map[string]string{"k": "v"}},
		ContextElements: model.ContextStack{
			{Name: "env", Type: "ENV", Value: map[string]any{"name": "qa"}},
		},
	}
}

func TestExecutionStore(t *testing.T, store persistence.ExecutionStore) {
	for scenario, fn := range map[string]func(t *testing.T, store persistence.ExecutionStore){
		"save and get":                testSaveAndGet,
		"partial update":              testPartialUpdate,
		"list keeps creation order":   testListByExecution,
		"claim resume once":           testClaimResume,
		"get unknown":                 testGetUnknown,
		"concurrent claims, one wins": testConcurrentClaim,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, store)
		})
	}
}

func testSaveAndGet(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	saved, err := store.SaveAndGet(ctx, newInstance("exec-save", "A"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.Uuid)
	require.NotZero(t, saved.CreatedAt)
	require.Equal(t, model.NEW, saved.Status)

	got, err := store.Get(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.Equal(t, saved.Uuid, got.Uuid)
	require.Equal(t, "exec-save", got.ExecutionUuid)
	require.Equal(t, "A", got.StateName)
	require.Equal(t, "noop", got.StateType)
	require.Equal(t, "notify-1", got.NotifyId)
	require.Equal(t, "cb", got.Callback.Name)
	require.Equal(t, "v", got.Callback.Params["k"])
	require.Equal(t, "qa", got.ContextElements[0].Value["name"])
}

func testPartialUpdate(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	saved, err := store.SaveAndGet(ctx, newInstance("exec-update", "A"))
	require.NoError(t, err)

	saved.Status = model.RUNNING
	saved.StartTs = 100
	saved.ErrorMsg = "not written"
	require.NoError(t, store.Update(ctx, saved, persistence.UpdateOps{persistence.FIELD_STATUS, persistence.FIELD_START_TS}))

	got, err := store.Get(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.Equal(t, model.RUNNING, got.Status)
	require.Equal(t, int64(100), got.StartTs)
	require.Empty(t, got.ErrorMsg)

	saved.PutStateExecutionData(model.StateExecutionData{StateName: "A", Status: model.SUCCESS, Data: map[string]any{"out": "x"}})
	saved.ContextElements.Push(model.ContextElement{Name: "extra", Type: "X"})
	saved.Suspended = true
	require.NoError(t, store.Update(ctx, saved, persistence.UpdateOps{
		persistence.FIELD_STATE_EXECUTION_MAP,
		persistence.FIELD_CONTEXT_ELEMENTS,
		persistence.FIELD_SUSPENDED,
		persistence.FIELD_ERROR_MSG,
		persistence.FIELD_END_TS,
	}))
	got, err = store.Get(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, got.StateExecutionMap["A"].Status)
	require.Equal(t, "x", got.StateExecutionMap["A"].Data["out"])
	require.Equal(t, 2, got.ContextElements.Len())
	require.True(t, got.Suspended)
	require.Equal(t, "not written", got.ErrorMsg)

	require.NoError(t, store.Update(ctx, saved, nil))
}

func testListByExecution(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	names := []string{"A", "B", "C", "D"}
	for _, name := range names {
		_, err := store.SaveAndGet(ctx, newInstance("exec-list", name))
		require.NoError(t, err)
	}
	_, err := store.SaveAndGet(ctx, newInstance("exec-other", "Z"))
	require.NoError(t, err)

	list, err := store.ListByExecution(ctx, "app", "exec-list")
	require.NoError(t, err)
	require.Len(t, list, len(names))
	for i, inst := range list {
		require.Equal(t, names[i], inst.StateName)
	}

	list, err = store.ListByExecution(ctx, "app", "exec-none")
	require.NoError(t, err)
	require.Empty(t, list)
}

func testClaimResume(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	saved, err := store.SaveAndGet(ctx, newInstance("exec-claim", "A"))
	require.NoError(t, err)

	ok, err := store.ClaimResume(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.False(t, ok)

	saved.Suspended = true
	require.NoError(t, store.Update(ctx, saved, persistence.UpdateOps{persistence.FIELD_SUSPENDED}))
	ok, err = store.ClaimResume(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.ClaimResume(ctx, "app", saved.Uuid)
	require.NoError(t, err)
	require.False(t, ok)
}

func testConcurrentClaim(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	inst := newInstance("exec-concurrent", "A")
	inst.Suspended = true
	saved, err := store.SaveAndGet(ctx, inst)
	require.NoError(t, err)
	require.True(t, saved.Suspended)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimResume(ctx, "app", saved.Uuid)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func testGetUnknown(t *testing.T, store persistence.ExecutionStore) {
	ctx := context.Background()
	_, err := store.Get(ctx, "app", "missing")
	require.True(t, errors.Is(err, persistence.ErrNotFound))

	ghost := &model.StateExecutionInstance{Uuid: "missing", AppId: "app", Status: model.RUNNING, StartTs: 5}
	err = store.Update(ctx, ghost, persistence.UpdateOps{persistence.FIELD_STATUS, persistence.FIELD_START_TS})
	require.True(t, errors.Is(err, persistence.ErrNotFound))
	_, err = store.Get(ctx, "app", "missing")
	require.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestStateMachineStore(t *testing.T, store persistence.StateMachineStore) {
	ctx := context.Background()
	sm := &model.StateMachine{
		AppId:            "app",
		Name:             "deploy",
		InitialStateName: "A",
		States:           []model.StateDef{{Name: "A", Type: "noop", Params: map[string]any{"k": "v"}}},
	}
	require.NoError(t, store.Save(ctx, sm))
	require.NotEmpty(t, sm.Uuid)

	got, err := store.Get(ctx, "app", sm.Uuid)
	require.NoError(t, err)
	require.Equal(t, "deploy", got.Name)
	require.Equal(t, "v", got.States[0].Params["k"])

	require.NoError(t, store.Delete(ctx, "app", sm.Uuid))
	_, err = store.Get(ctx, "app", sm.Uuid)
	require.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestWaitNotifyStore(t *testing.T, store persistence.WaitNotifyStore) {
	ctx := context.Background()
	wait := &model.WaitInstance{
		Id:             "wait-1",
		CorrelationIds: []string{"c1", "c2"},
		Callback:       model.CallbackRef{Name: "resume", Params: map[string]string{"instanceId": "i1"}},
		CreatedAt:      time.Now().UnixMilli(),
	}
	require.NoError(t, store.SaveWaitInstance(ctx, wait))

	got, err := store.GetWaitInstance(ctx, "wait-1")
	require.NoError(t, err)
	require.Equal(t, wait.CorrelationIds, got.CorrelationIds)
	require.Equal(t, "i1", got.Callback.Params["instanceId"])

	waiters, err := store.GetWaiters(ctx, "c2")
	require.NoError(t, err)
	require.Equal(t, []string{"wait-1"}, waiters)

	require.NoError(t, store.SaveResponse(ctx, &model.NotifyResponse{CorrelationId: "c1", Status: model.SUCCESS, Data: map[string]any{"a": "b"}}))
	responses, err := store.GetResponses(ctx, "c1", "c2")
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Equal(t, model.SUCCESS, responses["c1"].Status)
	require.Equal(t, "b", responses["c1"].Data["a"])

	claimed, err := store.ClaimWaitInstance(ctx, got)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = store.ClaimWaitInstance(ctx, got)
	require.NoError(t, err)
	require.False(t, claimed)

	_, err = store.GetWaitInstance(ctx, "wait-1")
	require.True(t, errors.Is(err, persistence.ErrNotFound))
	waiters, err = store.GetWaiters(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, waiters)

	require.NoError(t, store.AddDeadline(ctx, "late", time.Hour))
	require.NoError(t, store.AddDeadline(ctx, "due-1", -time.Second))
	require.NoError(t, store.AddDeadline(ctx, "due-2", -time.Second))
	expired, err := store.PollExpiredDeadlines(ctx)
	require.NoError(t, err)
	sort.Strings(expired)
	require.Equal(t, []string{"due-1", "due-2"}, expired)
	expired, err = store.PollExpiredDeadlines(ctx)
	require.NoError(t, err)
	require.Empty(t, expired)
}

// TestResponseConsumption checks that a claimed wait takes its responses and
// deadlines along unless another wait still refers to them, and that a
// response nobody waits on expires. expire must move the store past its
// response ttl.
func TestResponseConsumption(t *testing.T, store persistence.WaitNotifyStore, expire func()) {
	ctx := context.Background()
	save := func(id string) {
		require.NoError(t, store.SaveResponse(ctx, &model.NotifyResponse{CorrelationId: id, Status: model.SUCCESS}))
	}
	responses := func(ids ...string) map[string]model.NotifyResponse {
		out, err := store.GetResponses(ctx, ids...)
		require.NoError(t, err)
		return out
	}
	claim := func(wait *model.WaitInstance) {
		claimed, err := store.ClaimWaitInstance(ctx, wait)
		require.NoError(t, err)
		require.True(t, claimed)
	}

	save("early")
	save("kept")
	kept := &model.WaitInstance{Id: "w-kept", CorrelationIds: []string{"kept"}}
	require.NoError(t, store.SaveWaitInstance(ctx, kept))
	expire()
	require.Empty(t, responses("early"))
	require.Contains(t, responses("kept"), "kept")

	claim(kept)
	require.Empty(t, responses("kept"))

	single := &model.WaitInstance{Id: "w-single", CorrelationIds: []string{"shared"}}
	both := &model.WaitInstance{Id: "w-both", CorrelationIds: []string{"shared", "other"}}
	require.NoError(t, store.SaveWaitInstance(ctx, single))
	require.NoError(t, store.SaveWaitInstance(ctx, both))
	save("shared")
	claim(single)
	require.Contains(t, responses("shared"), "shared")

	save("other")
	require.NoError(t, store.AddDeadline(ctx, "other", -time.Second))
	claim(both)
	require.Empty(t, responses("shared", "other"))
	expired, err := store.PollExpiredDeadlines(ctx)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestMaintenanceStore(t *testing.T, store persistence.MaintenanceStore) {
	ctx := context.Background()
	on, err := store.GetMaintenance(ctx)
	require.NoError(t, err)
	require.False(t, on)
	require.NoError(t, store.SetMaintenance(ctx, true))
	on, err = store.GetMaintenance(ctx)
	require.NoError(t, err)
	require.True(t, on)
	require.NoError(t, store.SetMaintenance(ctx, false))
	on, err = store.GetMaintenance(ctx)
	require.NoError(t, err)
	require.False(t, on)
}
