package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohitkumar/stepflow/config"
	"github.com/mohitkumar/stepflow/model"
	"github.com/stretchr/testify/require"
)

const definition = `
uuid: hello
appId: app
initialStateName: greet
states:
  - name: greet
    type: jsonmapper
    params:
      output:
        greeting: "hello {$.context.user.name}"
`

func testConfig(t *testing.T) config.Config {
	file := filepath.Join(t.TempDir(), "hello.yaml")
	require.NoError(t, os.WriteFile(file, []byte(definition), 0644))
	conf := config.Default()
	conf.StorageType = config.STORAGE_TYPE_INMEM
	conf.HttpPort = 0
	conf.ExecutorWorkers = 2
	conf.ExecutorCapacity = 16
	conf.MaintenancePoll = 50 * time.Millisecond
	conf.WaitTimeoutPoll = 50 * time.Millisecond
	conf.DefinitionFiles = []string{file}
	return conf
}

func TestAgentLifecycle(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	require.Empty(t, a.consumers)
	require.NoError(t, a.Start())

	ctx := context.Background()
	inst, err := a.executor.ExecuteByID(ctx, model.ExecutionRequest{
		AppId:           "app",
		StateMachineId:  "hello",
		ContextElements: []model.ContextElement{{Name: "user", Type: "USER", Value: map[string]any{"name": "ada"}}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := a.executor.GetInstance(ctx, "app", inst.Uuid)
		return err == nil && got.Status == model.SUCCESS
	}, 2*time.Second, 10*time.Millisecond)
	got, err := a.executor.GetInstance(ctx, "app", inst.Uuid)
	require.NoError(t, err)
	require.Equal(t, "hello ada", got.StateExecutionMap["greet"].Data["greeting"])

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
	select {
	case <-a.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestAgentRejectsBadDefinition(t *testing.T) {
	conf := testConfig(t)
	conf.DefinitionFiles = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := New(conf)
	require.Error(t, err)
}
