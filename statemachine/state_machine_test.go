package statemachine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/state"
	"github.com/stretchr/testify/require"
)

func chainDef() model.StateMachine {
	return model.StateMachine{
		Uuid:             "sm-1",
		AppId:            "app",
		Name:             "chain",
		InitialStateName: "A",
		States: []model.StateDef{
			{Name: "A", Type: "noop"},
			{Name: "B", Type: "noop"},
			{Name: "C", Type: "noop"},
			{Name: "F", Type: "noop"},
		},
		SuccessTransitions: map[string]string{"A": "B", "B": "C"},
		FailureTransitions: map[string]string{"A": "F"},
	}
}

func TestNew(t *testing.T) {
	sm, err := New(chainDef(), state.DefaultRegistry())
	require.NoError(t, err)
	require.Equal(t, "sm-1", sm.Id())
	require.Equal(t, "app", sm.AppId())
	require.Equal(t, "chain", sm.Name())
	require.Equal(t, "A", sm.InitialStateName())

	next, ok := sm.SuccessTransition("A")
	require.True(t, ok)
	require.Equal(t, "B", next.Name())
	_, ok = sm.SuccessTransition("C")
	require.False(t, ok)
	next, ok = sm.FailureTransition("A")
	require.True(t, ok)
	require.Equal(t, "F", next.Name())
	_, ok = sm.FailureTransition("B")
	require.False(t, ok)
	_, ok = sm.State("X")
	require.False(t, ok)
	require.Equal(t, chainDef().Name, sm.Definition().Name)
}

func TestNewInvalid(t *testing.T) {
	for scenario, mutate := range map[string]func(def *model.StateMachine){
		"no states": func(def *model.StateMachine) {
			def.States = nil
		},
		"unknown initial state": func(def *model.StateMachine) {
			def.InitialStateName = "X"
		},
		"duplicate state": func(def *model.StateMachine) {
			def.States = append(def.States, model.StateDef{Name: "A", Type: "noop"})
		},
		"unknown state type": func(def *model.StateMachine) {
			def.States[1].Type = "teleport"
		},
		"success transition to undefined state": func(def *model.StateMachine) {
			def.SuccessTransitions["C"] = "X"
		},
		"failure transition from undefined state": func(def *model.StateMachine) {
			def.FailureTransitions["X"] = "A"
		},
		"fork to undefined branch": func(def *model.StateMachine) {
			def.States = append(def.States, model.StateDef{Name: "fork", Type: "fork", Params: map[string]any{"branches": []any{"Z"}}})
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			def := chainDef()
			mutate(&def)
			_, err := New(def, state.DefaultRegistry())
			require.Error(t, err)
		})
	}
}

const yamlDef = `
appId: app
name: deploy
initialStateName: mapper
states:
  - name: mapper
    type: jsonmapper
    params:
      output:
        replicas: 3
        env: "{$.context.env.name}"
  - name: approval
    type: wait
    skipType: SKIP_NODE
    params:
      timeoutSeconds: 60
  - name: done
    type: noop
successTransitions:
  mapper: approval
  approval: done
`

func TestLoadDefinition(t *testing.T) {
	file := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yamlDef), 0644))

	def, err := LoadDefinition(file)
	require.NoError(t, err)
	require.Equal(t, "deploy", def.Name)
	require.Len(t, def.States, 3)
	require.Equal(t, "SKIP_NODE", def.States[1].SkipType)
	output := def.States[0].Params["output"].(map[string]any)
	require.Equal(t, float64(3), output["replicas"])

	sm, err := New(*def, state.DefaultRegistry())
	require.NoError(t, err)
	s, ok := sm.SuccessTransition("mapper")
	require.True(t, ok)
	require.Equal(t, state.WAIT_STATE, s.Type())

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = ParseDefinition([]byte("states: [unclosed"))
	require.Error(t, err)
}
