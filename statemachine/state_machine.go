package statemachine

import (
	"fmt"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/state"
)

// StateMachine is the immutable runtime form of a definition. Every state is
// built and validated up front; lookups never fail for names that appear in a
// transition.
type StateMachine struct {
	def                model.StateMachine
	states             map[string]state.State
	successTransitions map[string]string
	failureTransitions map[string]string
}

type brancher interface {
	BranchNames() []string
}

func New(def model.StateMachine, registry *state.Registry) (*StateMachine, error) {
	if len(def.States) == 0 {
		return nil, fmt.Errorf("state machine %s has no states", def.Name)
	}
	sm := &StateMachine{
		def:                def,
		states:             make(map[string]state.State, len(def.States)),
		successTransitions: make(map[string]string, len(def.SuccessTransitions)),
		failureTransitions: make(map[string]string, len(def.FailureTransitions)),
	}
	for _, sd := range def.States {
		if _, ok := sm.states[sd.Name]; ok {
			return nil, fmt.Errorf("state %s is duplicate", sd.Name)
		}
		s, err := registry.New(sd)
		if err != nil {
			return nil, err
		}
		sm.states[sd.Name] = s
	}
	if _, ok := sm.states[def.InitialStateName]; !ok {
		return nil, fmt.Errorf("initial state %q is not defined", def.InitialStateName)
	}
	if err := sm.copyTransitions(def.SuccessTransitions, sm.successTransitions, "success"); err != nil {
		return nil, err
	}
	if err := sm.copyTransitions(def.FailureTransitions, sm.failureTransitions, "failure"); err != nil {
		return nil, err
	}
	for name, s := range sm.states {
		b, ok := s.(brancher)
		if !ok {
			continue
		}
		for _, branch := range b.BranchNames() {
			if _, ok := sm.states[branch]; !ok {
				return nil, fmt.Errorf("state %s branches to undefined state %s", name, branch)
			}
		}
	}
	return sm, nil
}

func (sm *StateMachine) copyTransitions(src map[string]string, dst map[string]string, kind string) error {
	for from, to := range src {
		if _, ok := sm.states[from]; !ok {
			return fmt.Errorf("%s transition from undefined state %s", kind, from)
		}
		if _, ok := sm.states[to]; !ok {
			return fmt.Errorf("%s transition from %s to undefined state %s", kind, from, to)
		}
		dst[from] = to
	}
	return nil
}

func (sm *StateMachine) Id() string {
	return sm.def.Uuid
}

func (sm *StateMachine) AppId() string {
	return sm.def.AppId
}

func (sm *StateMachine) Name() string {
	return sm.def.Name
}

func (sm *StateMachine) InitialStateName() string {
	return sm.def.InitialStateName
}

func (sm *StateMachine) State(name string) (state.State, bool) {
	s, ok := sm.states[name]
	return s, ok
}

func (sm *StateMachine) SuccessTransition(name string) (state.State, bool) {
	return sm.transition(sm.successTransitions, name)
}

func (sm *StateMachine) FailureTransition(name string) (state.State, bool) {
	return sm.transition(sm.failureTransitions, name)
}

func (sm *StateMachine) transition(transitions map[string]string, name string) (state.State, bool) {
	next, ok := transitions[name]
	if !ok {
		return nil, false
	}
	return sm.State(next)
}

// Definition returns the definition the machine was built from.
func (sm *StateMachine) Definition() model.StateMachine {
	return sm.def
}
