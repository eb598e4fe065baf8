package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mohitkumar/stepflow/model"
)

type Factory func(def model.StateDef) (State, error)

// Registry maps a state type tag to the factory building it. Definitions are
// turned into states once, when a state machine is built.
type Registry struct {
	mu        sync.RWMutex
	factories map[StateType]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[StateType]Factory),
	}
}

func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(NOOP_STATE, NewNoopState)
	r.mustRegister(FAIL_STATE, NewFailState)
	r.mustRegister(JAVASCRIPT_STATE, NewJavascriptState)
	r.mustRegister(CONDITION_STATE, NewConditionState)
	r.mustRegister(JSON_MAPPER_STATE, NewJsonMapperState)
	r.mustRegister(WAIT_STATE, NewWaitState)
	r.mustRegister(FORK_STATE, NewForkState)
	return r
}

func toStateType(t string) StateType {
	return StateType(strings.ToLower(strings.TrimSpace(t)))
}

func (r *Registry) Register(stateType StateType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := toStateType(string(stateType))
	if _, ok := r.factories[st]; ok {
		return fmt.Errorf("state type %s already registered", st)
	}
	r.factories[st] = factory
	return nil
}

func (r *Registry) mustRegister(stateType StateType, factory Factory) {
	if err := r.Register(stateType, factory); err != nil {
		panic(err)
	}
}

func (r *Registry) New(def model.StateDef) (State, error) {
	r.mu.RLock()
	factory, ok := r.factories[toStateType(def.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("state %s has unknown type %q", def.Name, def.Type)
	}
	s, err := factory(def)
	if err != nil {
		return nil, fmt.Errorf("error building state %s: %w", def.Name, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) Types() []StateType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]StateType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}
