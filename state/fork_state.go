package state

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/model"
)

var _ State = new(forkState)

// forkState spawns one child instance per branch and waits for all of them.
// Each child notifies on its own id when its chain ends.
type forkState struct {
	baseState
	Branches []string `json:"branches"`
}

func NewForkState(def model.StateDef) (State, error) {
	s := &forkState{baseState: newBaseState(def, FORK_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *forkState) Validate() error {
	if err := s.baseState.Validate(); err != nil {
		return err
	}
	if len(s.Branches) == 0 {
		return fmt.Errorf("state %s: fork needs at least one branch", s.name)
	}
	return nil
}

func (s *forkState) BranchNames() []string {
	return s.Branches
}

func (s *forkState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	children := make([]*model.StateExecutionInstance, 0, len(s.Branches))
	notifyIds := make([]string, 0, len(s.Branches))
	for _, branch := range s.Branches {
		notifyId := uuid.New().String()
		notifyIds = append(notifyIds, notifyId)
		children = append(children, &model.StateExecutionInstance{
			StateName:        branch,
			ContextElements:  ctx.ContextElements().Copy(),
			NotifyId:         notifyId,
			ParentInstanceId: ctx.InstanceId(),
			Status:           model.NEW,
		})
	}
	return model.AsyncResponse(notifyIds...).WithSpawn(children...), nil
}

func (s *forkState) HandleAsyncResponse(ctx Context, responses map[string]model.NotifyResponse) (*model.ExecutionResponse, error) {
	return aggregate(responses), nil
}
