package state

import (
	"fmt"
	"strconv"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/util"
)

var _ State = new(conditionState)

// conditionState succeeds when the jsonpath expression resolves to Equals and
// fails otherwise, routing through the success or failure transition.
type conditionState struct {
	baseState
	Expression string `json:"expression"`
	Equals     string `json:"equals"`
}

func NewConditionState(def model.StateDef) (State, error) {
	s := &conditionState{baseState: newBaseState(def, CONDITION_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *conditionState) Validate() error {
	if err := s.baseState.Validate(); err != nil {
		return err
	}
	if len(s.Expression) == 0 {
		return fmt.Errorf("state %s: expression can not be empty", s.name)
	}
	return nil
}

func (s *conditionState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	value, err := util.Lookup(ctx.Data(), s.Expression)
	if err != nil {
		return model.FailedResponse(fmt.Sprintf("expression %s: %v", s.Expression, err), nil), nil
	}
	actual := toString(value)
	data := map[string]any{"value": actual}
	if actual != s.Equals {
		return model.FailedResponse(fmt.Sprintf("expression %s is %q, expected %q", s.Expression, actual, s.Equals), data), nil
	}
	return model.SuccessResponse(data), nil
}

func toString(value any) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
