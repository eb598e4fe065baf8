package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/util"
)

var _ State = new(waitState)

// waitState suspends the instance until every correlation id is notified.
// Ids may be {$.path} expressions; without ids one is generated.
type waitState struct {
	baseState
	CorrelationIds []string `json:"correlationIds"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
}

func NewWaitState(def model.StateDef) (State, error) {
	s := &waitState{baseState: newBaseState(def, WAIT_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *waitState) Validate() error {
	if err := s.baseState.Validate(); err != nil {
		return err
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("state %s: timeoutSeconds can not be negative", s.name)
	}
	return nil
}

func (s *waitState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	ids := make([]string, 0, len(s.CorrelationIds))
	if len(s.CorrelationIds) > 0 {
		data := ctx.Data()
		for _, id := range s.CorrelationIds {
			resolved := util.ResolveParams(data, map[string]any{"id": id})["id"]
			ids = util.AppendUnique(ids, fmt.Sprintf("%v", resolved))
		}
	} else {
		ids = append(ids, uuid.New().String())
	}
	if s.TimeoutSeconds > 0 {
		for _, id := range ids {
			if err := ctx.ScheduleTimeout(id, time.Duration(s.TimeoutSeconds)*time.Second); err != nil {
				return nil, err
			}
		}
	}
	return model.AsyncResponse(ids...), nil
}

func (s *waitState) HandleAsyncResponse(ctx Context, responses map[string]model.NotifyResponse) (*model.ExecutionResponse, error) {
	return aggregate(responses), nil
}

// aggregate succeeds only when every response succeeded.
func aggregate(responses map[string]model.NotifyResponse) *model.ExecutionResponse {
	data := make(map[string]any, len(responses))
	var failed []string
	for id, resp := range responses {
		entry := map[string]any{"status": string(resp.Status)}
		if resp.Data != nil {
			entry["data"] = resp.Data
		}
		if len(resp.ErrorMsg) > 0 {
			entry["errorMsg"] = resp.ErrorMsg
		}
		data[id] = entry
		if resp.Status != model.SUCCESS {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return model.FailedResponse(fmt.Sprintf("%d of %d responses did not succeed", len(failed), len(responses)), data)
	}
	return model.SuccessResponse(data)
}
