package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const SEQ_KEY string = "SEQ"

var claimResumeScript = rd.NewScript(`
if redis.call('HGET', KEYS[1], 'suspended') == '1' then
  redis.call('HSET', KEYS[1], 'suspended', '0')
  return 1
end
return 0
`)

// updateScript writes the given fields only when the instance hash exists.
var updateScript = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

var _ persistence.ExecutionStore = new(redisExecutionStore)

// redisExecutionStore keeps every instance in its own hash so that partial
// updates are single multi-field HSET calls.
type redisExecutionStore struct {
	*baseDao
	contextEncDec  util.EncoderDecoder[model.ContextStack]
	stateMapEncDec util.EncoderDecoder[map[string]model.StateExecutionData]
	callbackEncDec util.EncoderDecoder[model.CallbackRef]
}

func NewRedisExecutionStore(baseDao *baseDao) *redisExecutionStore {
	return &redisExecutionStore{
		baseDao:        baseDao,
		contextEncDec:  util.NewJsonEncoderDecoder[model.ContextStack](),
		stateMapEncDec: util.NewJsonEncoderDecoder[map[string]model.StateExecutionData](),
		callbackEncDec: util.NewJsonEncoderDecoder[model.CallbackRef](),
	}
}

func (r *redisExecutionStore) instanceKey(appId string, instanceId string) string {
	return r.getNamespaceKey(persistence.SEI_PREFIX, appId, r.getPartition(instanceId), instanceId)
}

func (r *redisExecutionStore) executionKey(appId string, executionUuid string) string {
	return r.getNamespaceKey(persistence.EXEC_PREFIX, appId, executionUuid)
}

func (r *redisExecutionStore) SaveAndGet(ctx context.Context, instance *model.StateExecutionInstance) (*model.StateExecutionInstance, error) {
	if len(instance.Uuid) == 0 {
		instance.Uuid = uuid.New().String()
	}
	if instance.CreatedAt == 0 {
		instance.CreatedAt = time.Now().UnixMilli()
	}
	if len(instance.Status) == 0 {
		instance.Status = model.NEW
	}
	fields, err := r.encode(instance, allFields()...)
	if err != nil {
		return nil, err
	}
	if err := r.encodeIdentity(instance, fields); err != nil {
		return nil, err
	}
	seq, err := r.redisClient.Incr(ctx, r.getNamespaceKey(SEQ_KEY)).Result()
	if err != nil {
		logger.Error("error generating sequence", zap.String("instanceId", instance.Uuid), zap.Error(err))
		return nil, storageError(err)
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, r.instanceKey(instance.AppId, instance.Uuid), fields)
		pipe.ZAdd(ctx, r.executionKey(instance.AppId, instance.ExecutionUuid), rd.Z{Score: float64(seq), Member: instance.Uuid})
		return nil
	})
	if err != nil {
		logger.Error("error saving state execution instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
		return nil, storageError(err)
	}
	return r.Get(ctx, instance.AppId, instance.Uuid)
}

func (r *redisExecutionStore) Get(ctx context.Context, appId string, instanceId string) (*model.StateExecutionInstance, error) {
	res, err := r.redisClient.HGetAll(ctx, r.instanceKey(appId, instanceId)).Result()
	if err != nil {
		return nil, storageError(err)
	}
	if len(res) == 0 {
		return nil, persistence.ErrNotFound
	}
	return r.decode(res)
}

func (r *redisExecutionStore) Update(ctx context.Context, instance *model.StateExecutionInstance, ops persistence.UpdateOps) error {
	if len(ops) == 0 {
		return nil
	}
	fields, err := r.encode(instance, ops...)
	if err != nil {
		return err
	}
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	updated, err := updateScript.Run(ctx, r.redisClient, []string{r.instanceKey(instance.AppId, instance.Uuid)}, args...).Int()
	if err != nil {
		logger.Error("error updating state execution instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
		return storageError(err)
	}
	if updated == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *redisExecutionStore) ListByExecution(ctx context.Context, appId string, executionUuid string) ([]*model.StateExecutionInstance, error) {
	ids, err := r.redisClient.ZRange(ctx, r.executionKey(appId, executionUuid), 0, -1).Result()
	if err != nil {
		return nil, storageError(err)
	}
	cmds := make([]*rd.MapStringStringCmd, 0, len(ids))
	_, err = r.redisClient.Pipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.HGetAll(ctx, r.instanceKey(appId, id)))
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}
	instances := make([]*model.StateExecutionInstance, 0, len(cmds))
	for _, cmd := range cmds {
		res := cmd.Val()
		if len(res) == 0 {
			continue
		}
		inst, err := r.decode(res)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (r *redisExecutionStore) ClaimResume(ctx context.Context, appId string, instanceId string) (bool, error) {
	res, err := claimResumeScript.Run(ctx, r.redisClient, []string{r.instanceKey(appId, instanceId)}).Int()
	if err != nil {
		return false, storageError(err)
	}
	return res == 1, nil
}

func allFields() []persistence.Field {
	return []persistence.Field{
		persistence.FIELD_STATUS,
		persistence.FIELD_START_TS,
		persistence.FIELD_END_TS,
		persistence.FIELD_STATE_EXECUTION_MAP,
		persistence.FIELD_ERROR_MSG,
		persistence.FIELD_SUSPENDED,
		persistence.FIELD_CONTEXT_ELEMENTS,
	}
}

func (r *redisExecutionStore) encode(si *model.StateExecutionInstance, fields ...persistence.Field) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range fields {
		switch f {
		case persistence.FIELD_STATUS:
			out[string(f)] = string(si.Status)
		case persistence.FIELD_START_TS:
			out[string(f)] = si.StartTs
		case persistence.FIELD_END_TS:
			out[string(f)] = si.EndTs
		case persistence.FIELD_ERROR_MSG:
			out[string(f)] = si.ErrorMsg
		case persistence.FIELD_SUSPENDED:
			if si.Suspended {
				out[string(f)] = "1"
			} else {
				out[string(f)] = "0"
			}
		case persistence.FIELD_CONTEXT_ELEMENTS:
			data, err := r.contextEncDec.Encode(si.ContextElements)
			if err != nil {
				return nil, err
			}
			out[string(f)] = string(data)
		case persistence.FIELD_STATE_EXECUTION_MAP:
			data, err := r.stateMapEncDec.Encode(si.StateExecutionMap)
			if err != nil {
				return nil, err
			}
			out[string(f)] = string(data)
		}
	}
	return out, nil
}

// encodeIdentity adds the fields that never change after the first save.
func (r *redisExecutionStore) encodeIdentity(si *model.StateExecutionInstance, out map[string]any) error {
	out["uuid"] = si.Uuid
	out["appId"] = si.AppId
	out["executionUuid"] = si.ExecutionUuid
	out["stateMachineId"] = si.StateMachineId
	out["stateName"] = si.StateName
	out["stateType"] = si.StateType
	out["notifyId"] = si.NotifyId
	out["parentInstanceId"] = si.ParentInstanceId
	out["prevInstanceId"] = si.PrevInstanceId
	out["createdAt"] = si.CreatedAt
	if si.Callback != nil {
		cb, err := r.callbackEncDec.Encode(*si.Callback)
		if err != nil {
			return err
		}
		out["callback"] = string(cb)
	}
	return nil
}

func (r *redisExecutionStore) decode(res map[string]string) (*model.StateExecutionInstance, error) {
	si := &model.StateExecutionInstance{
		Uuid:             res["uuid"],
		AppId:            res["appId"],
		ExecutionUuid:    res["executionUuid"],
		StateMachineId:   res["stateMachineId"],
		StateName:        res["stateName"],
		StateType:        res["stateType"],
		Status:           model.ExecutionStatus(res["status"]),
		NotifyId:         res["notifyId"],
		ParentInstanceId: res["parentInstanceId"],
		PrevInstanceId:   res["prevInstanceId"],
		ErrorMsg:         res["errorMsg"],
		Suspended:        res["suspended"] == "1",
	}
	si.StartTs, _ = strconv.ParseInt(res["startTs"], 10, 64)
	si.EndTs, _ = strconv.ParseInt(res["endTs"], 10, 64)
	si.CreatedAt, _ = strconv.ParseInt(res["createdAt"], 10, 64)
	if v := res["contextElements"]; len(v) > 0 && v != "null" {
		cs, err := r.contextEncDec.Decode([]byte(v))
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		si.ContextElements = *cs
	}
	if v := res["stateExecutionMap"]; len(v) > 0 && v != "null" {
		sm, err := r.stateMapEncDec.Decode([]byte(v))
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		si.StateExecutionMap = *sm
	}
	if v := res["callback"]; len(v) > 0 {
		cb, err := r.callbackEncDec.Decode([]byte(v))
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		si.Callback = cb
	}
	return si, nil
}
