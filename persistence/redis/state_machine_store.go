package redis

import (
	"context"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

var _ persistence.StateMachineStore = new(redisStateMachineStore)

type redisStateMachineStore struct {
	*baseDao
	encDec util.EncoderDecoder[model.StateMachine]
}

func NewRedisStateMachineStore(baseDao *baseDao) *redisStateMachineStore {
	return &redisStateMachineStore{
		baseDao: baseDao,
		encDec:  util.NewJsonEncoderDecoder[model.StateMachine](),
	}
}

func (r *redisStateMachineStore) Save(ctx context.Context, sm *model.StateMachine) error {
	if len(sm.Uuid) == 0 {
		sm.Uuid = uuid.New().String()
	}
	data, err := r.encDec.Encode(*sm)
	if err != nil {
		return err
	}
	key := r.getNamespaceKey(persistence.SM_PREFIX, sm.AppId, sm.Uuid)
	if err := r.redisClient.Set(ctx, key, data, 0).Err(); err != nil {
		logger.Error("error saving state machine", zap.String("appId", sm.AppId), zap.String("id", sm.Uuid), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisStateMachineStore) Get(ctx context.Context, appId string, id string) (*model.StateMachine, error) {
	key := r.getNamespaceKey(persistence.SM_PREFIX, appId, id)
	data, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		return nil, storageError(err)
	}
	return r.encDec.Decode(data)
}

func (r *redisStateMachineStore) Delete(ctx context.Context, appId string, id string) error {
	key := r.getNamespaceKey(persistence.SM_PREFIX, appId, id)
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return storageError(err)
	}
	return nil
}
