package redis

import (
	"context"
	"errors"

	"github.com/mohitkumar/stepflow/persistence"
	rd "github.com/redis/go-redis/v9"
)

var _ persistence.MaintenanceStore = new(redisMaintenanceStore)

type redisMaintenanceStore struct {
	*baseDao
}

func NewRedisMaintenanceStore(baseDao *baseDao) *redisMaintenanceStore {
	return &redisMaintenanceStore{baseDao: baseDao}
}

func (r *redisMaintenanceStore) GetMaintenance(ctx context.Context) (bool, error) {
	v, err := r.redisClient.Get(ctx, r.getNamespaceKey(persistence.MAINTENANCE_KEY)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return false, nil
		}
		return false, storageError(err)
	}
	return v == "1", nil
}

func (r *redisMaintenanceStore) SetMaintenance(ctx context.Context, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	if err := r.redisClient.Set(ctx, r.getNamespaceKey(persistence.MAINTENANCE_KEY), v, 0).Err(); err != nil {
		return storageError(err)
	}
	return nil
}
