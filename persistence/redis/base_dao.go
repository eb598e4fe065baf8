package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohitkumar/stepflow/cluster"
	"github.com/mohitkumar/stepflow/persistence"
	rd "github.com/redis/go-redis/v9"
)

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
	ring        *cluster.Ring
}

func NewClient(conf Config) rd.UniversalClient {
	return rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		PoolSize: conf.PoolSize,
	})
}

func NewBaseDao(client rd.UniversalClient, namespace string, ring *cluster.Ring) *baseDao {
	return &baseDao{
		redisClient: client,
		namespace:   namespace,
		ring:        ring,
	}
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}

func (bs *baseDao) getPartition(key string) string {
	if bs.ring == nil {
		return "0"
	}
	return fmt.Sprintf("%d", bs.ring.GetPartition(key))
}

func (bs *baseDao) Ping(ctx context.Context) error {
	return bs.redisClient.Ping(ctx).Err()
}

func (bs *baseDao) Close() error {
	return bs.redisClient.Close()
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rd.Nil) {
		return persistence.ErrNotFound
	}
	return persistence.StorageLayerError{Message: err.Error()}
}
