package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ persistence.WaitNotifyStore = new(redisWaitNotifyStore)

// claimScript deletes the wait and unlinks it from its correlation ids. A
// response or deadline no other wait refers to is consumed with it.
var claimScript = rd.NewScript(`
if redis.call("DEL", KEYS[1]) == 0 then
	return 0
end
local n = 2
for i = 3, #KEYS, 2 do
	redis.call("SREM", KEYS[i], ARGV[1])
	if redis.call("SCARD", KEYS[i]) == 0 then
		redis.call("DEL", KEYS[i + 1])
		redis.call("ZREM", KEYS[2], ARGV[n])
	end
	n = n + 1
end
return 1
`)

// saveResponseScript stores a response. Nobody waits on it yet, so it expires
// after ARGV[2] milliseconds unless a wait picks it up.
var saveResponseScript = rd.NewScript(`
redis.call("SET", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 and redis.call("SCARD", KEYS[2]) == 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

type redisWaitNotifyStore struct {
	*baseDao
	responseTTL    time.Duration
	waitEncDec     util.EncoderDecoder[model.WaitInstance]
	responseEncDec util.EncoderDecoder[model.NotifyResponse]
}

func NewRedisWaitNotifyStore(baseDao *baseDao) *redisWaitNotifyStore {
	return &redisWaitNotifyStore{
		baseDao:        baseDao,
		responseTTL:    persistence.DEFAULT_RESPONSE_TTL,
		waitEncDec:     util.NewJsonEncoderDecoder[model.WaitInstance](),
		responseEncDec: util.NewJsonEncoderDecoder[model.NotifyResponse](),
	}
}

// WithResponseTTL sets how long a response nobody waits on is kept. Zero
// keeps it forever.
func (r *redisWaitNotifyStore) WithResponseTTL(ttl time.Duration) *redisWaitNotifyStore {
	r.responseTTL = ttl
	return r
}

func (r *redisWaitNotifyStore) SaveWaitInstance(ctx context.Context, wait *model.WaitInstance) error {
	data, err := r.waitEncDec.Encode(*wait)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Set(ctx, r.getNamespaceKey(persistence.WAIT_PREFIX, wait.Id), data, 0)
		for _, id := range wait.CorrelationIds {
			pipe.SAdd(ctx, r.getNamespaceKey(persistence.WAITERS_PREFIX, id), wait.Id)
			pipe.Persist(ctx, r.getNamespaceKey(persistence.RESPONSE_PREFIX, id))
		}
		return nil
	})
	if err != nil {
		logger.Error("error saving wait instance", zap.String("waitId", wait.Id), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisWaitNotifyStore) GetWaitInstance(ctx context.Context, waitId string) (*model.WaitInstance, error) {
	data, err := r.redisClient.Get(ctx, r.getNamespaceKey(persistence.WAIT_PREFIX, waitId)).Bytes()
	if err != nil {
		return nil, storageError(err)
	}
	return r.waitEncDec.Decode(data)
}

func (r *redisWaitNotifyStore) ClaimWaitInstance(ctx context.Context, wait *model.WaitInstance) (bool, error) {
	keys := make([]string, 0, 2+2*len(wait.CorrelationIds))
	keys = append(keys, r.getNamespaceKey(persistence.WAIT_PREFIX, wait.Id), r.getNamespaceKey(persistence.DEADLINE_KEY))
	args := make([]any, 0, 1+len(wait.CorrelationIds))
	args = append(args, wait.Id)
	for _, id := range wait.CorrelationIds {
		keys = append(keys, r.getNamespaceKey(persistence.WAITERS_PREFIX, id), r.getNamespaceKey(persistence.RESPONSE_PREFIX, id))
		args = append(args, id)
	}
	claimed, err := claimScript.Run(ctx, r.redisClient, keys, args...).Int()
	if err != nil {
		logger.Error("error claiming wait instance", zap.String("waitId", wait.Id), zap.Error(err))
		return false, storageError(err)
	}
	return claimed == 1, nil
}

func (r *redisWaitNotifyStore) GetWaiters(ctx context.Context, correlationId string) ([]string, error) {
	res, err := r.redisClient.SMembers(ctx, r.getNamespaceKey(persistence.WAITERS_PREFIX, correlationId)).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return res, nil
}

func (r *redisWaitNotifyStore) SaveResponse(ctx context.Context, response *model.NotifyResponse) error {
	data, err := r.responseEncDec.Encode(*response)
	if err != nil {
		return err
	}
	keys := []string{
		r.getNamespaceKey(persistence.RESPONSE_PREFIX, response.CorrelationId),
		r.getNamespaceKey(persistence.WAITERS_PREFIX, response.CorrelationId),
	}
	if err := saveResponseScript.Run(ctx, r.redisClient, keys, string(data), r.responseTTL.Milliseconds()).Err(); err != nil {
		logger.Error("error saving notify response", zap.String("correlationId", response.CorrelationId), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisWaitNotifyStore) GetResponses(ctx context.Context, correlationIds ...string) (map[string]model.NotifyResponse, error) {
	out := make(map[string]model.NotifyResponse, len(correlationIds))
	if len(correlationIds) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(correlationIds))
	for _, id := range correlationIds {
		keys = append(keys, r.getNamespaceKey(persistence.RESPONSE_PREFIX, id))
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageError(err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		resp, err := r.responseEncDec.Decode([]byte(s))
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		out[correlationIds[i]] = *resp
	}
	return out, nil
}

func (r *redisWaitNotifyStore) AddDeadline(ctx context.Context, correlationId string, delay time.Duration) error {
	member := rd.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: correlationId,
	}
	if err := r.redisClient.ZAdd(ctx, r.getNamespaceKey(persistence.DEADLINE_KEY), member).Err(); err != nil {
		logger.Error("error adding deadline", zap.String("correlationId", correlationId), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (r *redisWaitNotifyStore) PollExpiredDeadlines(ctx context.Context) ([]string, error) {
	key := r.getNamespaceKey(persistence.DEADLINE_KEY)
	max := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var zr *rd.StringSliceCmd
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		zr = pipe.ZRangeByScore(ctx, key, &rd.ZRangeBy{Min: "0", Max: max})
		pipe.ZRemRangeByScore(ctx, key, "0", max)
		return nil
	})
	if err != nil {
		logger.Error("error polling deadlines", zap.Error(err))
		return nil, storageError(err)
	}
	return zr.Val(), nil
}
