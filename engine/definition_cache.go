package engine

import (
	"time"

	"github.com/mohitkumar/stepflow/statemachine"
	c "github.com/patrickmn/go-cache"
)

// DefinitionCache keeps built state machines so a hop does not rebuild the
// graph from its stored definition.
type DefinitionCache struct {
	cache *c.Cache
}

func NewDefinitionCache(ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{
		cache: c.New(ttl, 10*time.Minute),
	}
}

func cacheKey(appId string, id string) string {
	return appId + ":" + id
}

func (ch *DefinitionCache) Put(sm *statemachine.StateMachine) {
	ch.cache.SetDefault(cacheKey(sm.AppId(), sm.Id()), sm)
}

func (ch *DefinitionCache) Get(appId string, id string) (*statemachine.StateMachine, bool) {
	v, found := ch.cache.Get(cacheKey(appId, id))
	if !found {
		return nil, false
	}
	sm, ok := v.(*statemachine.StateMachine)
	return sm, ok
}

func (ch *DefinitionCache) Evict(appId string, id string) {
	ch.cache.Delete(cacheKey(appId, id))
}
