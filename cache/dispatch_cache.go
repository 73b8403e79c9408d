package cache

import (
	"time"

	c "github.com/patrickmn/go-cache"
)

// DispatchCache remembers ActionSet ids recently re-dispatched by the
// scheduler, keyed by id and holding the dispatch time.
type DispatchCache struct {
	cache *c.Cache
	ttl   time.Duration
}

func NewDispatchCache(ttl time.Duration) *DispatchCache {
	return &DispatchCache{
		cache: c.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (ch *DispatchCache) MarkDispatched(actionSetId string, at time.Time) {
	ch.cache.Set(actionSetId, at, c.DefaultExpiration)
}

func (ch *DispatchCache) RecentlyDispatched(actionSetId string) bool {
	_, found := ch.cache.Get(actionSetId)
	return found
}
