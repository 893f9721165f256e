package cache

import (
	"context"
	"time"

	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	c "github.com/patrickmn/go-cache"
)

const enabledListKey = "__enabled__"

// DefinitionCache is a process-scoped read-through cache over the
// definition store. Entries never expire on their own; Invalidate must be
// called whenever a definition is published or deleted.
type DefinitionCache struct {
	cache *c.Cache
	store persistence.DefinitionStore
}

func NewDefinitionCache(store persistence.DefinitionStore) *DefinitionCache {
	return &DefinitionCache{
		cache: c.New(c.NoExpiration, 10*time.Minute),
		store: store,
	}
}

func (dc *DefinitionCache) Get(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	if cached, found := dc.cache.Get(id); found {
		return cached.(*model.WorkflowDefinition), nil
	}
	wf, err := dc.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dc.cache.Set(id, wf, c.NoExpiration)
	return wf, nil
}

func (dc *DefinitionCache) ListEnabled(ctx context.Context) ([]*model.WorkflowDefinition, error) {
	if cached, found := dc.cache.Get(enabledListKey); found {
		return cached.([]*model.WorkflowDefinition), nil
	}
	enabled, err := dc.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	dc.cache.Set(enabledListKey, enabled, c.NoExpiration)
	return enabled, nil
}

// Invalidate drops the cached definition and the enabled list. Called on
// every publish/delete.
func (dc *DefinitionCache) Invalidate(id string) {
	dc.cache.Delete(id)
	dc.cache.Delete(enabledListKey)
}

func (dc *DefinitionCache) Flush() {
	dc.cache.Flush()
}
