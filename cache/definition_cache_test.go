package cache

import (
	"context"
	"testing"

	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/persistence/memory"
	"github.com/stretchr/testify/require"
)

func TestDefinitionCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDefinitionStore()
	dc := NewDefinitionCache(store)

	wf := &model.WorkflowDefinition{Id: "welcome", Version: 1, Enabled: true}
	require.NoError(t, store.Save(ctx, wf))

	got, err := dc.Get(ctx, "welcome")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)

	enabled, err := dc.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	// the cache serves stale reads until invalidated
	require.NoError(t, store.Save(ctx, &model.WorkflowDefinition{Id: "welcome", Version: 2, Enabled: true}))
	got, err = dc.Get(ctx, "welcome")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)

	dc.Invalidate("welcome")
	got, err = dc.Get(ctx, "welcome")
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)

	// invalidation also drops the enabled list
	require.NoError(t, store.Save(ctx, &model.WorkflowDefinition{Id: "winback", Version: 1, Enabled: true}))
	dc.Invalidate("winback")
	enabled, err = dc.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)

	_, err = dc.Get(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	dc.Flush()
	enabled, err = dc.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
}
