package authz

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/pricewatch/pricewatch/testing"
)

func TestSetGrantConcurrentTogglesKeepSingleRow(t *testing.T) {
	store := newMemoryGrantStore()

	ops := []Operation{OpAdd, OpEdit, OpDelete}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(op Operation) {
			defer wg.Done()
			_, err := store.SetGrant(context.Background(), "u1", ResourceProduct, op, true)
			require.NoError(t, err)
		}(ops[i%len(ops)])
	}
	wg.Wait()

	grants, err := store.ListGrants(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, grants, 1, "upsert keyed by (user, resource) never duplicates")

	g := grants[0]
	require.True(t, g.CanAdd)
	require.True(t, g.CanEdit)
	require.True(t, g.CanDelete)
}

func TestSetGrantDoesNotTouchOtherUsers(t *testing.T) {
	store := newMemoryGrantStore()
	_, err := store.SetGrant(context.Background(), "u1", ResourceProduct, OpAdd, true)
	require.NoError(t, err)
	_, err = store.SetGrant(context.Background(), "u2", ResourceProduct, OpEdit, true)
	require.NoError(t, err)

	g, err := store.GetGrant(context.Background(), "u1", ResourceProduct)
	require.NoError(t, err)
	require.True(t, g.CanAdd)
	require.False(t, g.CanEdit)
}
