// Package storetest checks TokenStore implementations against the shared
// contract.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vouchgraph/internal/domain"
	"vouchgraph/internal/repository"
)

// Run exercises store. The store must start empty.
func Run(t *testing.T, store repository.TokenStore) {
	ctx := context.Background()

	t.Run("missing fid", func(t *testing.T) {
		info, err := store.Get(ctx, "404")
		require.NoError(t, err)
		assert.Nil(t, info)

		removed, err := store.Remove(ctx, "404")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("save and get", func(t *testing.T) {
		want := domain.NotificationInfo{Token: "tok-1", URL: "https://notify.example/a"}
		require.NoError(t, store.Save(ctx, "1", want))

		got, err := store.Get(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})

	t.Run("save replaces", func(t *testing.T) {
		want := domain.NotificationInfo{Token: "tok-1b", URL: "https://notify.example/b"}
		require.NoError(t, store.Save(ctx, "1", want))

		got, err := store.Get(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})

	t.Run("list keeps registration order", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "3", domain.NotificationInfo{Token: "tok-3", URL: "https://notify.example/a"}))
		require.NoError(t, store.Save(ctx, "2", domain.NotificationInfo{Token: "tok-2", URL: "https://notify.example/a"}))
		require.NoError(t, store.Save(ctx, "1", domain.NotificationInfo{Token: "tok-1c", URL: "https://notify.example/a"}))

		fids, err := store.ListFIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3", "2"}, fids)
	})

	t.Run("remove", func(t *testing.T) {
		removed, err := store.Remove(ctx, "3")
		require.NoError(t, err)
		assert.True(t, removed)

		info, err := store.Get(ctx, "3")
		require.NoError(t, err)
		assert.Nil(t, info)

		fids, err := store.ListFIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, fids)
	})
}
