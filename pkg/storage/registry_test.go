package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	dir, err := os.MkdirTemp("", "contentflow-registry-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	bolt, err := NewBoltRegistry(dir)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Registry{
		"bolt": bolt,
		"mem":  NewMemRegistry(),
	}
}

func TestRegistry_CreateIfAbsent_ConflictsOnSecondCreate(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.CreateIfAbsent(ctx, "locks", Doc{ID: "vault-1", Body: []byte(`{}`)})
			require.NoError(t, err)

			_, err = reg.CreateIfAbsent(ctx, "locks", Doc{ID: "vault-1", Body: []byte(`{}`)})
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestRegistry_Replace_RequiresMatchingRevision(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			created, err := reg.CreateIfAbsent(ctx, "locks", Doc{ID: "vault-1", Body: []byte(`{"n":1}`)})
			require.NoError(t, err)

			_, err = reg.Replace(ctx, "locks", Doc{ID: "vault-1", Body: []byte(`{"n":2}`), Revision: "stale"})
			assert.ErrorIs(t, err, ErrConflict)

			updated, err := reg.Replace(ctx, "locks", Doc{ID: "vault-1", Body: []byte(`{"n":2}`), Revision: created.Revision})
			require.NoError(t, err)
			assert.NotEqual(t, created.Revision, updated.Revision)

			got, err := reg.Get(ctx, "locks", "vault-1")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"n":2}`), got.Body)
		})
	}
}

func TestRegistry_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Get(ctx, "locks", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRegistry_Query_FiltersByEquality(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Upsert(ctx, "pipelines", Doc{ID: "p1", Body: []byte(`{"enabled":true}`)})
			require.NoError(t, err)
			_, err = reg.Upsert(ctx, "pipelines", Doc{ID: "p2", Body: []byte(`{"enabled":false}`)})
			require.NoError(t, err)

			var ids []string
			for doc, err := range reg.Query(ctx, "pipelines", map[string]string{"enabled": "true"}) {
				require.NoError(t, err)
				ids = append(ids, doc.ID)
			}
			assert.Equal(t, []string{"p1"}, ids)
		})
	}
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Upsert(ctx, "vaults", Doc{ID: "v1", Body: []byte(`{}`)})
			require.NoError(t, err)
			require.NoError(t, reg.Delete(ctx, "vaults", "v1"))

			_, err = reg.Get(ctx, "vaults", "v1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
