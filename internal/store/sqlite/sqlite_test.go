package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/store"
	"medipos/backend/internal/store/local"
)

func TestMediumPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "medipos.db")

	medium, err := Open(ctx, path)
	require.NoError(t, err)

	_, ok, err := medium.Load(ctx, store.KeyMedicines)
	require.NoError(t, err)
	assert.False(t, ok)

	records := local.New(medium)
	created, err := records.CreateMedicine(ctx, domain.Medicine{Name: "Loratadine 10mg", StockQuantity: 12})
	require.NoError(t, err)
	require.NoError(t, medium.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := local.New(reopened).GetMedicine(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, got.StockQuantity)

	require.NoError(t, reopened.Remove(ctx, store.KeyMedicines))
	_, ok, err = reopened.Load(ctx, store.KeyMedicines)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOverwritesValue(t *testing.T) {
	ctx := context.Background()
	medium, err := Open(ctx, filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = medium.Close() })

	require.NoError(t, medium.Save(ctx, "k", []byte(`{"version":1,"records":[]}`)))
	require.NoError(t, medium.Save(ctx, "k", []byte(`{"version":1,"records":[{"id":"x"}]}`)))

	raw, ok, err := medium.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"version":1,"records":[{"id":"x"}]}`, string(raw))
}
