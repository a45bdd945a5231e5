package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrementStockGuardsAvailability(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	row := mustCreateTestProduct(t, conn, 5)

	result, err := repo.DecrementStock(ctx, row.ID, 3)
	require.NoError(t, err)
	assert.True(t, result.Decremented)

	result, err = repo.DecrementStock(ctx, row.ID, 3)
	require.NoError(t, err)
	assert.False(t, result.Decremented)
	assert.Equal(t, 2, result.Available)

	fresh, err := repo.FindByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Stock)
}

func TestDecrementStockMissingProduct(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.DecrementStock(context.Background(), uuid.New(), 1)
	require.Error(t, err)
}

func TestListFiltersInactiveAndSearch(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	visible := mustCreateTestProduct(t, conn, 1)
	hidden := mustCreateTestProduct(t, conn, 1)
	require.NoError(t, conn.Model(hidden).Update("is_active", false).Error)

	rows, err := repo.List(ctx, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, visible.ID, rows[0].ID)

	rows, err = repo.List(ctx, ListFilters{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = repo.List(ctx, ListFilters{Query: visible.Code})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, visible.ID, rows[0].ID)
}

func TestSetStockMissingProduct(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.SetStock(context.Background(), uuid.New(), 10)
	require.Error(t, err)
}
