package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	product "github.com/cinenext/storefront-backend/internal/products"
	"github.com/cinenext/storefront-backend/pkg/db/models"
	pkgerrors "github.com/cinenext/storefront-backend/pkg/errors"
)

func newTestEngine(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, err := NewService(NewRepository(conn), product.NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, stock int, price string) *models.Product {
	t.Helper()
	row := &models.Product{
		ID:       uuid.New(),
		Code:     fmt.Sprintf("CODE-%s", uuid.NewString()),
		Name:     "Seeded Product",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := conn.Create(row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return row
}

func TestAddItemClampsToStock(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedProduct(t, conn, 5, "10.00")

	result, err := svc.AddItem(ctx, userID, row.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Quantity)
	assert.True(t, result.Clamped)

	// repeat adds converge on the clamp instead of growing
	result, err = svc.AddItem(ctx, userID, row.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Quantity)
	assert.True(t, result.Clamped)

	count, err := svc.ItemCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestAddItemMergesExistingLine(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedProduct(t, conn, 10, "2.50")

	result, err := svc.AddItem(ctx, userID, row.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Quantity)
	assert.False(t, result.Clamped)

	result, err = svc.AddItem(ctx, userID, row.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Quantity)
	assert.False(t, result.Clamped)
}

func TestAddItemRejectsOutOfStock(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	row := seedProduct(t, conn, 0, "10.00")

	_, err := svc.AddItem(ctx, uuid.New(), row.ID, 1)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestAddItemMissingProduct(t *testing.T) {
	t.Parallel()

	svc, _ := newTestEngine(t)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 1)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestViewReadRepairPersistsClamp(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedProduct(t, conn, 10, "4.00")

	_, err := svc.AddItem(ctx, userID, row.ID, 8)
	require.NoError(t, err)

	// stock shrinks behind the cart's back
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", row.ID).Update("stock", 3).Error)

	view, err := svc.View(ctx, userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("12.00")))

	// the repair is stored, so a second view is stable without re-clamping
	var item models.CartItem
	require.NoError(t, conn.First(&item, "product_id = ?", row.ID).Error)
	assert.Equal(t, 3, item.Quantity)

	again, err := svc.View(ctx, userID)
	require.NoError(t, err)
	require.Len(t, again.Items, 1)
	assert.Equal(t, 3, again.Items[0].Quantity)
}

func TestViewDropsDanglingAndDepletedLines(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	kept := seedProduct(t, conn, 5, "1.00")
	deleted := seedProduct(t, conn, 5, "1.00")
	depleted := seedProduct(t, conn, 5, "1.00")

	for _, id := range []uuid.UUID{kept.ID, deleted.ID, depleted.ID} {
		_, err := svc.AddItem(ctx, userID, id, 2)
		require.NoError(t, err)
	}

	require.NoError(t, conn.Delete(&models.Product{}, "id = ?", deleted.ID).Error)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", depleted.ID).Update("stock", 0).Error)

	view, err := svc.View(ctx, userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, kept.ID, view.Items[0].ProductID)

	var remaining int64
	require.NoError(t, conn.Model(&models.CartItem{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestViewEmptyCart(t *testing.T) {
	t.Parallel()

	svc, _ := newTestEngine(t)

	view, err := svc.View(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Total.IsZero())
}

func TestSetQuantityRejectsBeyondStockWithoutMutating(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedProduct(t, conn, 5, "3.00")

	_, err := svc.AddItem(ctx, userID, row.ID, 2)
	require.NoError(t, err)

	_, err = svc.SetQuantity(ctx, userID, row.ID, 9)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, details["available"])

	var item models.CartItem
	require.NoError(t, conn.First(&item, "product_id = ?", row.ID).Error)
	assert.Equal(t, 2, item.Quantity)
}

func TestSetQuantityUpdatesLine(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	row := seedProduct(t, conn, 5, "3.00")

	_, err := svc.AddItem(ctx, userID, row.ID, 2)
	require.NoError(t, err)

	line, err := svc.SetQuantity(ctx, userID, row.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)
	assert.True(t, line.Subtotal.Equal(decimal.RequireFromString("12.00")))
}

func TestSetQuantityMissingLine(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	row := seedProduct(t, conn, 5, "3.00")

	_, err := svc.SetQuantity(ctx, uuid.New(), row.ID, 1)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRemoveItemAndClear(t *testing.T) {
	t.Parallel()

	svc, conn := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	first := seedProduct(t, conn, 5, "1.00")
	second := seedProduct(t, conn, 5, "1.00")

	_, err := svc.AddItem(ctx, userID, first.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userID, second.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, userID, first.ID))

	// removing the same line again succeeds silently
	require.NoError(t, svc.RemoveItem(ctx, userID, first.ID))

	// so does removing against a user who never had a cart
	require.NoError(t, svc.RemoveItem(ctx, uuid.New(), first.ID))

	require.NoError(t, svc.Clear(ctx, userID))
	require.NoError(t, svc.Clear(ctx, userID))

	count, err := svc.ItemCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
