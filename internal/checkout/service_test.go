package checkout

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

	cart "github.com/cinenext/storefront-backend/internal/cart"
	product "github.com/cinenext/storefront-backend/internal/products"
	"github.com/cinenext/storefront-backend/pkg/db/models"
	pkgerrors "github.com/cinenext/storefront-backend/pkg/errors"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	svc      Service
	conn     *gorm.DB
	cartRepo *cart.Repository
	products *product.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cartRepo := cart.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	svc, err := NewService(gormTxRunner{db: conn}, cartRepo, productRepo, nil, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, cartRepo: cartRepo, products: productRepo}
}

func (f *fixture) seedProduct(t *testing.T, stock int, price string) *models.Product {
	t.Helper()
	row := &models.Product{
		ID:       uuid.New(),
		Code:     fmt.Sprintf("CODE-%s", uuid.NewString()),
		Name:     "Checkout Product",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := f.conn.Create(row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return row
}

func (f *fixture) seedCartLine(t *testing.T, userID, productID uuid.UUID, qty int) {
	t.Helper()
	ctx := context.Background()
	cartRow, err := f.cartRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	_, err = f.cartRepo.UpsertItem(ctx, cartRow.ID, productID, qty)
	require.NoError(t, err)
}

func (f *fixture) cartLineCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Count(&n).Error)
	return n
}

func TestExecutePurchasesWholeCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	first := f.seedProduct(t, 10, "5.00")
	second := f.seedProduct(t, 4, "2.25")

	f.seedCartLine(t, userID, first.ID, 2)
	f.seedCartLine(t, userID, second.ID, 4)

	result, err := f.svc.Execute(ctx, userID)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("19.00")))

	var firstRow, secondRow models.Product
	require.NoError(t, f.conn.First(&firstRow, "id = ?", first.ID).Error)
	require.NoError(t, f.conn.First(&secondRow, "id = ?", second.ID).Error)
	assert.Equal(t, 8, firstRow.Stock)
	assert.Equal(t, 0, secondRow.Stock)

	assert.Equal(t, int64(0), f.cartLineCount(t))
}

func TestExecuteMixedCartClearsFailedLinesToo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	good := f.seedProduct(t, 3, "10.00")
	gone := f.seedProduct(t, 3, "10.00")

	f.seedCartLine(t, userID, good.ID, 2)
	f.seedCartLine(t, userID, gone.ID, 1)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", gone.ID).Update("stock", 0).Error)

	result, err := f.svc.Execute(ctx, userID)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, good.ID, result.Items[0].ProductID)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("20.00")))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, KindOutOfStock, result.Errors[0].Kind)
	require.NotNil(t, result.Errors[0].Available)
	assert.Equal(t, 0, *result.Errors[0].Available)

	// the failed line is cleared along with the purchased one
	assert.Equal(t, int64(0), f.cartLineCount(t))
}

func TestExecuteEmptyCartMutatesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Execute(context.Background(), uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestExecuteRacedDecrementSurfacesInsufficient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	winner := uuid.New()
	loser := uuid.New()
	row := f.seedProduct(t, 5, "1.00")

	f.seedCartLine(t, winner, row.ID, 4)
	f.seedCartLine(t, loser, row.ID, 4)

	_, err := f.svc.Execute(ctx, winner)
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, loser)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// total decremented never exceeds the seeded stock
	var fresh models.Product
	require.NoError(t, f.conn.First(&fresh, "id = ?", row.ID).Error)
	assert.Equal(t, 1, fresh.Stock)
}

func TestExecuteZeroSuccessRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	row := f.seedProduct(t, 2, "9.99")

	f.seedCartLine(t, userID, row.ID, 2)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", row.ID).Update("stock", 1).Error)

	_, err := f.svc.Execute(ctx, userID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// cart untouched, stock untouched
	assert.Equal(t, int64(1), f.cartLineCount(t))
	var fresh models.Product
	require.NoError(t, f.conn.First(&fresh, "id = ?", row.ID).Error)
	assert.Equal(t, 1, fresh.Stock)
}
