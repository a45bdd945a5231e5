package product

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinenext/storefront-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:product_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("migrate products: %v", err)
	}
	return conn
}

func mustCreateTestProduct(t *testing.T, tx *gorm.DB, stock int) *models.Product {
	t.Helper()
	row := &models.Product{
		ID:       uuid.New(),
		Code:     fmt.Sprintf("CODE-%s", uuid.NewString()),
		Name:     "Test Product",
		Price:    decimal.NewFromFloat(19.99),
		Stock:    stock,
		IsActive: true,
	}
	if err := tx.Create(row).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return row
}
