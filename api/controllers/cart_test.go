package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinenext/storefront-backend/api/middleware"
	cartsvc "github.com/cinenext/storefront-backend/internal/cart"
	pkgerrors "github.com/cinenext/storefront-backend/pkg/errors"
	"github.com/cinenext/storefront-backend/pkg/logger"
)

type stubCartService struct {
	view    *cartsvc.CartViewDTO
	added   *cartsvc.AddItemResult
	line    *cartsvc.CartLineDTO
	count   int
	err     error
	lastQty int
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, requestedQty int) (*cartsvc.AddItemResult, error) {
	s.lastQty = requestedQty
	return s.added, s.err
}

func (s *stubCartService) View(ctx context.Context, userID uuid.UUID) (*cartsvc.CartViewDTO, error) {
	return s.view, s.err
}

func (s *stubCartService) SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*cartsvc.CartLineDTO, error) {
	s.lastQty = quantity
	return s.line, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return s.err
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.err
}

func (s *stubCartService) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.count, s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func authedContext(userID uuid.UUID) context.Context {
	return middleware.WithUserID(context.Background(), userID.String())
}

func TestCartViewSuccess(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	stub := &stubCartService{view: &cartsvc.CartViewDTO{
		Items: []cartsvc.CartLineDTO{{
			ProductID: productID,
			Code:      "SKU-1",
			Name:      "Projector Lamp",
			UnitPrice: decimal.RequireFromString("4.00"),
			Quantity:  3,
			Subtotal:  decimal.RequireFromString("12.00"),
		}},
		Total: decimal.RequireFromString("12.00"),
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req = req.WithContext(authedContext(userID))
	rec := httptest.NewRecorder()
	CartView(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data cartsvc.CartViewDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Items[0].ProductID != productID {
		t.Fatalf("unexpected items: %+v", envelope.Data.Items)
	}
	if !envelope.Data.Total.Equal(decimal.RequireFromString("12.00")) {
		t.Fatalf("unexpected total: %s", envelope.Data.Total)
	}
}

func TestCartViewMissingUserContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	CartView(&stubCartService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCartAddItemDefaultsQuantity(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	stub := &stubCartService{added: &cartsvc.AddItemResult{ProductID: productID, Quantity: 1}}

	body := `{"product_id":"` + productID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req = req.WithContext(authedContext(userID))
	rec := httptest.NewRecorder()
	CartAddItem(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastQty != 1 {
		t.Fatalf("expected default quantity 1, got %d", stub.lastQty)
	}
}

func TestCartAddItemReportsClamp(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	stub := &stubCartService{added: &cartsvc.AddItemResult{ProductID: productID, Quantity: 5, Clamped: true}}

	body := `{"product_id":"` + productID.String() + `","quantity":1000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req = req.WithContext(authedContext(userID))
	rec := httptest.NewRecorder()
	CartAddItem(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data cartsvc.AddItemResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Clamped || envelope.Data.Quantity != 5 {
		t.Fatalf("unexpected add result: %+v", envelope.Data)
	}
	if stub.lastQty != 1000 {
		t.Fatalf("expected requested quantity 1000, got %d", stub.lastQty)
	}
}

func TestCartAddItemMissingProductID(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{}`))
	req = req.WithContext(authedContext(userID))
	rec := httptest.NewRecorder()
	CartAddItem(&stubCartService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCartSetQuantityConflictDetails(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	stub := &stubCartService{
		err: pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"available": 5}),
	}

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", productID.String())
	ctx := context.WithValue(authedContext(userID), chi.RouteCtxKey, routeCtx)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/"+productID.String(), strings.NewReader(`{"quantity":9}`))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	CartSetQuantity(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]int `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeConflict) {
		t.Fatalf("unexpected error code: %s", envelope.Error.Code)
	}
	if envelope.Error.Details["available"] != 5 {
		t.Fatalf("expected available 5, got %+v", envelope.Error.Details)
	}
}

func TestCartRemoveItemInvalidProductID(t *testing.T) {
	userID := uuid.New()
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", "not-a-uuid")
	ctx := context.WithValue(authedContext(userID), chi.RouteCtxKey, routeCtx)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/not-a-uuid", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	CartRemoveItem(&stubCartService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCartCount(t *testing.T) {
	userID := uuid.New()
	stub := &stubCartService{count: 7}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/count", nil)
	req = req.WithContext(authedContext(userID))
	rec := httptest.NewRecorder()
	CartCount(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data map[string]int `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["count"] != 7 {
		t.Fatalf("expected count 7, got %+v", envelope.Data)
	}
}
