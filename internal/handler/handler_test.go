package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/service"
)

type stubService struct {
	order    *model.Order
	orderErr error
	orders   []model.Order

	gotCustomer string
	gotProduct  string
	gotQuantity int
	gotStatus   string
	gotETag     string
	deleteErr   error

	product    *model.Product
	productErr error
	products   []model.Product
	gotInput   service.ProductInput

	customer    *model.Customer
	customerErr error
	customers   []model.Customer
	gotPatch    service.CustomerPatch

	upload     service.Upload
	uploadBody string
	uploadErr  error
	gotOrderID string
	gotName    string
}

func (s *stubService) CreateOrder(_ context.Context, customer, product string, quantity int) (*model.Order, error) {
	s.gotCustomer, s.gotProduct, s.gotQuantity = customer, product, quantity
	return s.order, s.orderErr
}

func (s *stubService) UpdateOrderStatusIfMatch(_ context.Context, _, status, etag string) (*model.Order, error) {
	s.gotStatus, s.gotETag = status, etag
	return s.order, s.orderErr
}

func (s *stubService) GetOrder(context.Context, string) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) ListOrders(context.Context) ([]model.Order, error) {
	return s.orders, s.orderErr
}

func (s *stubService) DeleteOrder(context.Context, string) error {
	return s.deleteErr
}

func (s *stubService) CreateProduct(_ context.Context, in service.ProductInput) (*model.Product, error) {
	s.gotInput = in
	return s.product, s.productErr
}

func (s *stubService) GetProduct(context.Context, string) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) ListProducts(context.Context) ([]model.Product, error) {
	return s.products, s.productErr
}

func (s *stubService) UpdateProduct(_ context.Context, _ string, in service.ProductInput) (*model.Product, error) {
	s.gotInput = in
	return s.product, s.productErr
}

func (s *stubService) AttachProductImage(_ context.Context, _ string, up service.Upload) (*model.Product, error) {
	if err := s.capture(up); err != nil {
		return nil, err
	}
	return s.product, s.productErr
}

func (s *stubService) CreateCustomer(context.Context, service.CustomerInput) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) GetCustomer(context.Context, string) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) ListCustomers(context.Context) ([]model.Customer, error) {
	return s.customers, s.customerErr
}

func (s *stubService) UpdateCustomer(_ context.Context, _ string, patch service.CustomerPatch) (*model.Customer, error) {
	s.gotPatch = patch
	return s.customer, s.customerErr
}

func (s *stubService) DeleteCustomer(context.Context, string) error {
	return s.deleteErr
}

func (s *stubService) DeleteProduct(context.Context, string) error {
	return s.deleteErr
}

func (s *stubService) UploadProofOfPayment(_ context.Context, orderID, customerName string, up service.Upload) (*service.UploadResult, error) {
	s.gotOrderID, s.gotName = orderID, customerName
	if err := s.capture(up); err != nil {
		return nil, err
	}
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &service.UploadResult{FileName: up.FileName, BlobURL: "mem://payment-proofs/" + up.FileName}, nil
}

func (s *stubService) capture(up service.Upload) error {
	body, err := io.ReadAll(up.Body)
	if err != nil {
		return err
	}
	s.upload, s.uploadBody = up, string(body)
	return nil
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop()).SetupRouter()
}

func sampleOrder() *model.Order {
	return &model.Order{
		ID:          "O1",
		CustomerID:  "C1",
		Username:    "ada",
		ProductID:   "P1",
		ProductName: "Mug",
		Quantity:    3,
		UnitPrice:   decimal.RequireFromString("10.00"),
		TotalPrice:  decimal.RequireFromString("30.00"),
		OrderDate:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:      model.OrderStatusPending,
		ETag:        "v1",
	}
}

func serve(h http.Handler, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder_Created(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	h := newTestRouter(t, svc)

	rec := serve(h, http.MethodPost, "/api/orders", strings.NewReader(`{"customerId":"C1","productId":"Mug","quantity":3}`), nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))
	assert.Equal(t, "/api/orders/O1", rec.Header().Get("Location"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "C1", svc.gotCustomer)
	assert.Equal(t, "Mug", svc.gotProduct)
	assert.Equal(t, 3, svc.gotQuantity)

	var resp orderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "O1", resp.ID)
	assert.True(t, decimal.RequireFromString("30").Equal(resp.TotalPrice))
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.OrderDate)
	assert.Equal(t, "Pending", resp.Status)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "insufficient stock",
			err:        &service.InsufficientStockError{Available: 2},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Insufficient stock. Available: 2",
		},
		{
			name:       "invalid request",
			err:        fmt.Errorf("%w: quantity must be at least 1", service.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantBody:   "quantity must be at least 1",
		},
		{
			name:       "conflict",
			err:        fmt.Errorf("%w: product P1 changed", service.ErrConflict),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "not persisted",
			err:        fmt.Errorf("%w: %w", service.ErrOrderNotPersisted, errors.New("db down")),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, &stubService{orderErr: tt.err})
			rec := serve(h, http.MethodPost, "/api/orders", strings.NewReader(`{"customerId":"C1","productId":"P1","quantity":3}`), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCreateOrder_BadJSON(t *testing.T) {
	h := newTestRouter(t, &stubService{})
	rec := serve(h, http.MethodPost, "/api/orders", strings.NewReader(`{"quantity":`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newTestRouter(t, &stubService{orderErr: fmt.Errorf("order X: %w", service.ErrNotFound)})
	rec := serve(h, http.MethodGet, "/api/orders/X", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders_JSONResponse(t *testing.T) {
	older := *sampleOrder()
	older.ID = "O0"
	h := newTestRouter(t, &stubService{orders: []model.Order{*sampleOrder(), older}})

	rec := serve(h, http.MethodGet, "/api/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []orderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "O1", resp[0].ID)
	assert.Equal(t, "O0", resp[1].ID)
}

func TestListOrders_Empty(t *testing.T) {
	h := newTestRouter(t, &stubService{})
	rec := serve(h, http.MethodGet, "/api/orders", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateOrderStatus_PassesIfMatch(t *testing.T) {
	updated := sampleOrder()
	updated.Status = "Shipped"
	updated.ETag = "v2"
	svc := &stubService{order: updated}
	h := newTestRouter(t, svc)

	rec := serve(h, http.MethodPatch, "/api/orders/O1/status", strings.NewReader(`{"status":"Shipped"}`), map[string]string{"If-Match": `"v1"`})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shipped", svc.gotStatus)
	assert.Equal(t, "v1", svc.gotETag)
	assert.Equal(t, `"v2"`, rec.Header().Get("ETag"))
}

func TestUpdateOrderStatus_Conflict(t *testing.T) {
	h := newTestRouter(t, &stubService{orderErr: fmt.Errorf("%w: order O1 version mismatch", service.ErrConflict)})
	rec := serve(h, http.MethodPatch, "/api/orders/O1/status", strings.NewReader(`{"status":"Shipped"}`), map[string]string{"If-Match": "stale"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteOrder(t *testing.T) {
	h := newTestRouter(t, &stubService{})
	rec := serve(h, http.MethodDelete, "/api/orders/O1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = newTestRouter(t, &stubService{deleteErr: fmt.Errorf("order O1: %w", service.ErrNotFound)})
	rec = serve(h, http.MethodDelete, "/api/orders/O1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProduct_DecodesPrice(t *testing.T) {
	svc := &stubService{product: &model.Product{ID: "P2", ProductName: "Plate", Price: decimal.RequireFromString("4.50"), ETag: "v1"}}
	h := newTestRouter(t, svc)

	rec := serve(h, http.MethodPost, "/api/products", strings.NewReader(`{"productName":"Plate","price":4.5,"stockAvailable":7}`), nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Plate", svc.gotInput.ProductName)
	assert.True(t, decimal.RequireFromString("4.5").Equal(svc.gotInput.Price))
	assert.Equal(t, 7, svc.gotInput.StockAvailable)
}

func TestUpdateProduct_Conflict(t *testing.T) {
	h := newTestRouter(t, &stubService{productErr: service.ErrConflict})
	rec := serve(h, http.MethodPut, "/api/products/P1", strings.NewReader(`{"productName":"Mug","price":"10.00","stockAvailable":1}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func multipartBody(t *testing.T, field, fileName, content string, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadProductImage(t *testing.T) {
	svc := &stubService{product: &model.Product{ID: "P1", ProductName: "Mug", ImageURL: "mem://product-images/mug.png", ETag: "v2"}}
	h := newTestRouter(t, svc)

	body, ct := multipartBody(t, "ImageFile", "mug.png", "png-bytes", nil)
	rec := serve(h, http.MethodPost, "/api/products/P1/image", body, map[string]string{"Content-Type": ct})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mug.png", svc.upload.FileName)
	assert.Equal(t, "png-bytes", svc.uploadBody)

	var resp productResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "mem://product-images/mug.png", resp.ImageURL)
}

func TestUploadProofOfPayment(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	body, ct := multipartBody(t, "ProofOfPayment", "receipt.pdf", "%PDF", map[string]string{
		"OrderId":      "O1",
		"CustomerName": "Ada Lovelace",
	})
	rec := serve(h, http.MethodPost, "/api/uploads/proof-of-payment", body, map[string]string{"Content-Type": ct})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "O1", svc.gotOrderID)
	assert.Equal(t, "Ada Lovelace", svc.gotName)
	assert.Equal(t, "%PDF", svc.uploadBody)

	var resp service.UploadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "receipt.pdf", resp.FileName)
	assert.Equal(t, "mem://payment-proofs/receipt.pdf", resp.BlobURL)
}

func TestUploadProofOfPayment_MissingFile(t *testing.T) {
	h := newTestRouter(t, &stubService{})

	body, ct := multipartBody(t, "", "", "", map[string]string{"OrderId": "O1"})
	rec := serve(h, http.MethodPost, "/api/uploads/proof-of-payment", body, map[string]string{"Content-Type": ct})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomers(t *testing.T) {
	c := &model.Customer{ID: "C1", Name: "Ada", Username: "ada", Email: "ada@example.com", ETag: "v1"}
	h := newTestRouter(t, &stubService{customer: c, customers: []model.Customer{*c}})

	rec := serve(h, http.MethodPost, "/api/customers", strings.NewReader(`{"username":"ada","email":"ada@example.com"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(h, http.MethodGet, "/api/customers/C1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp customerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ada@example.com", resp.Email)

	rec = serve(h, http.MethodGet, "/api/customers", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateCustomer_PassesOnlyGivenFields(t *testing.T) {
	c := &model.Customer{ID: "C1", Username: "ada", Email: "ada@example.com", ShippingAddress: "1 Analytical St", ETag: "v2"}
	svc := &stubService{customer: c}
	h := newTestRouter(t, svc)

	rec := serve(h, http.MethodPut, "/api/customers/C1", strings.NewReader(`{"shippingAddress":"1 Analytical St"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"v2"`, rec.Header().Get("ETag"))
	require.NotNil(t, svc.gotPatch.ShippingAddress)
	assert.Equal(t, "1 Analytical St", *svc.gotPatch.ShippingAddress)
	assert.Nil(t, svc.gotPatch.Email)
	assert.Nil(t, svc.gotPatch.Name)

	h = newTestRouter(t, &stubService{customerErr: fmt.Errorf("%w: customer C1 changed since it was read", service.ErrConflict)})
	rec = serve(h, http.MethodPut, "/api/customers/C1", strings.NewReader(`{"name":"Ada"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(h, http.MethodPut, "/api/customers/C1", strings.NewReader(`{`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCustomerAndProduct(t *testing.T) {
	h := newTestRouter(t, &stubService{})
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/api/customers/C1", nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/api/products/P1", nil, nil).Code)

	h = newTestRouter(t, &stubService{deleteErr: fmt.Errorf("product P1: %w", service.ErrNotFound)})
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/api/customers/C1", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/api/products/P1", nil, nil).Code)
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t, &stubService{})

	rec := serve(h, http.MethodGet, "/api/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPut, "/api/orders", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
