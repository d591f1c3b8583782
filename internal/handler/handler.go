// Package handler содержит HTTP-обработчики API сервиса обработки заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/service"
)

const maxUploadSize = 32 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, customerIdentifier, productIdentifier string, quantity int) (*model.Order, error)
	UpdateOrderStatusIfMatch(ctx context.Context, orderID, newStatus, expectedETag string) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error

	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, id string, in service.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AttachProductImage(ctx context.Context, id string, up service.Upload) (*model.Product, error)

	CreateCustomer(ctx context.Context, in service.CustomerInput) (*model.Customer, error)
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, id string, patch service.CustomerPatch) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	UploadProofOfPayment(ctx context.Context, orderID, customerName string, up service.Upload) (*service.UploadResult, error)
}

// Handler реализует HTTP-обработчики API сервиса обработки заказов.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type orderResponse struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	Username    string          `json:"username"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	OrderDate   string          `json:"orderDate"`
	Status      string          `json:"status"`
	ETag        string          `json:"etag"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Username:    o.Username,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Quantity:    o.Quantity,
		UnitPrice:   o.UnitPrice,
		TotalPrice:  o.TotalPrice,
		OrderDate:   o.OrderDate.UTC().Format(time.RFC3339),
		Status:      string(o.Status),
		ETag:        o.ETag,
	}
}

type productResponse struct {
	ID             string          `json:"id"`
	ProductName    string          `json:"productName"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	StockAvailable int             `json:"stockAvailable"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	ETag           string          `json:"etag"`
}

func newProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		ProductName:    p.ProductName,
		Description:    p.Description,
		Price:          p.Price,
		StockAvailable: p.StockAvailable,
		ImageURL:       p.ImageURL,
		ETag:           p.ETag,
	}
}

type customerResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	ShippingAddress string `json:"shippingAddress"`
	ETag            string `json:"etag"`
}

func newCustomerResponse(c model.Customer) customerResponse {
	return customerResponse{
		ID:              c.ID,
		Name:            c.Name,
		Surname:         c.Surname,
		Username:        c.Username,
		Email:           c.Email,
		ShippingAddress: c.ShippingAddress,
		ETag:            c.ETag,
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	res := make([]R, 0, len(items))
	for _, item := range items {
		res = append(res, fn(item))
	}
	return res
}

type createOrderRequest struct {
	CustomerID string `json:"customerId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
}

// CreateOrder создаёт заказ и списывает остаток товара.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.CustomerID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, "create order", err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+order.ID)
	h.writeJSON(w, http.StatusCreated, order.ETag, newOrderResponse(*order))
}

// ListOrders возвращает все заказы, начиная с самых новых.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, "list orders", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", mapSlice(orders, newOrderResponse))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get order", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order.ETag, newOrderResponse(*order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus меняет статус заказа. Заголовок If-Match задаёт ожидаемую версию.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	etag := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	order, err := h.service.UpdateOrderStatusIfMatch(r.Context(), chi.URLParam(r, "id"), req.Status, etag)
	if err != nil {
		h.writeError(w, "update order status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order.ETag, newOrderResponse(*order))
}

// DeleteOrder удаляет заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type productRequest struct {
	ProductName    string          `json:"productName"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	StockAvailable int             `json:"stockAvailable"`
	ImageURL       string          `json:"imageUrl"`
}

func (p productRequest) input() service.ProductInput {
	return service.ProductInput{
		ProductName:    p.ProductName,
		Description:    p.Description,
		Price:          p.Price,
		StockAvailable: p.StockAvailable,
		ImageURL:       p.ImageURL,
	}
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.CreateProduct(r.Context(), req.input())
	if err != nil {
		h.writeError(w, "create product", err)
		return
	}

	w.Header().Set("Location", "/api/products/"+p.ID)
	h.writeJSON(w, http.StatusCreated, p.ETag, newProductResponse(*p))
}

// ListProducts возвращает каталог товаров.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, "list products", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", mapSlice(products, newProductResponse))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get product", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.ETag, newProductResponse(*p))
}

// UpdateProduct перезаписывает товар.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeError(w, "update product", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.ETag, newProductResponse(*p))
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadProductImage сохраняет изображение товара из поля формы ImageFile.
func (h *Handler) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	up, closeFile, ok := formUpload(w, r, "ImageFile")
	if !ok {
		return
	}
	defer closeFile()

	p, err := h.service.AttachProductImage(r.Context(), chi.URLParam(r, "id"), up)
	if err != nil {
		h.writeError(w, "upload product image", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.ETag, newProductResponse(*p))
}

type customerRequest struct {
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	ShippingAddress string `json:"shippingAddress"`
}

// CreateCustomer регистрирует покупателя.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.CreateCustomer(r.Context(), service.CustomerInput{
		Name:            req.Name,
		Surname:         req.Surname,
		Username:        req.Username,
		Email:           req.Email,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeError(w, "create customer", err)
		return
	}

	w.Header().Set("Location", "/api/customers/"+c.ID)
	h.writeJSON(w, http.StatusCreated, c.ETag, newCustomerResponse(*c))
}

// ListCustomers возвращает всех покупателей.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.writeError(w, "list customers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", mapSlice(customers, newCustomerResponse))
}

// GetCustomer возвращает покупателя по идентификатору.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get customer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, c.ETag, newCustomerResponse(*c))
}

type customerPatchRequest struct {
	Name            *string `json:"name"`
	Surname         *string `json:"surname"`
	Username        *string `json:"username"`
	Email           *string `json:"email"`
	ShippingAddress *string `json:"shippingAddress"`
}

// UpdateCustomer изменяет переданные поля покупателя.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), service.CustomerPatch{
		Name:            req.Name,
		Surname:         req.Surname,
		Username:        req.Username,
		Email:           req.Email,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeError(w, "update customer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, c.ETag, newCustomerResponse(*c))
}

// DeleteCustomer удаляет покупателя.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadProofOfPayment сохраняет подтверждение оплаты из поля формы ProofOfPayment.
func (h *Handler) UploadProofOfPayment(w http.ResponseWriter, r *http.Request) {
	up, closeFile, ok := formUpload(w, r, "ProofOfPayment")
	if !ok {
		return
	}
	defer closeFile()

	res, err := h.service.UploadProofOfPayment(r.Context(), r.FormValue("OrderId"), r.FormValue("CustomerName"), up)
	if err != nil {
		h.writeError(w, "upload proof of payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "", res)
}

func formUpload(w http.ResponseWriter, r *http.Request, field string) (service.Upload, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return service.Upload{}, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		http.Error(w, field+" file is required", http.StatusBadRequest)
		return service.Upload{}, nil, false
	}

	up := service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	return up, func() { _ = file.Close() }, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, etag string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if etag != "" {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибку сервиса в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
