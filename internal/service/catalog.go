package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/repository"
	"github.com/mmeshcher/retail-orders/internal/validation"
)

// Префиксы ключей в хранилище файлов.
const (
	productImagesPrefix = "product-images/"
	paymentProofsPrefix = "payment-proofs/"
)

// CustomerInput содержит поля нового покупателя.
type CustomerInput struct {
	Name            string
	Surname         string
	Username        string
	Email           string
	ShippingAddress string
}

// CustomerPatch содержит изменяемые поля покупателя. nil оставляет поле без изменений.
type CustomerPatch struct {
	Name            *string
	Surname         *string
	Username        *string
	Email           *string
	ShippingAddress *string
}

// ProductInput содержит изменяемые поля товара.
type ProductInput struct {
	ProductName    string
	Description    string
	Price          decimal.Decimal
	StockAvailable int
	ImageURL       string
}

// Upload описывает загружаемый файл.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// UploadResult описывает сохранённый файл.
type UploadResult struct {
	FileName string `json:"fileName"`
	BlobURL  string `json:"blobUrl"`
}

// CreateCustomer регистрирует покупателя.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*model.Customer, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, invalidf("username is required")
	}
	if !validation.IsValidEmail(in.Email) {
		return nil, invalidf("invalid email %q", in.Email)
	}

	c, err := s.repo.InsertCustomer(ctx, model.Customer{
		ID:              s.newID(),
		Name:            strings.TrimSpace(in.Name),
		Surname:         strings.TrimSpace(in.Surname),
		Username:        in.Username,
		Email:           in.Email,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// GetCustomer возвращает покупателя по ключу.
func (s *Service) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// ListCustomers возвращает всех покупателей.
func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	customers, err := collect(s.repo.QueryCustomers(ctx))
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// UpdateCustomer применяет изменения к покупателю по прочитанной версии.
func (s *Service) UpdateCustomer(ctx context.Context, id string, patch CustomerPatch) (*model.Customer, error) {
	current, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&next.Name, patch.Name)
	apply(&next.Surname, patch.Surname)
	apply(&next.Username, patch.Username)
	apply(&next.Email, patch.Email)
	apply(&next.ShippingAddress, patch.ShippingAddress)

	if next.Username == "" {
		return nil, invalidf("username is required")
	}
	if !validation.IsValidEmail(next.Email) {
		return nil, invalidf("invalid email %q", next.Email)
	}

	updated, err := s.repo.UpdateCustomer(ctx, next, current.ETag)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, fmt.Errorf("%w: customer %s changed since it was read", ErrConflict, id)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return updated, nil
}

// DeleteCustomer удаляет покупателя. Его заказы сохраняются.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

func validateProduct(in ProductInput) (ProductInput, error) {
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductName == "" {
		return in, invalidf("product name is required")
	}
	if in.Price.IsNegative() {
		return in, invalidf("price must not be negative")
	}
	if in.StockAvailable < 0 {
		return in, invalidf("stock must not be negative")
	}
	in.Price = in.Price.Round(2)
	return in, nil
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	in, err := validateProduct(in)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.InsertProduct(ctx, model.Product{
		ID:             s.newID(),
		ProductName:    in.ProductName,
		Description:    strings.TrimSpace(in.Description),
		Price:          in.Price,
		StockAvailable: in.StockAvailable,
		ImageURL:       strings.TrimSpace(in.ImageURL),
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// GetProduct возвращает товар по ключу.
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts возвращает все товары.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := collect(s.repo.QueryProducts(ctx))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// UpdateProduct перезаписывает товар по прочитанной версии. Существующие заказы не меняются.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*model.Product, error) {
	in, err := validateProduct(in)
	if err != nil {
		return nil, err
	}

	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.ProductName = in.ProductName
	next.Description = strings.TrimSpace(in.Description)
	next.Price = in.Price
	next.StockAvailable = in.StockAvailable
	if url := strings.TrimSpace(in.ImageURL); url != "" {
		next.ImageURL = url
	}

	return s.writeProduct(ctx, next, current.ETag)
}

// DeleteProduct удаляет товар из каталога. Снимки в заказах не меняются.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// AttachProductImage сохраняет изображение товара и записывает его адрес.
func (s *Service) AttachProductImage(ctx context.Context, id string, up Upload) (*model.Product, error) {
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	body := &countingReader{r: up.Body}
	if up.Body != nil {
		up.Body = body
	}
	res, err := s.upload(ctx, productImagesPrefix, up)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product image uploaded",
		zap.String("productID", id),
		zap.String("name", res.FileName),
		zap.Int64("size", body.n),
	)

	next := *current
	next.ImageURL = res.BlobURL
	return s.writeProduct(ctx, next, current.ETag)
}

func (s *Service) writeProduct(ctx context.Context, p model.Product, etag string) (*model.Product, error) {
	updated, err := s.repo.UpdateProduct(ctx, p, etag)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, fmt.Errorf("%w: product %s changed since it was read", ErrConflict, p.ID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("product %s: %w", p.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// UploadProofOfPayment сохраняет подтверждение оплаты заказа.
func (s *Service) UploadProofOfPayment(ctx context.Context, orderID, customerName string, up Upload) (*UploadResult, error) {
	prefix := paymentProofsPrefix
	if orderID = strings.TrimSpace(orderID); orderID != "" {
		prefix += validation.SafeFileName(orderID) + "/"
	}

	res, err := s.upload(ctx, prefix, up)
	if err != nil {
		return nil, err
	}

	s.logger.Info("proof of payment uploaded",
		zap.String("orderID", orderID),
		zap.String("customerName", strings.TrimSpace(customerName)),
		zap.String("url", res.BlobURL),
	)
	return res, nil
}

func (s *Service) upload(ctx context.Context, prefix string, up Upload) (*UploadResult, error) {
	if s.blobs == nil {
		return nil, errors.New("blob storage is not configured")
	}
	if up.Body == nil {
		return nil, invalidf("file is required")
	}

	name := validation.SafeFileName(up.FileName)
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := s.blobs.Upload(ctx, prefix+s.newID()+"-"+name, contentType, up.Body)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return &UploadResult{FileName: name, BlobURL: url}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
