// Package model содержит доменные сущности сервиса обработки заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ключи партиций хранилища сущностей.
const (
	PartitionCustomer = "Customer"
	PartitionProduct  = "Product"
	PartitionOrder    = "Order"
)

// Customer представляет зарегистрированного покупателя.
type Customer struct {
	ID              string
	Name            string
	Surname         string
	Username        string
	Email           string
	ShippingAddress string
	ETag            string
}

// FullName возвращает имя и фамилию покупателя.
func (c Customer) FullName() string {
	switch {
	case c.Name == "":
		return c.Surname
	case c.Surname == "":
		return c.Name
	}
	return c.Name + " " + c.Surname
}

// Product описывает товар каталога и его остаток на складе.
type Product struct {
	ID             string
	ProductName    string
	Description    string
	Price          decimal.Decimal
	StockAvailable int
	ImageURL       string
	ETag           string
}

// OrderStatus описывает статус заказа. Набор допустимых значений не ограничен.
type OrderStatus string

const (
	OrderStatusSubmitted  OrderStatus = "Submitted"
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// Order описывает заказ со снимком названия и цены товара на момент создания.
type Order struct {
	ID          string
	CustomerID  string
	Username    string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	OrderDate   time.Time
	Status      OrderStatus
	ETag        string
}
