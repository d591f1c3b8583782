package notify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы уведомлений.
const (
	TypeOrderCreated       = "OrderCreated"
	TypeStockUpdated       = "StockUpdated"
	TypeOrderStatusUpdated = "OrderStatusUpdated"
)

// OrderCreated отправляется в канал уведомлений о заказах после создания заказа.
type OrderCreated struct {
	Type         string          `json:"type"`
	OrderID      string          `json:"orderId"`
	CustomerID   string          `json:"customerId"`
	CustomerName string          `json:"customerName"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	OrderDateUTC time.Time       `json:"orderDateUtc"`
	Status       string          `json:"status"`
}

// StockUpdated отправляется в канал изменений остатков после списания товара.
type StockUpdated struct {
	Type           string    `json:"type"`
	ProductID      string    `json:"productId"`
	ProductName    string    `json:"productName"`
	PreviousStock  int       `json:"previousStock"`
	NewStock       int       `json:"newStock"`
	UpdatedBy      string    `json:"updatedBy"`
	UpdatedDateUTC time.Time `json:"updatedDateUtc"`
}

// OrderStatusUpdated отправляется в канал уведомлений о заказах после смены статуса.
type OrderStatusUpdated struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	CustomerID     string    `json:"customerId"`
	CustomerName   string    `json:"customerName"`
	ProductName    string    `json:"productName"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	UpdatedBy      string    `json:"updatedBy"`
	UpdatedDateUTC time.Time `json:"updatedDateUtc"`
}
