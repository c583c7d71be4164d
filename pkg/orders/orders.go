// Package orders is the catalog/order collaborator boundary. The
// conversation side consumes it exclusively through the tool dispatcher;
// nothing here knows about models, prompts, or replies.
package orders

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no order matched the phone/id combination.
	ErrNotFound = errors.New("order not found")
	// ErrUnknownProduct means an item referenced a product id that is
	// not on the menu.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrEmptyOrder means an order was submitted without items.
	ErrEmptyOrder = errors.New("order has no items")
	// ErrOrderClosed means the order can no longer be changed.
	ErrOrderClosed = errors.New("order is closed")
	// ErrInvalidPayment means the payment method is not accepted.
	ErrInvalidPayment = errors.New("invalid payment method")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// MenuItem is one orderable catalog entry.
type MenuItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Size     string `json:"size"`
	Price    int64  `json:"price"`
	Category string `json:"category"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// NewOrder is the payload to create an order.
type NewOrder struct {
	Phone         string
	Items         []OrderItem
	Address       string
	PaymentMethod string
	Notes         string
}

// Order is the collaborator's view of a placed order.
type Order struct {
	ID            int64       `json:"order_id"`
	Phone         string      `json:"-"`
	Items         []OrderItem `json:"items"`
	Address       string      `json:"delivery_address,omitempty"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Status        Status      `json:"status"`
	Total         int64       `json:"total"`
	ETAMinutes    int         `json:"eta_minutes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Service is the narrow contract the tool handlers depend on.
type Service interface {
	// Menu lists the active catalog.
	Menu(ctx context.Context) ([]MenuItem, error)
	// MenuPhotoURL returns the catalog picture shown alongside menu
	// replies, or "" when none is configured.
	MenuPhotoURL() string
	// CreateOrder validates items against the catalog and places the order.
	CreateOrder(ctx context.Context, order NewOrder) (Order, error)
	// OrderStatus fetches one order; orderID 0 means the sender's latest.
	OrderStatus(ctx context.Context, phone string, orderID int64) (Order, error)
	// UpdateOrder replaces items and/or the delivery address of an open order.
	UpdateOrder(ctx context.Context, phone string, orderID int64, items []OrderItem, address string) (Order, error)
	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, phone string, orderID int64) (Order, error)
}
