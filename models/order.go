package models

import "time"

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCard   PaymentMethod = "card"
)

func ValidPaymentMethod(m string) bool {
	switch PaymentMethod(m) {
	case PaymentMethodCOD, PaymentMethodOnline, PaymentMethodCard:
		return true
	}
	return false
}

type ShippingAddress struct {
	Street  string `json:"street" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	Pincode string `json:"pincode" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

// OrderItem is a frozen snapshot of a product at checkout time. Catalog
// changes after checkout never alter a placed order.
type OrderItem struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID                int             `json:"id"`
	UserID            int             `json:"user_id"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       int64           `json:"total_amount"`
	OrderStatus       OrderStatus     `json:"order_status"`
	ShippingAddress   ShippingAddress `json:"shipping_address"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	RazorpayOrderID   string          `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string          `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string          `json:"razorpay_signature,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type CreateOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shipping_address" binding:"required"`
	PaymentMethod   string          `json:"payment_method"`
}

type CreateRazorpayOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shipping_address" binding:"required"`
}

type VerifyRazorpayPaymentRequest struct {
	RazorpayOrderID   string          `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string          `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string          `json:"razorpay_signature" binding:"required"`
	ShippingAddress   ShippingAddress `json:"shipping_address" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderIndexEntry is one row of a user's denormalized pending/completed
// order index. An order lives in exactly one of the two buckets.
type OrderIndexEntry struct {
	OrderID       int        `json:"order_id"`
	OrderDate     time.Time  `json:"order_date"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
}

type OrderEvent struct {
	OrderID     int           `json:"order_id"`
	UserID      int           `json:"user_id"`
	UserEmail   string        `json:"user_email"`
	TotalAmount int64         `json:"total_amount"`
	Status      OrderStatus   `json:"status"`
	Payment     PaymentMethod `json:"payment_method"`
	EventType   string        `json:"event_type"` // order_created, order_cancelled, order_status_changed, payment_verified
}
