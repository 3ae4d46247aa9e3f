package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-api/models"
	"shop-api/pricing"
)

var (
	errEmptyCart    = errors.New("cart is empty. Add items before checkout")
	errUserNotFound = errors.New("user not found")
)

// staleCartItemError: a cart line references a product the catalog no longer
// has. A single stale line aborts the whole checkout.
type staleCartItemError struct {
	ProductID int
}

func (e *staleCartItemError) Error() string {
	return "some products in cart no longer exist"
}

type outOfStockError struct {
	Name string
}

func (e *outOfStockError) Error() string {
	return fmt.Sprintf("product %q is out of stock", e.Name)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type cartLine struct {
	ProductID int
	Name      string
	Price     float64
	Discount  float64
	Quantity  int
}

// loadCartLines reads the cart joined with live catalog data and validates
// every line. Unlike the cart read path, nothing self-heals here: a missing
// or out-of-stock product fails the whole operation so no partial order can
// exist.
func loadCartLines(ctx context.Context, q querier, userID int) ([]cartLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.discount, p.in_stock
		 FROM cart_items ci
		 LEFT JOIN products p ON p.id = ci.product_id
		 WHERE ci.user_id = $1
		 ORDER BY ci.added_at, ci.product_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var line cartLine
		var productID sql.NullInt64
		var name sql.NullString
		var price, discount sql.NullFloat64
		var inStock sql.NullBool

		if err := rows.Scan(&line.ProductID, &line.Quantity,
			&productID, &name, &price, &discount, &inStock); err != nil {
			return nil, err
		}

		if !productID.Valid {
			return nil, &staleCartItemError{ProductID: line.ProductID}
		}
		if !inStock.Bool {
			return nil, &outOfStockError{Name: name.String}
		}

		line.Name = name.String
		line.Price = price.Float64
		line.Discount = discount.Float64
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		return nil, errEmptyCart
	}
	return lines, nil
}

func pricingLines(lines []cartLine) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		out[i] = pricing.Line{UnitPrice: l.Price, Discount: l.Discount, Quantity: l.Quantity}
	}
	return out
}

// cartTotal recomputes the checkout total without writing anything. Used to
// open a gateway intent before the order exists.
func cartTotal(ctx context.Context, q querier, userID int) (int64, error) {
	lines, err := loadCartLines(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return pricing.Total(pricingLines(lines)), nil
}

// paymentConfirmation parameterizes placeOrder over how payment was settled:
// deferred for cod, assumed for card, signature-verified for online.
type paymentConfirmation struct {
	Method            models.PaymentMethod
	Status            models.PaymentStatus
	RazorpayOrderID   string
	RazorpayPaymentID string
	RazorpaySignature string
}

func confirmationForMethod(method models.PaymentMethod) paymentConfirmation {
	status := models.PaymentStatusCompleted
	if method == models.PaymentMethodCOD {
		status = models.PaymentStatusPending
	}
	return paymentConfirmation{Method: method, Status: status}
}

func verifiedOnlineConfirmation(orderID, paymentID, signature string) paymentConfirmation {
	return paymentConfirmation{
		Method:            models.PaymentMethodOnline,
		Status:            models.PaymentStatusCompleted,
		RazorpayOrderID:   orderID,
		RazorpayPaymentID: paymentID,
		RazorpaySignature: signature,
	}
}

// placeOrder turns the user's cart into an immutable order. Cart validation,
// the order insert, the pending-index entry and the cart clear all commit or
// roll back together.
func (h *OrderHandler) placeOrder(ctx context.Context, userID int, addr models.ShippingAddress, conf paymentConfirmation) (*models.Order, string, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	var userEmail string
	if err := tx.QueryRowContext(ctx, "SELECT email FROM users WHERE id = $1", userID).Scan(&userEmail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", errUserNotFound
		}
		return nil, "", err
	}

	lines, err := loadCartLines(ctx, tx, userID)
	if err != nil {
		return nil, "", err
	}

	total := pricing.Total(pricingLines(lines))

	items := make([]models.OrderItem, len(lines))
	for i, l := range lines {
		items[i] = models.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     pricing.SnapshotPrice(l.Price, l.Discount),
			Quantity:  l.Quantity,
		}
	}

	order := models.Order{
		UserID:            userID,
		Items:             items,
		TotalAmount:       total,
		OrderStatus:       models.OrderStatusProcessing,
		ShippingAddress:   addr,
		PaymentStatus:     conf.Status,
		PaymentMethod:     conf.Method,
		RazorpayOrderID:   conf.RazorpayOrderID,
		RazorpayPaymentID: conf.RazorpayPaymentID,
		RazorpaySignature: conf.RazorpaySignature,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_amount, order_status, payment_status, payment_method,
		                     street, city, state, pincode, phone,
		                     razorpay_order_id, razorpay_payment_id, razorpay_signature)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at, updated_at`,
		userID, total, order.OrderStatus, order.PaymentStatus, order.PaymentMethod,
		addr.Street, addr.City, addr.State, addr.Pincode, addr.Phone,
		conf.RazorpayOrderID, conf.RazorpayPaymentID, conf.RazorpaySignature,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, "", err
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, price, quantity) VALUES ($1, $2, $3, $4, $5)",
			order.ID, item.ProductID, item.Name, item.Price, item.Quantity,
		); err != nil {
			return nil, "", err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO user_order_index (user_id, order_id, bucket, order_date) VALUES ($1, $2, 'pending', $3)",
		userID, order.ID, order.CreatedAt,
	); err != nil {
		return nil, "", err
	}

	// Clear the cart entirely, not item by item
	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return &order, userEmail, nil
}
