package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-api/kafka"
	"shop-api/middleware"
	"shop-api/models"
	"shop-api/payment"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderHandler struct {
	db       *sql.DB
	producer sarama.SyncProducer
	gateway  payment.Gateway
	logger   *zap.Logger
}

func NewOrderHandler(db *sql.DB, producer sarama.SyncProducer, gateway payment.Gateway, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		db:       db,
		producer: producer,
		gateway:  gateway,
		logger:   logger,
	}
}

// validTransitions is the order status machine. delivered and cancelled are
// terminal.
var validTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (h *OrderHandler) publishEvent(ctx context.Context, event models.OrderEvent) {
	if h.producer == nil {
		return
	}
	if err := kafka.PublishOrderEvent(ctx, h.producer, event, h.logger); err != nil {
		// Event delivery is best effort; the order itself is committed
		h.logger.Error("Failed to publish order event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (h *OrderHandler) respondCheckoutError(c *gin.Context, err error) {
	var stale *staleCartItemError
	var oos *outOfStockError
	switch {
	case errors.Is(err, errUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, errEmptyCart):
		respondError(c, http.StatusBadRequest, "Cart is empty. Add items before checkout")
	case errors.As(err, &stale):
		respondError(c, http.StatusBadRequest, "Some products in cart no longer exist")
	case errors.As(err, &oos):
		respondError(c, http.StatusBadRequest, "Product \""+oos.Name+"\" is out of stock")
	default:
		h.logger.Error("Checkout failed", zap.Error(err))
		respondInternal(c, err)
	}
}

// CreateOrder is the cod/card checkout path. The online path goes through
// VerifyRazorpayPayment instead.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	userID := middleware.UserID(c)

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Complete shipping address is required (street, city, state, pincode, phone)")
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = string(models.PaymentMethodCOD)
	}
	if !models.ValidPaymentMethod(method) {
		respondError(c, http.StatusBadRequest, "Invalid payment method. Must be: cod, online, or card")
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.String("payment.method", method),
	)

	order, userEmail, err := h.placeOrder(ctx, userID, req.ShippingAddress, confirmationForMethod(models.PaymentMethod(method)))
	if err != nil {
		span.RecordError(err)
		h.respondCheckoutError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	middleware.RecordOrderPlaced(method)

	h.publishEvent(ctx, models.OrderEvent{
		OrderID:     order.ID,
		UserID:      userID,
		UserEmail:   userEmail,
		TotalAmount: order.TotalAmount,
		Status:      order.OrderStatus,
		Payment:     order.PaymentMethod,
		EventType:   "order_created",
	})

	h.logger.Info("Order placed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount),
	)
	respondData(c, http.StatusCreated, "Order placed successfully", order)
}

func (h *OrderHandler) loadOrder(ctx context.Context, orderID int) (*models.Order, error) {
	var order models.Order
	err := h.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, order_status, payment_status, payment_method,
		        street, city, state, pincode, phone,
		        razorpay_order_id, razorpay_payment_id, razorpay_signature, created_at, updated_at
		 FROM orders WHERE id = $1`,
		orderID,
	).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.OrderStatus, &order.PaymentStatus,
		&order.PaymentMethod, &order.ShippingAddress.Street, &order.ShippingAddress.City,
		&order.ShippingAddress.State, &order.ShippingAddress.Pincode, &order.ShippingAddress.Phone,
		&order.RazorpayOrderID, &order.RazorpayPaymentID, &order.RazorpaySignature,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT product_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id",
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	userID := middleware.UserID(c)
	orderID, err := strconv.Atoi(c.Param("orderId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	order, err := h.loadOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if order.UserID != userID {
		respondError(c, http.StatusForbidden, "Unauthorized: This order does not belong to you")
		return
	}

	respondData(c, http.StatusOK, "", order)
}

func (h *OrderHandler) GetMyOrders(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetMyOrders")
	defer span.End()

	userID := middleware.UserID(c)
	status := c.Query("status")
	if status != "" && !models.ValidOrderStatus(status) {
		respondError(c, http.StatusBadRequest, "Invalid status. Must be: processing, shipped, delivered, or cancelled")
		return
	}

	query := `SELECT id, user_id, total_amount, order_status, payment_status, payment_method,
	                 street, city, state, pincode, phone,
	                 razorpay_order_id, razorpay_payment_id, razorpay_signature, created_at, updated_at
	          FROM orders WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += " AND order_status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}
	defer rows.Close()

	orders := []models.Order{}
	summary := map[models.OrderStatus]int{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.OrderStatus,
			&order.PaymentStatus, &order.PaymentMethod, &order.ShippingAddress.Street,
			&order.ShippingAddress.City, &order.ShippingAddress.State, &order.ShippingAddress.Pincode,
			&order.ShippingAddress.Phone, &order.RazorpayOrderID, &order.RazorpayPaymentID,
			&order.RazorpaySignature, &order.CreatedAt, &order.UpdatedAt); err != nil {
			span.RecordError(err)
			respondInternal(c, err)
			return
		}
		summary[order.OrderStatus]++
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	respondData(c, http.StatusOK, "", gin.H{
		"orders": orders,
		"summary": gin.H{
			"processing": summary[models.OrderStatusProcessing],
			"shipped":    summary[models.OrderStatusShipped],
			"delivered":  summary[models.OrderStatusDelivered],
			"cancelled":  summary[models.OrderStatusCancelled],
		},
		"total_orders": len(orders),
	})
}

// CancelOrder lets the owning user cancel an order still in processing.
// Cancellation is modeled as a form of completion: the order moves from the
// pending index bucket to the completed one.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "CancelOrder")
	defer span.End()

	userID := middleware.UserID(c)
	orderID, err := strconv.Atoi(c.Param("orderId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}
	span.SetAttributes(attribute.Int("order.id", orderID))

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		respondInternal(c, err)
		return
	}
	defer tx.Rollback()

	var ownerID int
	var status models.OrderStatus
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, order_status FROM orders WHERE id = $1",
		orderID,
	).Scan(&ownerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if ownerID != userID {
		respondError(c, http.StatusForbidden, "Unauthorized: This order does not belong to you")
		return
	}
	if status != models.OrderStatusProcessing {
		respondError(c, http.StatusBadRequest,
			"Cannot cancel order with status: "+string(status)+". Only processing orders can be cancelled")
		return
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET order_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		models.OrderStatusCancelled, orderID,
	); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE user_order_index SET bucket = 'completed', completed_date = $1 WHERE user_id = $2 AND order_id = $3",
		time.Now(), userID, orderID,
	); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	order, err := h.loadOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	var userEmail string
	if err := h.db.QueryRowContext(ctx, "SELECT email FROM users WHERE id = $1", userID).Scan(&userEmail); err != nil {
		h.logger.Warn("Failed to resolve user email for event",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
	h.publishEvent(ctx, models.OrderEvent{
		OrderID:     orderID,
		UserID:      userID,
		UserEmail:   userEmail,
		TotalAmount: order.TotalAmount,
		Status:      models.OrderStatusCancelled,
		Payment:     order.PaymentMethod,
		EventType:   "order_cancelled",
	})

	h.logger.Info("Order cancelled", zap.Int("order_id", orderID), zap.Int("user_id", userID))
	respondData(c, http.StatusOK, "Order cancelled successfully", order)
}

// UpdateOrderStatus is the privileged transition endpoint. Terminal states
// reject every change; delivering a cod order also completes its payment and
// migrates the pending index entry.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	orderID, err := strconv.Atoi(c.Param("orderId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidOrderStatus(req.Status) {
		respondError(c, http.StatusBadRequest, "Invalid status. Must be: processing, shipped, delivered, or cancelled")
		return
	}
	newStatus := models.OrderStatus(req.Status)

	span.SetAttributes(
		attribute.Int("order.id", orderID),
		attribute.String("order.status", req.Status),
	)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		respondInternal(c, err)
		return
	}
	defer tx.Rollback()

	var ownerID int
	var current models.OrderStatus
	var method models.PaymentMethod
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, order_status, payment_method FROM orders WHERE id = $1",
		orderID,
	).Scan(&ownerID, &current, &method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if current == models.OrderStatusDelivered {
		respondError(c, http.StatusBadRequest, "Cannot change status of delivered order")
		return
	}
	if !transitionAllowed(current, newStatus) {
		respondError(c, http.StatusBadRequest,
			"Cannot transition order from "+string(current)+" to "+string(newStatus))
		return
	}

	paymentStatus := ""
	if newStatus == models.OrderStatusDelivered && method == models.PaymentMethodCOD {
		paymentStatus = string(models.PaymentStatusCompleted)
	}

	if paymentStatus != "" {
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET order_status = $1, payment_status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3",
			newStatus, paymentStatus, orderID)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET order_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			newStatus, orderID)
	}
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	if newStatus == models.OrderStatusDelivered {
		if _, err := tx.ExecContext(ctx,
			"UPDATE user_order_index SET bucket = 'completed', completed_date = $1 WHERE user_id = $2 AND order_id = $3",
			time.Now(), ownerID, orderID,
		); err != nil {
			span.RecordError(err)
			respondInternal(c, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	order, err := h.loadOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	var userEmail string
	if err := h.db.QueryRowContext(ctx, "SELECT email FROM users WHERE id = $1", ownerID).Scan(&userEmail); err != nil {
		h.logger.Warn("Failed to resolve user email for event",
			zap.Int("user_id", ownerID),
			zap.Error(err),
		)
	}
	h.publishEvent(ctx, models.OrderEvent{
		OrderID:     orderID,
		UserID:      ownerID,
		UserEmail:   userEmail,
		TotalAmount: order.TotalAmount,
		Status:      newStatus,
		Payment:     order.PaymentMethod,
		EventType:   "order_status_changed",
	})

	h.logger.Info("Order status updated",
		zap.Int("order_id", orderID),
		zap.String("from", string(current)),
		zap.String("to", string(newStatus)),
	)
	respondData(c, http.StatusOK,
		"Order status updated from "+string(current)+" to "+string(newStatus), order)
}

func (h *OrderHandler) GetAllOrders(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetAllOrders")
	defer span.End()

	status := c.Query("status")
	if status != "" && !models.ValidOrderStatus(status) {
		respondError(c, http.StatusBadRequest, "Invalid status. Must be: processing, shipped, delivered, or cancelled")
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := `SELECT id, user_id, total_amount, order_status, payment_status, payment_method,
	                 street, city, state, pincode, phone,
	                 razorpay_order_id, razorpay_payment_id, razorpay_signature, created_at, updated_at
	          FROM orders`
	countQuery := "SELECT COUNT(*) FROM orders"
	args := []any{}
	if status != "" {
		query += " WHERE order_status = $1"
		countQuery += " WHERE order_status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)

	var totalOrders int
	if err := h.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalOrders); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	rows, err := h.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.OrderStatus,
			&order.PaymentStatus, &order.PaymentMethod, &order.ShippingAddress.Street,
			&order.ShippingAddress.City, &order.ShippingAddress.State, &order.ShippingAddress.Pincode,
			&order.ShippingAddress.Phone, &order.RazorpayOrderID, &order.RazorpayPaymentID,
			&order.RazorpaySignature, &order.CreatedAt, &order.UpdatedAt); err != nil {
			span.RecordError(err)
			respondInternal(c, err)
			return
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	summary := map[string]int{}
	srows, err := h.db.QueryContext(ctx, "SELECT order_status, COUNT(*) FROM orders GROUP BY order_status")
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}
	defer srows.Close()
	total := 0
	for srows.Next() {
		var s string
		var n int
		if err := srows.Scan(&s, &n); err != nil {
			span.RecordError(err)
			respondInternal(c, err)
			return
		}
		summary[s] = n
		total += n
	}
	summary["total"] = total

	var totalRevenue sql.NullInt64
	if err := h.db.QueryRowContext(ctx,
		"SELECT SUM(total_amount) FROM orders WHERE order_status = $1",
		models.OrderStatusDelivered,
	).Scan(&totalRevenue); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	totalPages := (totalOrders + limit - 1) / limit
	respondData(c, http.StatusOK, "", gin.H{
		"orders": orders,
		"pagination": gin.H{
			"current_page":    page,
			"total_pages":     totalPages,
			"total_orders":    totalOrders,
			"orders_per_page": limit,
			"has_next_page":   page < totalPages,
			"has_prev_page":   page > 1,
		},
		"summary":       summary,
		"total_revenue": totalRevenue.Int64,
	})
}
