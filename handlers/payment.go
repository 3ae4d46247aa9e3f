package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shop-api/middleware"
	"shop-api/models"
	"shop-api/payment"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CreateRazorpayOrder opens a gateway payment intent for the current cart
// total. No order is written yet: the order only comes into existence once
// the payment is verified, so a failed or abandoned payment leaves nothing
// behind.
func (h *OrderHandler) CreateRazorpayOrder(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "CreateRazorpayOrder")
	defer span.End()

	userID := middleware.UserID(c)

	var req models.CreateRazorpayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Complete shipping address is required")
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))

	total, err := cartTotal(ctx, h.db, userID)
	if err != nil {
		span.RecordError(err)
		h.respondCheckoutError(c, err)
		return
	}

	// Gateway amounts are in minor currency units
	receipt := fmt.Sprintf("receipt_%d", time.Now().UnixMilli())
	gatewayOrderID, err := h.gateway.CreateOrder(ctx, total*100, "INR", receipt, map[string]string{
		"user_id": strconv.Itoa(userID),
	})
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create gateway order", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to create Razorpay order")
		return
	}

	span.SetAttributes(attribute.String("gateway.order_id", gatewayOrderID))
	respondData(c, http.StatusOK, "Razorpay order created successfully", gin.H{
		"order_id": gatewayOrderID,
		"amount":   total,
		"currency": "INR",
		"key_id":   payment.KeyID(),
	})
}

// VerifyRazorpayPayment finalizes an online payment. Only a byte-for-byte
// signature match lets the checkout run; an online order therefore always
// carries a signature that was verified at creation time.
func (h *OrderHandler) VerifyRazorpayPayment(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "VerifyRazorpayPayment")
	defer span.End()

	userID := middleware.UserID(c)

	var req models.VerifyRazorpayPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Payment verification details are required")
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.String("gateway.order_id", req.RazorpayOrderID),
	)

	if !payment.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, payment.KeySecret()) {
		middleware.RecordPaymentVerified("signature_mismatch")
		h.logger.Warn("Payment signature mismatch",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("user_id", userID),
			zap.String("gateway_order_id", req.RazorpayOrderID),
		)
		respondError(c, http.StatusBadRequest, "Payment verification failed. Invalid signature")
		return
	}

	conf := verifiedOnlineConfirmation(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)
	order, userEmail, err := h.placeOrder(ctx, userID, req.ShippingAddress, conf)
	if err != nil {
		span.RecordError(err)
		h.respondCheckoutError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	middleware.RecordPaymentVerified("success")
	middleware.RecordOrderPlaced(string(models.PaymentMethodOnline))

	h.publishEvent(ctx, models.OrderEvent{
		OrderID:     order.ID,
		UserID:      userID,
		UserEmail:   userEmail,
		TotalAmount: order.TotalAmount,
		Status:      order.OrderStatus,
		Payment:     order.PaymentMethod,
		EventType:   "payment_verified",
	})

	h.logger.Info("Payment verified and order placed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("user_id", userID),
	)
	respondData(c, http.StatusCreated, "Payment verified and order placed successfully", order)
}
