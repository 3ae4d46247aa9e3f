package handlers

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shop-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupOrderTest(t *testing.T) (*OrderHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewOrderHandler(db, nil, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(authAs(testUserID))
	router.POST("/orders/create", handler.CreateOrder)
	router.GET("/orders/myOrder", handler.GetMyOrders)
	router.GET("/orders/:orderId", handler.GetOrder)
	router.PUT("/orders/:orderId/cancel", handler.CancelOrder)
	router.PUT("/orders/:orderId/status", handler.UpdateOrderStatus)

	return handler, mock, router
}

func testAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Street:  "12 Tannery Road",
		City:    "Dhaka",
		State:   "Dhaka",
		Pincode: "1212",
		Phone:   "0171234567",
	}
}

var checkoutCartColumns = []string{"product_id", "quantity", "id", "name", "price", "discount", "in_stock"}

var orderColumns = []string{
	"id", "user_id", "total_amount", "order_status", "payment_status", "payment_method",
	"street", "city", "state", "pincode", "phone",
	"razorpay_order_id", "razorpay_payment_id", "razorpay_signature", "created_at", "updated_at",
}

func orderRow(id, userID int, total int64, status, paymentStatus, method string) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, userID, total, status, paymentStatus, method,
		"12 Tannery Road", "Dhaka", "Dhaka", "1212", "0171234567",
		"", "", "", now, now,
	}
}

func expectLoadOrder(mock sqlmock.Sqlmock, row []driver.Value, orderID int) {
	mock.ExpectQuery("SELECT id, user_id, total_amount, order_status, payment_status, payment_method").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(row...))
	mock.ExpectQuery("SELECT product_id, name, price, quantity FROM order_items WHERE order_id = \\$1").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "price", "quantity"}).
			AddRow(10, "belt", int64(500), 2))
}

func TestOrderHandler_CreateOrder_COD(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))
	mock.ExpectQuery("SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.discount, p.in_stock").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(checkoutCartColumns).
			AddRow(10, 2, 10, "belt", 500.0, 0.0, true).
			AddRow(11, 1, 11, "bag", 300.0, 50.0, true))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(testUserID, int64(1150), "processing", "pending", "cod",
			"12 Tannery Road", "Dhaka", "Dhaka", "1212", "0171234567", "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(5, 10, "belt", int64(500), 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(5, 11, "bag", int64(150), 1).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO user_order_index").
		WithArgs(testUserID, 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM cart_items WHERE user_id = \\$1").
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	body, _ := json.Marshal(models.CreateOrderRequest{ShippingAddress: testAddress()})
	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp struct {
		Success bool         `json:"success"`
		Data    models.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Data.TotalAmount != 1150 {
		t.Errorf("Expected total amount 1150, got %d", resp.Data.TotalAmount)
	}
	if resp.Data.OrderStatus != models.OrderStatusProcessing {
		t.Errorf("Expected order status processing, got %s", resp.Data.OrderStatus)
	}
	if resp.Data.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("Expected payment status pending for cod, got %s", resp.Data.PaymentStatus)
	}
	if len(resp.Data.Items) != 2 {
		t.Errorf("Expected 2 order items, got %d", len(resp.Data.Items))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CreateOrder_EmptyCart(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))
	mock.ExpectQuery("SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.discount, p.in_stock").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(checkoutCartColumns))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.CreateOrderRequest{ShippingAddress: testAddress()})
	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Cart is empty") {
		t.Errorf("Expected empty cart error, got: %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CreateOrder_OutOfStockAborts(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))
	mock.ExpectQuery("SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.discount, p.in_stock").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(checkoutCartColumns).
			AddRow(10, 2, 10, "belt", 500.0, 0.0, true).
			AddRow(11, 1, 11, "bag", 300.0, 50.0, false))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.CreateOrderRequest{ShippingAddress: testAddress()})
	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "out of stock") {
		t.Errorf("Expected out of stock error, got: %s", w.Body.String())
	}

	// No order was inserted and no cart row was deleted
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CreateOrder_DeletedProductAborts(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))
	// Second cart row joins against a product the catalog no longer has
	mock.ExpectQuery("SELECT ci.product_id, ci.quantity, p.id, p.name, p.price, p.discount, p.in_stock").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(checkoutCartColumns).
			AddRow(10, 2, 10, "belt", 500.0, 0.0, true).
			AddRow(99, 1, nil, nil, nil, nil, nil))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.CreateOrderRequest{ShippingAddress: testAddress()})
	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Some products in cart no longer exist") {
		t.Errorf("Expected stale product error, got: %s", w.Body.String())
	}

	// No order was inserted and the cart was left untouched
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CreateOrder_MissingAddress(t *testing.T) {
	handler, _, router := setupOrderTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBufferString(`{"shipping_address":{"street":"x"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOrderHandler_CreateOrder_InvalidPaymentMethod(t *testing.T) {
	handler, _, router := setupOrderTest(t)
	defer handler.db.Close()

	body, _ := json.Marshal(models.CreateOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "bitcoin",
	})
	req := httptest.NewRequest("POST", "/orders/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOrderHandler_GetOrder_WrongOwner(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	expectLoadOrder(mock, orderRow(7, 2, 1000, "processing", "pending", "cod"), 7)

	req := httptest.NewRequest("GET", "/orders/7", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestOrderHandler_GetMyOrders_Summary(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows(orderColumns).
		AddRow(orderRow(9, testUserID, 1150, "delivered", "completed", "cod")...).
		AddRow(orderRow(8, testUserID, 500, "processing", "pending", "cod")...).
		AddRow(orderRow(7, testUserID, 300, "processing", "completed", "card")...)
	mock.ExpectQuery("SELECT id, user_id, total_amount, order_status, payment_status, payment_method").
		WithArgs(testUserID).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/orders/myOrder", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Orders  []models.Order `json:"orders"`
			Summary struct {
				Processing int `json:"processing"`
				Delivered  int `json:"delivered"`
			} `json:"summary"`
			TotalOrders int `json:"total_orders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Data.TotalOrders != 3 {
		t.Errorf("Expected 3 orders, got %d", resp.Data.TotalOrders)
	}
	if resp.Data.Summary.Processing != 2 || resp.Data.Summary.Delivered != 1 {
		t.Errorf("Unexpected summary: %+v", resp.Data.Summary)
	}
}

func TestOrderHandler_GetMyOrders_InvalidStatus(t *testing.T) {
	handler, _, router := setupOrderTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest("GET", "/orders/myOrder?status=refunded", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOrderHandler_CancelOrder_Success(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status"}).AddRow(testUserID, "processing"))
	mock.ExpectExec("UPDATE orders SET order_status = \\$1, updated_at = CURRENT_TIMESTAMP WHERE id = \\$2").
		WithArgs("cancelled", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_order_index SET bucket = 'completed', completed_date = \\$1").
		WithArgs(sqlmock.AnyArg(), testUserID, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectLoadOrder(mock, orderRow(5, testUserID, 1150, "cancelled", "pending", "cod"), 5)
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))

	req := httptest.NewRequest("PUT", "/orders/5/cancel", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CancelOrder_EmailLookupFailure(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status"}).AddRow(testUserID, "processing"))
	mock.ExpectExec("UPDATE orders SET order_status = \\$1, updated_at = CURRENT_TIMESTAMP WHERE id = \\$2").
		WithArgs("cancelled", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_order_index SET bucket = 'completed', completed_date = \\$1").
		WithArgs(sqlmock.AnyArg(), testUserID, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectLoadOrder(mock, orderRow(5, testUserID, 1150, "cancelled", "pending", "cod"), 5)
	// Email resolution failing must not fail the cancellation itself
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("PUT", "/orders/5/cancel", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderHandler_CancelOrder_WrongOwner(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status"}).AddRow(2, "processing"))
	mock.ExpectRollback()

	req := httptest.NewRequest("PUT", "/orders/5/cancel", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestOrderHandler_CancelOrder_AlreadyShipped(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status"}).AddRow(testUserID, "shipped"))
	mock.ExpectRollback()

	req := httptest.NewRequest("PUT", "/orders/5/cancel", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Only processing orders can be cancelled") {
		t.Errorf("Unexpected error body: %s", w.Body.String())
	}
}

func TestOrderHandler_UpdateOrderStatus_DeliveredIsTerminal(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status, payment_method FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status", "payment_method"}).
			AddRow(testUserID, "delivered", "cod"))
	mock.ExpectRollback()

	// Re-sending delivered is rejected like any other change
	body, _ := json.Marshal(models.UpdateOrderStatusRequest{Status: "delivered"})
	req := httptest.NewRequest("PUT", "/orders/5/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Cannot change status of delivered order") {
		t.Errorf("Unexpected error body: %s", w.Body.String())
	}
}

func TestOrderHandler_UpdateOrderStatus_InvalidTransition(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status, payment_method FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status", "payment_method"}).
			AddRow(testUserID, "processing", "cod"))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.UpdateOrderStatusRequest{Status: "delivered"})
	req := httptest.NewRequest("PUT", "/orders/5/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Cannot transition order from processing to delivered") {
		t.Errorf("Unexpected error body: %s", w.Body.String())
	}
}

func TestOrderHandler_UpdateOrderStatus_DeliveredCompletesCODPayment(t *testing.T) {
	handler, mock, router := setupOrderTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, order_status, payment_method FROM orders WHERE id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "order_status", "payment_method"}).
			AddRow(testUserID, "shipped", "cod"))
	mock.ExpectExec("UPDATE orders SET order_status = \\$1, payment_status = \\$2, updated_at = CURRENT_TIMESTAMP WHERE id = \\$3").
		WithArgs("delivered", "completed", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_order_index SET bucket = 'completed', completed_date = \\$1").
		WithArgs(sqlmock.AnyArg(), testUserID, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectLoadOrder(mock, orderRow(5, testUserID, 1150, "delivered", "completed", "cod"), 5)
	mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("test@example.com"))

	body, _ := json.Marshal(models.UpdateOrderStatusRequest{Status: "delivered"})
	req := httptest.NewRequest("PUT", "/orders/5/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp struct {
		Message string       `json:"message"`
		Data    models.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Message != "Order status updated from shipped to delivered" {
		t.Errorf("Unexpected message: %s", resp.Message)
	}
	if resp.Data.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("Expected payment completed on cod delivery, got %s", resp.Data.PaymentStatus)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
