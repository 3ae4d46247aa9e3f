package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shop-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupProductTest(t *testing.T) (*ProductHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	// Point the client at a dead port so every lookup is a cache miss
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6390",
	})

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewProductHandler(db, redisClient, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/products", handler.GetProducts)
	router.GET("/products/:id", handler.GetProduct)
	router.POST("/products", handler.CreateProduct)
	router.PUT("/products/:id", handler.UpdateProduct)
	router.DELETE("/products/:id", handler.DeleteProduct)

	return handler, mock, router
}

var productTestColumns = []string{"id", "category", "name", "price", "description", "features", "image_url", "in_stock", "discount", "created_at", "updated_at"}

func TestProductHandler_GetProducts_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows(productTestColumns).
		AddRow(1, "Belts", "Classic Belt", 500.0, "Full grain leather belt", "{full grain leather,brass buckle}", "http://img/belt.jpg", true, 0.0, time.Now(), time.Now()).
		AddRow(2, "Bags", "Messenger Bag", 2500.0, "Leather messenger bag", "{water resistant,padded strap}", "http://img/bag.jpg", true, 10.0, time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, category, name, price, description, features, image_url, in_stock, discount, created_at, updated_at FROM products ORDER BY id").
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/products", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Data []models.Product `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("Expected 2 products, got %d", len(resp.Data))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_GetProduct_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows(productTestColumns).
		AddRow(1, "Belts", "Classic Belt", 500.0, "Full grain leather belt", "{full grain leather}", "http://img/belt.jpg", true, 0.0, time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, category, name, price, description, features, image_url, in_stock, discount, created_at, updated_at FROM products WHERE id = \\$1").
		WithArgs("1").
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_GetProduct_NotFound(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id, category, name, price, description, features, image_url, in_stock, discount, created_at, updated_at FROM products WHERE id = \\$1").
		WithArgs("999").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/products/999", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_CreateProduct_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows(productTestColumns).
		AddRow(1, "Purses", "Slim Purse", 900.0, "Hand stitched purse", "{hand stitched}", "http://img/purse.jpg", true, 5.0, time.Now(), time.Now())

	mock.ExpectQuery("INSERT INTO products").
		WithArgs("Purses", "Slim Purse", 900.0, "Hand stitched purse", sqlmock.AnyArg(), "http://img/purse.jpg", 5.0).
		WillReturnRows(rows)

	reqBody := models.CreateProductRequest{
		Category:    "Purses",
		Name:        "Slim Purse",
		Price:       900,
		Description: "Hand stitched purse",
		Features:    []string{"hand stitched"},
		ImageURL:    "http://img/purse.jpg",
		Discount:    5,
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest("POST", "/products", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_CreateProduct_InvalidCategory(t *testing.T) {
	handler, _, router := setupProductTest(t)
	defer handler.db.Close()

	reqBody := models.CreateProductRequest{
		Category:    "Shoes",
		Name:        "Oxford",
		Price:       3000,
		Description: "Leather oxford shoes",
		ImageURL:    "http://img/oxford.jpg",
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest("POST", "/products", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestProductHandler_UpdateProduct_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows(productTestColumns).
		AddRow(1, "Belts", "Classic Belt", 450.0, "Full grain leather belt", "{full grain leather}", "http://img/belt.jpg", true, 10.0, time.Now(), time.Now())

	price := 450.0
	discount := 10.0

	mock.ExpectQuery("UPDATE products SET updated_at = CURRENT_TIMESTAMP").
		WithArgs(price, discount, "1").
		WillReturnRows(rows)

	reqBody := models.UpdateProductRequest{
		Price:    &price,
		Discount: &discount,
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest("PUT", "/products/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_UpdateProduct_InvalidDiscount(t *testing.T) {
	handler, _, router := setupProductTest(t)
	defer handler.db.Close()

	discount := 150.0
	body, _ := json.Marshal(models.UpdateProductRequest{Discount: &discount})
	req := httptest.NewRequest("PUT", "/products/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestProductHandler_DeleteProduct_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("DELETE", "/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_DeleteProduct_NotFound(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs("999").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("DELETE", "/products/999", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
