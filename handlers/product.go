package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-api/cache"
	"shop-api/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

type ProductHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewProductHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

const productColumns = "id, category, name, price, description, features, image_url, in_stock, discount, created_at, updated_at"

func scanProduct(row interface{ Scan(...any) error }, p *models.Product) error {
	return row.Scan(&p.ID, &p.Category, &p.Name, &p.Price, &p.Description,
		pq.Array(&p.Features), &p.ImageURL, &p.InStock, &p.Discount, &p.CreatedAt, &p.UpdatedAt)
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	if cached, err := cache.GetProductList(ctx, h.redisClient); err == nil {
		var products []models.Product
		if err := json.Unmarshal(cached, &products); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			respondData(c, http.StatusOK, "", products)
			return
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	rows, err := h.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch products", zap.Error(err))
		respondInternal(c, err)
		return
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan product", zap.Error(err))
			continue
		}
		products = append(products, p)
	}

	cache.SetProductList(ctx, h.redisClient, products, productCacheTTL)

	span.SetAttributes(attribute.Int("products.count", len(products)))
	respondData(c, http.StatusOK, "", products)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	if cached, err := cache.GetProduct(ctx, h.redisClient, id); err == nil {
		var product models.Product
		if err := json.Unmarshal(cached, &product); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			respondData(c, http.StatusOK, "", product)
			return
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var product models.Product
	err := scanProduct(h.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id), &product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.Error(err))
		respondInternal(c, err)
		return
	}

	cache.SetProduct(ctx, h.redisClient, id, product, productCacheTTL)

	respondData(c, http.StatusOK, "", product)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if !models.ValidCategory(req.Category) {
		respondError(c, http.StatusBadRequest, "Invalid category. Must be one of: Belts, Purses, Bags")
		return
	}

	var product models.Product
	err := scanProduct(h.db.QueryRowContext(ctx,
		`INSERT INTO products (category, name, price, description, features, image_url, discount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+productColumns,
		req.Category, req.Name, req.Price, req.Description, pq.Array(req.Features), req.ImageURL, req.Discount,
	), &product)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create product", zap.Error(err))
		respondInternal(c, err)
		return
	}

	cache.InvalidateProduct(ctx, h.redisClient, strconv.Itoa(product.ID))

	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created", zap.Int("product_id", product.ID))
	respondData(c, http.StatusCreated, "Product created successfully", product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if req.Category != "" && !models.ValidCategory(req.Category) {
		respondError(c, http.StatusBadRequest, "Invalid category. Must be one of: Belts, Purses, Bags")
		return
	}
	if req.Discount != nil && (*req.Discount < 0 || *req.Discount > 100) {
		respondError(c, http.StatusBadRequest, "Discount must be between 0 and 100")
		return
	}
	if req.Price != nil && *req.Price < 0 {
		respondError(c, http.StatusBadRequest, "Price cannot be negative")
		return
	}

	// Build update query dynamically
	query := "UPDATE products SET updated_at = CURRENT_TIMESTAMP"
	args := []any{}
	argPos := 1

	appendSet := func(col string, val any) {
		query += ", " + col + " = $" + strconv.Itoa(argPos)
		args = append(args, val)
		argPos++
	}

	if req.Category != "" {
		appendSet("category", req.Category)
	}
	if req.Name != "" {
		appendSet("name", req.Name)
	}
	if req.Price != nil {
		appendSet("price", *req.Price)
	}
	if req.Description != "" {
		appendSet("description", req.Description)
	}
	if req.Features != nil {
		appendSet("features", pq.Array(req.Features))
	}
	if req.ImageURL != "" {
		appendSet("image_url", req.ImageURL)
	}
	if req.InStock != nil {
		appendSet("in_stock", *req.InStock)
	}
	if req.Discount != nil {
		appendSet("discount", *req.Discount)
	}

	query += " WHERE id = $" + strconv.Itoa(argPos) + " RETURNING " + productColumns
	args = append(args, id)

	var product models.Product
	err := scanProduct(h.db.QueryRowContext(ctx, query, args...), &product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to update product", zap.Error(err))
		respondInternal(c, err)
		return
	}

	cache.InvalidateProduct(ctx, h.redisClient, id)

	h.logger.Info("Product updated", zap.String("product_id", id))
	respondData(c, http.StatusOK, "Product updated successfully", product)
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	result, err := h.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to delete product", zap.Error(err))
		respondInternal(c, err)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		respondError(c, http.StatusNotFound, "Product not found")
		return
	}

	cache.InvalidateProduct(ctx, h.redisClient, id)

	h.logger.Info("Product deleted", zap.String("product_id", id))
	respondData(c, http.StatusOK, "Product deleted successfully", nil)
}
