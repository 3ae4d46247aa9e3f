package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"shop-api/middleware"
	"shop-api/models"
	"shop-api/pricing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CartHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCartHandler(db *sql.DB, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		db:     db,
		logger: logger,
	}
}

// loadCart returns the user's cart joined with live product data, ordered by
// when each item was added. Items whose product no longer exists are dropped
// from the result and deleted from the table (self-healing read).
func (h *CartHandler) loadCart(ctx context.Context, userID int) ([]models.CartItem, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT ci.product_id, ci.quantity, ci.added_at,
		        p.id, p.name, p.price, p.discount, p.image_url, p.category, p.in_stock
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

	items := []models.CartItem{}
	var stale []int64
	for rows.Next() {
		var item models.CartItem
		var productID sql.NullInt64
		var name, imageURL, category sql.NullString
		var price, discount sql.NullFloat64
		var inStock sql.NullBool

		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt,
			&productID, &name, &price, &discount, &imageURL, &category, &inStock); err != nil {
			return nil, err
		}

		if !productID.Valid {
			stale = append(stale, int64(item.ProductID))
			continue
		}

		item.Name = name.String
		item.Price = price.Float64
		item.Discount = discount.Float64
		item.DiscountedPrice = pricing.SnapshotPrice(price.Float64, discount.Float64)
		item.ImageURL = imageURL.String
		item.Category = category.String
		item.InStock = inStock.Bool
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stale) > 0 {
		if _, err := h.db.ExecContext(ctx,
			"DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)",
			userID, pq.Array(stale),
		); err != nil {
			return nil, err
		}
		h.logger.Info("Compacted cart",
			zap.Int("user_id", userID),
			zap.Int("removed", len(stale)),
		)
	}

	return items, nil
}

func cartSummary(items []models.CartItem) models.CartSummary {
	lines := make([]pricing.Line, len(items))
	totalItems := 0
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: item.Price, Discount: item.Discount, Quantity: item.Quantity}
		totalItems += item.Quantity
	}
	return models.CartSummary{
		TotalItems: totalItems,
		Subtotal:   pricing.Total(lines),
		ItemCount:  len(items),
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "GetCart")
	defer span.End()

	userID := middleware.UserID(c)
	span.SetAttributes(attribute.Int("user.id", userID))

	items, err := h.loadCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load cart", zap.Error(err))
		respondInternal(c, err)
		return
	}

	respondData(c, http.StatusOK, "", gin.H{
		"cart":    items,
		"summary": cartSummary(items),
	})
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "AddToCart")
	defer span.End()

	userID := middleware.UserID(c)
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	req := models.AddToCartRequest{Quantity: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Quantity < 1 {
		respondError(c, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.Int("product.id", productID),
		attribute.Int("quantity", req.Quantity),
	)

	var inStock bool
	err = h.db.QueryRowContext(ctx, "SELECT in_stock FROM products WHERE id = $1", productID).Scan(&inStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}
		span.RecordError(err)
		respondInternal(c, err)
		return
	}
	if !inStock {
		respondError(c, http.StatusBadRequest, "Product is currently out of stock")
		return
	}

	// Merge quantities if the product is already in the cart; the primary
	// key guarantees there is never a duplicate row.
	if _, err := h.db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		 VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, added_at = CURRENT_TIMESTAMP`,
		userID, productID, req.Quantity,
	); err != nil {
		// The user_id foreign key trips if the account vanished under a
		// still-valid token
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to add to cart", zap.Error(err))
		respondInternal(c, err)
		return
	}

	middleware.RecordCartOperation("add")

	items, err := h.loadCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	respondData(c, http.StatusOK, "Product added to cart successfully", gin.H{
		"cart":    items,
		"summary": cartSummary(items),
	})
}

func (h *CartHandler) UpdateCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "UpdateCart")
	defer span.End()

	userID := middleware.UserID(c)
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req models.UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Action must be 'increase', 'decrease', or 'set'")
		return
	}
	if req.Action == "set" && (req.Quantity == nil || *req.Quantity < 0) {
		respondError(c, http.StatusBadRequest, "Quantity must be a non-negative number for 'set' action")
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.Int("product.id", productID),
		attribute.String("action", req.Action),
	)

	var current int
	err = h.db.QueryRowContext(ctx,
		"SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "Product not found in cart")
			return
		}
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	newQuantity := current
	switch req.Action {
	case "increase":
		newQuantity++
	case "decrease":
		newQuantity--
	case "set":
		newQuantity = *req.Quantity
	}

	// Reaching zero removes the item instead of erroring
	if newQuantity <= 0 {
		if _, err := h.db.ExecContext(ctx,
			"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
			userID, productID,
		); err != nil {
			span.RecordError(err)
			respondInternal(c, err)
			return
		}

		middleware.RecordCartOperation("update")

		items, err := h.loadCart(ctx, userID)
		if err != nil {
			respondInternal(c, err)
			return
		}
		respondData(c, http.StatusOK, "Product removed from cart", gin.H{
			"cart":    items,
			"removed": true,
		})
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE user_id = $2 AND product_id = $3",
		newQuantity, userID, productID,
	); err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	middleware.RecordCartOperation("update")

	items, err := h.loadCart(ctx, userID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	respondData(c, http.StatusOK, "Cart updated successfully", gin.H{
		"cart":    items,
		"summary": cartSummary(items),
	})
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	ctx, span := otel.Tracer("shop-api").Start(c.Request.Context(), "RemoveFromCart")
	defer span.End()

	userID := middleware.UserID(c)
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid product ID")
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.Int("product.id", productID),
	)

	result, err := h.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID,
	)
	if err != nil {
		span.RecordError(err)
		respondInternal(c, err)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		respondError(c, http.StatusNotFound, "Product not found in cart")
		return
	}

	middleware.RecordCartOperation("remove")

	items, err := h.loadCart(ctx, userID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	respondData(c, http.StatusOK, "Product removed from cart", gin.H{
		"cart":    items,
		"summary": cartSummary(items),
	})
}
