package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"shop-api/mailer"
	"shop-api/middleware"
	"shop-api/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	db     *sql.DB
	mail   mailer.Mailer
	logger *zap.Logger
}

func NewAuthHandler(db *sql.DB, mail mailer.Mailer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:     db,
		mail:   mail,
		logger: logger,
	}
}

func (h *AuthHandler) issueToken(user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"admin":   user.IsAdmin,
		"exp":     time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
	return token.SignedString(middleware.JWTSecret())
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(req.Email)

	// Check if user already exists
	var existingID int
	err := h.db.QueryRow("SELECT id FROM users WHERE email = $1", email).Scan(&existingID)
	if err == nil {
		respondError(c, http.StatusConflict, "User with this email already exists")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error("Database error", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		respondInternal(c, err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("Failed to hash password", zap.Error(err))
		respondInternal(c, err)
		return
	}

	var user models.User
	err = h.db.QueryRow(
		`INSERT INTO users (name, occupation, email, password_hash, street, city, state, pincode, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, name, occupation, email, street, city, state, pincode, phone, is_admin, created_at`,
		req.Name, req.Occupation, email, string(hashedPassword),
		req.Street, req.City, req.State, req.Pincode, req.Phone,
	).Scan(&user.ID, &user.Name, &user.Occupation, &user.Email, &user.Street,
		&user.City, &user.State, &user.Pincode, &user.Phone, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		h.logger.Error("Failed to create user", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		respondInternal(c, err)
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		respondInternal(c, err)
		return
	}

	h.logger.Info("User registered", zap.String("email", email))
	respondData(c, http.StatusCreated, "User registered successfully", models.LoginResponse{
		Token: tokenString,
		User:  user,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var user models.User
	err := h.db.QueryRow(
		`SELECT id, name, occupation, email, password_hash, street, city, state, pincode, phone, is_admin, created_at
		 FROM users WHERE email = $1`,
		strings.ToLower(req.Email),
	).Scan(&user.ID, &user.Name, &user.Occupation, &user.Email, &user.PasswordHash,
		&user.Street, &user.City, &user.State, &user.Pincode, &user.Phone, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error("Database error", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		respondInternal(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		respondInternal(c, err)
		return
	}

	h.logger.Info("User logged in", zap.String("email", user.Email))
	respondData(c, http.StatusOK, "User logged in successfully", models.LoginResponse{
		Token: tokenString,
		User:  user,
	})
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID := middleware.UserID(c)

	var user models.User
	err := h.db.QueryRow(
		`SELECT id, name, occupation, email, street, city, state, pincode, phone, is_admin, created_at
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Name, &user.Occupation, &user.Email, &user.Street,
		&user.City, &user.State, &user.Pincode, &user.Phone, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		respondInternal(c, err)
		return
	}

	pending, completed, err := h.loadOrderIndex(userID)
	if err != nil {
		h.logger.Error("Failed to load order index", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, err)
		return
	}

	respondData(c, http.StatusOK, "", gin.H{
		"user":             user,
		"pending_orders":   pending,
		"completed_orders": completed,
	})
}

// loadOrderIndex reads the user's denormalized order buckets. The index is
// maintained transactionally at checkout and on completion, so it never
// disagrees with the orders table.
func (h *AuthHandler) loadOrderIndex(userID int) ([]models.OrderIndexEntry, []models.OrderIndexEntry, error) {
	rows, err := h.db.Query(
		`SELECT order_id, bucket, order_date, completed_date
		 FROM user_order_index WHERE user_id = $1 ORDER BY order_date DESC`,
		userID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	pending := []models.OrderIndexEntry{}
	completed := []models.OrderIndexEntry{}
	for rows.Next() {
		var entry models.OrderIndexEntry
		var bucket string
		var completedDate sql.NullTime
		if err := rows.Scan(&entry.OrderID, &bucket, &entry.OrderDate, &completedDate); err != nil {
			return nil, nil, err
		}
		if completedDate.Valid {
			t := completedDate.Time
			entry.CompletedDate = &t
		}
		if bucket == "completed" {
			completed = append(completed, entry)
		} else {
			pending = append(pending, entry)
		}
	}
	return pending, completed, rows.Err()
}

// ForgotPassword stores a short-lived 4-digit OTP on the user and mails it.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(req.Email)

	var userID int
	var name string
	err := h.db.QueryRow("SELECT id, name FROM users WHERE email = $1", email).Scan(&userID, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "No user found with this email")
			return
		}
		respondInternal(c, err)
		return
	}

	otp := 1000 + rand.Intn(9000)
	expiry := time.Now().Add(10 * time.Minute)

	if _, err := h.db.Exec("UPDATE users SET otp = $1, otp_expires_at = $2 WHERE id = $3", otp, expiry, userID); err != nil {
		respondInternal(c, err)
		return
	}

	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your password reset code is <b>%d</b>. It expires in 10 minutes.</p>",
		name, otp)
	if err := h.mail.Send(email, "Password Reset OTP", body); err != nil {
		h.logger.Error("Failed to send OTP email", zap.Error(err))
		respondInternal(c, err)
		return
	}

	respondData(c, http.StatusOK, "OTP sent successfully to your email", gin.H{
		"email":      email,
		"expires_in": "10 minutes",
	})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(req.Email)

	var userID, storedOTP int
	var expiry sql.NullTime
	err := h.db.QueryRow("SELECT id, otp, otp_expires_at FROM users WHERE email = $1", email).
		Scan(&userID, &storedOTP, &expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "No user found with this email")
			return
		}
		respondInternal(c, err)
		return
	}

	if storedOTP == 0 || storedOTP != req.OTP {
		respondError(c, http.StatusBadRequest, "Invalid OTP")
		return
	}
	if !expiry.Valid || time.Now().After(expiry.Time) {
		respondError(c, http.StatusBadRequest, "OTP has expired")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondInternal(c, err)
		return
	}

	if _, err := h.db.Exec(
		"UPDATE users SET password_hash = $1, otp = 0, otp_expires_at = NULL WHERE id = $2",
		string(hashedPassword), userID,
	); err != nil {
		respondInternal(c, err)
		return
	}

	h.logger.Info("Password reset", zap.String("email", email))
	respondData(c, http.StatusOK, "Password reset successfully", nil)
}
