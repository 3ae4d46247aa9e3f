package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Occupation   string    `json:"occupation"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Street       string    `json:"street"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Pincode      string    `json:"pincode"`
	Phone        string    `json:"phone"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Name       string `json:"name" binding:"required,min=2,max=50"`
	Occupation string `json:"occupation" binding:"required,min=2,max=50"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	Pincode    string `json:"pincode" binding:"required"`
	Phone      string `json:"phone" binding:"required,len=10"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         int    `json:"otp" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// CartItem is one row of a user's cart joined with live product data.
type CartItem struct {
	ProductID       int       `json:"product_id"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	Discount        float64   `json:"discount"`
	DiscountedPrice int64     `json:"discounted_price"`
	ImageURL        string    `json:"image_url"`
	Category        string    `json:"category"`
	InStock         bool      `json:"in_stock"`
	Quantity        int       `json:"quantity"`
	AddedAt         time.Time `json:"added_at"`
}

type CartSummary struct {
	TotalItems int   `json:"total_items"`
	Subtotal   int64 `json:"subtotal"`
	ItemCount  int   `json:"item_count"`
}

type AddToCartRequest struct {
	Quantity int `json:"quantity"`
}

type UpdateCartRequest struct {
	Action   string `json:"action" binding:"required,oneof=increase decrease set"`
	Quantity *int   `json:"quantity"`
}
