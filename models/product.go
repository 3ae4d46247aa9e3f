package models

import "time"

var ProductCategories = []string{"Belts", "Purses", "Bags"}

type Product struct {
	ID          int       `json:"id"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Features    []string  `json:"features"`
	ImageURL    string    `json:"image_url"`
	InStock     bool      `json:"in_stock"`
	Discount    float64   `json:"discount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateProductRequest struct {
	Category    string   `json:"category" binding:"required"`
	Name        string   `json:"name" binding:"required,max=100"`
	Price       float64  `json:"price" binding:"required,gte=0"`
	Description string   `json:"description" binding:"required,max=2000"`
	Features    []string `json:"features"`
	ImageURL    string   `json:"image_url" binding:"required"`
	Discount    float64  `json:"discount" binding:"gte=0,lte=100"`
}

type UpdateProductRequest struct {
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	ImageURL    string   `json:"image_url"`
	InStock     *bool    `json:"in_stock"`
	Discount    *float64 `json:"discount"`
}

func ValidCategory(category string) bool {
	for _, c := range ProductCategories {
		if c == category {
			return true
		}
	}
	return false
}
