package domain

import (
	"fmt"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID               string    `json:"id"`
	ProductID        int64     `json:"product_id"`
	CustomerID       int64     `json:"customer_id"`
	OrderID          *int64    `json:"order_id,omitempty"`
	Rating           int       `json:"rating"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	HelpfulCount     int       `json:"helpful_count"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r *Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidArgument, MinRating, MaxRating)
	}
	if r.ProductID <= 0 {
		return fmt.Errorf("%w: product_id must be positive", ErrInvalidArgument)
	}
	return nil
}

type ReviewSummary struct {
	ProductID     int64   `json:"product_id"`
	ReviewCount   int64   `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}
