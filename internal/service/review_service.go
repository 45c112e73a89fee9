package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
)

type ReviewService struct {
	reviews repository.ReviewRepository
	uow     repository.UnitOfWork
}

func NewReviewService(reviews repository.ReviewRepository, uow repository.UnitOfWork) *ReviewService {
	return &ReviewService{reviews: reviews, uow: uow}
}

// CreateReview stores one review per customer and product. The review is
// marked as a verified purchase when the customer has a live order
// containing the product.
func (s *ReviewService) CreateReview(ctx context.Context, customerID int64, review *domain.Review) error {
	review.Title = strings.TrimSpace(review.Title)
	review.Content = strings.TrimSpace(review.Content)
	if err := review.Validate(); err != nil {
		return err
	}

	var verified bool
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		product, err := tx.Products().GetByID(ctx, review.ProductID)
		if err != nil {
			return err
		}
		if !product.Active {
			return fmt.Errorf("product %d: %w", product.ID, domain.ErrNotFound)
		}
		verified, err = tx.Orders().HasPurchased(ctx, customerID, review.ProductID)
		return err
	})
	if err != nil {
		return err
	}

	review.CustomerID = customerID
	review.VerifiedPurchase = verified
	review.HelpfulCount = 0
	if err := s.reviews.Create(ctx, review); err != nil {
		logUnexpected(ctx, "create review failed", err, "customer_id", customerID, "product_id", review.ProductID)
		return err
	}
	return nil
}

func (s *ReviewService) ListReviews(ctx context.Context, productID int64, limit, offset int) ([]domain.Review, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	return s.reviews.ListByProduct(ctx, productID, limit, offset)
}

// ListByCustomer returns the caller's own reviews, newest first.
func (s *ReviewService) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Review, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	return s.reviews.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *ReviewService) Summary(ctx context.Context, productID int64) (*domain.ReviewSummary, error) {
	return s.reviews.Summary(ctx, productID)
}

// DeleteReview lets a customer remove only their own review.
func (s *ReviewService) DeleteReview(ctx context.Context, customerID int64, reviewID string) error {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.CustomerID != customerID {
		return fmt.Errorf("%w: review %s belongs to another customer", domain.ErrForbidden, reviewID)
	}
	return s.reviews.Delete(ctx, reviewID)
}
