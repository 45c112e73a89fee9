package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

// MemoryReviewStore implements repository.ReviewRepository in memory.
type MemoryReviewStore struct {
	mu      sync.RWMutex
	nextID  int
	reviews map[string]domain.Review
}

func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{reviews: make(map[string]domain.Review)}
}

func (s *MemoryReviewStore) Create(_ context.Context, review *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reviews {
		if r.ProductID == review.ProductID && r.CustomerID == review.CustomerID {
			return domain.ErrConflict
		}
	}
	s.nextID++
	review.ID = strconv.Itoa(s.nextID)
	review.CreatedAt = now()
	review.UpdatedAt = review.CreatedAt
	s.reviews[review.ID] = *review
	return nil
}

func (s *MemoryReviewStore) GetByID(_ context.Context, id string) (*domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *MemoryReviewStore) ListByProduct(_ context.Context, productID int64, limit, offset int) ([]domain.Review, error) {
	return s.list(func(r domain.Review) bool { return r.ProductID == productID }, limit, offset), nil
}

func (s *MemoryReviewStore) ListByCustomer(_ context.Context, customerID int64, limit, offset int) ([]domain.Review, error) {
	return s.list(func(r domain.Review) bool { return r.CustomerID == customerID }, limit, offset), nil
}

func (s *MemoryReviewStore) list(match func(domain.Review) bool, limit, offset int) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reviews := make([]domain.Review, 0)
	for _, r := range s.reviews {
		if match(r) {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return page(reviews, limit, offset)
}

func (s *MemoryReviewStore) Summary(_ context.Context, productID int64) (*domain.ReviewSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &domain.ReviewSummary{ProductID: productID}
	sum := 0
	for _, r := range s.reviews {
		if r.ProductID == productID {
			summary.ReviewCount++
			sum += r.Rating
		}
	}
	if summary.ReviewCount > 0 {
		summary.AverageRating = float64(sum) / float64(summary.ReviewCount)
	}
	return summary, nil
}

func (s *MemoryReviewStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.reviews, id)
	return nil
}
