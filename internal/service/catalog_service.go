package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
)

type CatalogService struct {
	uow repository.UnitOfWork
}

func NewCatalogService(uow repository.UnitOfWork) *CatalogService {
	return &CatalogService{uow: uow}
}

func (s *CatalogService) ListProducts(ctx context.Context, categoryID *int64, limit, offset int) ([]domain.Product, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	var products []domain.Product
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		products, err = tx.Products().List(ctx, repository.ProductFilter{
			CategoryID: categoryID,
			Limit:      limit,
			Offset:     offset,
		})
		return err
	})
	if err != nil {
		logUnexpected(ctx, "list products failed", err)
		return nil, err
	}
	return products, nil
}

// GetProduct returns an active product. Inactive products are NotFound.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product *domain.Product
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return product, nil
}

// SearchProducts matches active products whose name or description contains
// q, ignoring case.
func (s *CatalogService) SearchProducts(ctx context.Context, q string, limit, offset int) ([]domain.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrInvalidArgument)
	}
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	var products []domain.Product
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		products, err = tx.Products().List(ctx, repository.ProductFilter{Query: q, Limit: limit, Offset: offset})
		return err
	})
	if err != nil {
		logUnexpected(ctx, "search products failed", err)
		return nil, err
	}
	return products, nil
}

func (s *CatalogService) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product *domain.Product
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().GetBySKU(ctx, sku)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %q: %w", sku, domain.ErrNotFound)
	}
	return product, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		var err error
		categories, err = tx.Products().ListCategories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		return tx.Products().Create(ctx, p)
	})
	if err != nil {
		logUnexpected(ctx, "create product failed", err, "sku", p.SKU)
	}
	return err
}

// UpdateProduct replaces the editable product fields. Prices already
// captured in carts are not touched.
func (s *CatalogService) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: product id is required", domain.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		return tx.Products().Update(ctx, p)
	})
	if err != nil {
		logUnexpected(ctx, "update product failed", err, "product_id", p.ID)
	}
	return err
}

// DeactivateProduct hides a product from the catalog. Carts that still hold
// it fail checkout with NotFound; orders keep their snapshot.
func (s *CatalogService) DeactivateProduct(ctx context.Context, id int64) error {
	err := repository.RunInTx(ctx, s.uow, func(tx repository.Tx) error {
		product, err := tx.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !product.Active {
			return nil
		}
		product.Active = false
		return tx.Products().Update(ctx, product)
	})
	if err != nil {
		logUnexpected(ctx, "deactivate product failed", err, "product_id", id)
	}
	return err
}
