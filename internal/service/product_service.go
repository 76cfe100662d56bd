package service

import (
	"context"
	"fmt"

	"stockguard/internal/model"
	"stockguard/internal/repository"

	"github.com/rs/zerolog"
)

// productService implements ProductService.
type productService struct {
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(productRepo repository.ProductRepository, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// GetByID retrieves a single product by ID.
func (s *productService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		s.logger.Warn().Msg("product ID is empty")
		return nil, model.NewValidationError(model.ErrCodeMissingField, "product ID is required")
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("failed to get product")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if product == nil {
		return nil, model.ErrProductNotFound
	}

	return product, nil
}

// Availability returns the advisory stock view of a product.
func (s *productService) Availability(ctx context.Context, id string) (*model.Availability, error) {
	product, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	availability := &model.Availability{
		ProductID: product.ID,
		Name:      product.Name,
		Available: product.AvailableStock(),
	}

	for _, v := range product.Variants {
		availability.Variants = append(availability.Variants, model.VariantAvailability{
			VariantID: v.ID,
			Name:      v.Name,
			Available: v.Stock,
		})
	}

	return availability, nil
}
