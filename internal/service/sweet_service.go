package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sweet-shop/internal/domain"
	"sweet-shop/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidPrice         = errors.New("price must not be negative")
	ErrInvalidStockQuantity = errors.New("quantity must not be negative")
)

// SweetInput holds the attributes for creating or updating a sweet
type SweetInput struct {
	Name        string
	Category    string
	Price       float64
	Quantity    int
	Description string
	ImageURL    string
}

// SweetService defines the catalog business logic. Create, Update, Delete,
// and Restock are administrative operations; the rest serve the storefront.
type SweetService interface {
	Create(ctx context.Context, input SweetInput, createdBy uuid.UUID) (*domain.Sweet, error)
	Update(ctx context.Context, id uuid.UUID, input SweetInput) (*domain.Sweet, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Sweet, error)
	List(ctx context.Context, filter repository.SweetFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Sweet, int, error)
	Categories(ctx context.Context) ([]string, error)
	Restock(ctx context.Context, id uuid.UUID, quantity int) (int, error)
}

type sweetService struct {
	sweetRepo repository.SweetRepository
}

// NewSweetService creates a new instance of SweetService
func NewSweetService(sweetRepo repository.SweetRepository) SweetService {
	return &sweetService{sweetRepo: sweetRepo}
}

// Create adds a new sweet to the catalog
func (s *sweetService) Create(ctx context.Context, input SweetInput, createdBy uuid.UUID) (*domain.Sweet, error) {
	if input.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if input.Quantity < 0 {
		return nil, ErrInvalidStockQuantity
	}

	now := time.Now()
	sweet := &domain.Sweet{
		ID:          uuid.New(),
		Name:        input.Name,
		Category:    input.Category,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.sweetRepo.Create(ctx, sweet); err != nil {
		return nil, fmt.Errorf("failed to create sweet: %w", err)
	}

	return sweet, nil
}

// Update replaces the catalog attributes of an existing sweet. Changing the
// price here never alters the total of any recorded purchase.
func (s *sweetService) Update(ctx context.Context, id uuid.UUID, input SweetInput) (*domain.Sweet, error) {
	if input.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if input.Quantity < 0 {
		return nil, ErrInvalidStockQuantity
	}

	sweet, err := s.sweetRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sweet.Name = input.Name
	sweet.Category = input.Category
	sweet.Price = input.Price
	sweet.Quantity = input.Quantity
	sweet.Description = input.Description
	sweet.ImageURL = input.ImageURL
	sweet.UpdatedAt = time.Now()

	if err := s.sweetRepo.Update(ctx, sweet); err != nil {
		return nil, fmt.Errorf("failed to update sweet: %w", err)
	}

	return sweet, nil
}

// Delete removes a sweet from the catalog. Purchase records keep their frozen
// totals; only the display join loses the name.
func (s *sweetService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.sweetRepo.Delete(ctx, id); err != nil {
		return err
	}
	return nil
}

// GetByID retrieves a single sweet
func (s *sweetService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sweet, error) {
	return s.sweetRepo.FindByID(ctx, id)
}

// List retrieves sweets matching the filter with pagination and sorting
func (s *sweetService) List(ctx context.Context, filter repository.SweetFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Sweet, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.sweetRepo.List(ctx, filter, page, pageSize, sortBy, sortOrder)
}

// Categories retrieves the distinct category labels in use
func (s *sweetService) Categories(ctx context.Context) ([]string, error) {
	return s.sweetRepo.Categories(ctx)
}

// Restock increases the stock of a sweet through the same conditional-update
// primitive the purchase path uses, and returns the new quantity
func (s *sweetService) Restock(ctx context.Context, id uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("%w: restock quantity must be at least 1, got %d", ErrInvalidQuantity, quantity)
	}
	return s.sweetRepo.AdjustStock(ctx, id, quantity)
}
