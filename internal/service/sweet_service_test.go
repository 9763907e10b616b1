package service

import (
	"context"
	"errors"
	"testing"

	"sweet-shop/internal/domain"
	"sweet-shop/internal/repository"

	"github.com/google/uuid"
)

// Mock sweet repository for testing
type mockSweetRepository struct {
	sweets map[uuid.UUID]*domain.Sweet
}

func newMockSweetRepository() *mockSweetRepository {
	return &mockSweetRepository{sweets: make(map[uuid.UUID]*domain.Sweet)}
}

func (m *mockSweetRepository) Create(ctx context.Context, sweet *domain.Sweet) error {
	m.sweets[sweet.ID] = sweet
	return nil
}

func (m *mockSweetRepository) Update(ctx context.Context, sweet *domain.Sweet) error {
	if _, exists := m.sweets[sweet.ID]; !exists {
		return repository.ErrSweetNotFound
	}
	m.sweets[sweet.ID] = sweet
	return nil
}

func (m *mockSweetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, exists := m.sweets[id]; !exists {
		return repository.ErrSweetNotFound
	}
	delete(m.sweets, id)
	return nil
}

func (m *mockSweetRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sweet, error) {
	sweet, exists := m.sweets[id]
	if !exists {
		return nil, repository.ErrSweetNotFound
	}
	copied := *sweet
	return &copied, nil
}

func (m *mockSweetRepository) List(ctx context.Context, filter repository.SweetFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Sweet, int, error) {
	result := make([]*domain.Sweet, 0, len(m.sweets))
	for _, sweet := range m.sweets {
		copied := *sweet
		result = append(result, &copied)
	}
	return result, len(result), nil
}

func (m *mockSweetRepository) Categories(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	categories := []string{}
	for _, sweet := range m.sweets {
		if !seen[sweet.Category] {
			seen[sweet.Category] = true
			categories = append(categories, sweet.Category)
		}
	}
	return categories, nil
}

func (m *mockSweetRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	sweet, exists := m.sweets[id]
	if !exists {
		return 0, repository.ErrSweetNotFound
	}
	if sweet.Quantity+delta < 0 {
		return 0, &repository.InsufficientStockError{
			SweetID:   id,
			Requested: -delta,
			Available: sweet.Quantity,
		}
	}
	sweet.Quantity += delta
	return sweet.Quantity, nil
}

func TestSweetService_CreateRejectsNegativePrice(t *testing.T) {
	svc := NewSweetService(newMockSweetRepository())

	_, err := svc.Create(context.Background(), SweetInput{
		Name:     "Fudge",
		Category: "chocolate",
		Price:    -1.50,
		Quantity: 10,
	}, uuid.New())

	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
}

func TestSweetService_CreateRejectsNegativeQuantity(t *testing.T) {
	svc := NewSweetService(newMockSweetRepository())

	_, err := svc.Create(context.Background(), SweetInput{
		Name:     "Fudge",
		Category: "chocolate",
		Price:    1.50,
		Quantity: -5,
	}, uuid.New())

	if !errors.Is(err, ErrInvalidStockQuantity) {
		t.Errorf("Expected ErrInvalidStockQuantity, got %v", err)
	}
}

func TestSweetService_UpdateNotFound(t *testing.T) {
	svc := NewSweetService(newMockSweetRepository())

	_, err := svc.Update(context.Background(), uuid.New(), SweetInput{
		Name:     "Fudge",
		Category: "chocolate",
		Price:    1.50,
		Quantity: 10,
	})

	if !errors.Is(err, repository.ErrSweetNotFound) {
		t.Errorf("Expected ErrSweetNotFound, got %v", err)
	}
}

func TestSweetService_Restock(t *testing.T) {
	repo := newMockSweetRepository()
	svc := NewSweetService(repo)

	sweet, err := svc.Create(context.Background(), SweetInput{
		Name:     "Gumdrop",
		Category: "gummy",
		Price:    0.25,
		Quantity: 2,
	}, uuid.New())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newQuantity, err := svc.Restock(context.Background(), sweet.ID, 8)
	if err != nil {
		t.Fatalf("Restock failed: %v", err)
	}
	if newQuantity != 10 {
		t.Errorf("Expected quantity 10 after restock, got %d", newQuantity)
	}
}

func TestSweetService_RestockRejectsNonPositive(t *testing.T) {
	repo := newMockSweetRepository()
	svc := NewSweetService(repo)

	sweet, _ := svc.Create(context.Background(), SweetInput{
		Name:     "Gumdrop",
		Category: "gummy",
		Price:    0.25,
		Quantity: 2,
	}, uuid.New())

	for _, quantity := range []int{0, -1, -10} {
		if _, err := svc.Restock(context.Background(), sweet.ID, quantity); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("Restock(%d): expected ErrInvalidQuantity, got %v", quantity, err)
		}
	}

	// Stock must be untouched by rejected restocks
	current, err := svc.GetByID(context.Background(), sweet.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", current.Quantity)
	}
}

func TestSweetService_RestockNotFound(t *testing.T) {
	svc := NewSweetService(newMockSweetRepository())

	if _, err := svc.Restock(context.Background(), uuid.New(), 5); !errors.Is(err, repository.ErrSweetNotFound) {
		t.Errorf("Expected ErrSweetNotFound, got %v", err)
	}
}

func TestSweetService_UpdatePriceDoesNotTouchStock(t *testing.T) {
	repo := newMockSweetRepository()
	svc := NewSweetService(repo)

	sweet, err := svc.Create(context.Background(), SweetInput{
		Name:     "Toffee",
		Category: "caramel",
		Price:    2.00,
		Quantity: 7,
	}, uuid.New())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := svc.Update(context.Background(), sweet.ID, SweetInput{
		Name:     "Toffee",
		Category: "caramel",
		Price:    3.50,
		Quantity: 7,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Price != 3.50 {
		t.Errorf("Expected price 3.50, got %f", updated.Price)
	}
	if updated.Quantity != 7 {
		t.Errorf("Expected quantity 7, got %d", updated.Quantity)
	}
}
