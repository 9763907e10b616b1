package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sweet-shop/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrSweetNotFound     = errors.New("sweet not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// SweetFilter holds the optional filters for listing sweets
type SweetFilter struct {
	Query    string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

// SweetRepository defines the interface for sweet catalog data access.
// AdjustStock is the conditional-update primitive: the stored quantity is
// mutated in a single statement that refuses to go negative, never through a
// read-then-write pair.
type SweetRepository interface {
	Create(ctx context.Context, sweet *domain.Sweet) error
	Update(ctx context.Context, sweet *domain.Sweet) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Sweet, error)
	List(ctx context.Context, filter SweetFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Sweet, int, error)
	Categories(ctx context.Context) ([]string, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

type sweetRepository struct {
	db *sql.DB
}

// NewSweetRepository creates a new instance of SweetRepository
func NewSweetRepository(db *sql.DB) SweetRepository {
	return &sweetRepository{db: db}
}

// Create inserts a new sweet into the database using parameterized queries
func (r *sweetRepository) Create(ctx context.Context, sweet *domain.Sweet) error {
	query := `
		INSERT INTO sweets (id, name, category, price, quantity, description, image_url, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		sweet.ID,
		sweet.Name,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		sweet.Description,
		sweet.ImageURL,
		sweet.CreatedBy,
		sweet.CreatedAt,
		sweet.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create sweet: %w", err)
	}

	return nil
}

// Update updates an existing sweet in the database using parameterized queries
func (r *sweetRepository) Update(ctx context.Context, sweet *domain.Sweet) error {
	query := `
		UPDATE sweets
		SET name = $2, category = $3, price = $4, quantity = $5,
		    description = $6, image_url = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		sweet.ID,
		sweet.Name,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		sweet.Description,
		sweet.ImageURL,
		sweet.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update sweet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSweetNotFound
	}

	return nil
}

// Delete removes a sweet from the database using parameterized queries
func (r *sweetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sweets WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete sweet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSweetNotFound
	}

	return nil
}

// FindByID retrieves a sweet by ID using parameterized queries
func (r *sweetRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sweet, error) {
	query := `
		SELECT id, name, category, price, quantity, description, image_url, created_by, created_at, updated_at
		FROM sweets
		WHERE id = $1
	`

	sweet := &domain.Sweet{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sweet.ID,
		&sweet.Name,
		&sweet.Category,
		&sweet.Price,
		&sweet.Quantity,
		&sweet.Description,
		&sweet.ImageURL,
		&sweet.CreatedBy,
		&sweet.CreatedAt,
		&sweet.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSweetNotFound
		}
		return nil, fmt.Errorf("failed to find sweet by ID: %w", err)
	}

	return sweet, nil
}

// List retrieves sweets with optional filters, pagination, and sorting
func (r *sweetRepository) List(ctx context.Context, filter SweetFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Sweet, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"name":       true,
		"category":   true,
		"price":      true,
		"quantity":   true,
		"created_at": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at" // Default sort field
	}

	// Validate sort order
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc // Default sort order
	}

	// Build the WHERE clause
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if strings.TrimSpace(filter.Query) != "" {
		pattern := "%" + filter.Query + "%"
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR category ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex, argIndex))
		args = append(args, pattern)
		argIndex++
	}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total matching sweets
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sweets %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sweets: %w", err)
	}

	// Calculate offset
	offset := (page - 1) * pageSize

	// Build the main query with sorting and pagination
	query := fmt.Sprintf(`
		SELECT id, name, category, price, quantity, description, image_url, created_by, created_at, updated_at
		FROM sweets
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sweets: %w", err)
	}
	defer rows.Close()

	sweets := []*domain.Sweet{}
	for rows.Next() {
		sweet := &domain.Sweet{}
		err := rows.Scan(
			&sweet.ID,
			&sweet.Name,
			&sweet.Category,
			&sweet.Price,
			&sweet.Quantity,
			&sweet.Description,
			&sweet.ImageURL,
			&sweet.CreatedBy,
			&sweet.CreatedAt,
			&sweet.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan sweet: %w", err)
		}
		sweets = append(sweets, sweet)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating sweets: %w", err)
	}

	return sweets, total, nil
}

// Categories retrieves the distinct category labels in use
func (r *sweetRepository) Categories(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT category
		FROM sweets
		ORDER BY category ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// AdjustStock changes the stored quantity by delta in a single conditional
// statement and returns the new quantity. A negative delta that would take the
// quantity below zero leaves the row untouched and returns
// ErrInsufficientStock.
func (r *sweetRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE sweets
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity
	`

	var quantity int
	err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&quantity)
	if err == nil {
		return quantity, nil
	}

	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	// The conditional update matched no row: distinguish a missing sweet from
	// insufficient stock.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sweets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check sweet existence: %w", err)
	}

	if !exists {
		return 0, ErrSweetNotFound
	}

	return 0, ErrInsufficientStock
}
