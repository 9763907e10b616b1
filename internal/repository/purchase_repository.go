package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"sweet-shop/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTxConflict signals that the purchase transaction was aborted by a
	// serialization failure or deadlock and may be retried.
	ErrTxConflict = errors.New("purchase transaction conflict")
)

// InsufficientStockError reports a purchase rejected for lack of stock,
// carrying the requested and available quantities for the caller's message.
type InsufficientStockError struct {
	SweetID   uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sweet %s: requested %d, available %d", e.SweetID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) match
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PurchaseRepository defines the interface for the purchase ledger. The ledger
// is append-only: ExecutePurchase is the only write, and it couples the stock
// decrement and the ledger append in one database transaction so that neither
// can be observed without the other.
type PurchaseRepository interface {
	ExecutePurchase(ctx context.Context, sweetID, userID uuid.UUID, quantity int) (*domain.Purchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PurchaseDetail, error)
	ListBySweet(ctx context.Context, sweetID uuid.UUID) ([]*domain.Purchase, error)
}

type purchaseRepository struct {
	db *sql.DB
}

// NewPurchaseRepository creates a new instance of PurchaseRepository
func NewPurchaseRepository(db *sql.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

// ExecutePurchase atomically decrements stock and appends a purchase record.
//
// The decrement is a conditional single-statement update: concurrent purchase
// transactions for the same sweet serialize on the row lock, and the
// quantity >= n predicate is re-evaluated after the lock is acquired, so the
// sum of committed decrements can never exceed the quantity that was
// available. The unit price used for the total is the one returned by that
// same statement, never a client-supplied or re-read value.
func (r *purchaseRepository) ExecutePurchase(ctx context.Context, sweetID, userID uuid.UUID, quantity int) (*domain.Purchase, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin purchase transaction: %w", err)
	}
	defer tx.Rollback()

	decrementQuery := `
		UPDATE sweets
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity, price
	`

	var remaining int
	var price float64
	err = tx.QueryRowContext(ctx, decrementQuery, sweetID, quantity).Scan(&remaining, &price)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, mapTxError(err, "failed to decrement stock")
		}

		// No row matched: either the sweet does not exist or the stock is
		// short. Look up the current quantity to tell the two apart.
		var available int
		err = tx.QueryRowContext(ctx, `SELECT quantity FROM sweets WHERE id = $1`, sweetID).Scan(&available)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrSweetNotFound
			}
			return nil, mapTxError(err, "failed to read stock level")
		}

		return nil, &InsufficientStockError{
			SweetID:   sweetID,
			Requested: quantity,
			Available: available,
		}
	}

	purchase := &domain.Purchase{
		ID:          uuid.New(),
		SweetID:     sweetID,
		UserID:      userID,
		Quantity:    quantity,
		TotalPrice:  math.Round(price*float64(quantity)*100) / 100,
		PurchasedAt: time.Now().UTC(),
	}

	insertQuery := `
		INSERT INTO purchases (id, sweet_id, user_id, quantity, total_price, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.ExecContext(
		ctx,
		insertQuery,
		purchase.ID,
		purchase.SweetID,
		purchase.UserID,
		purchase.Quantity,
		purchase.TotalPrice,
		purchase.PurchasedAt,
	)
	if err != nil {
		return nil, mapTxError(err, "failed to append purchase record")
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err, "failed to commit purchase transaction")
	}

	return purchase, nil
}

// ListByUser retrieves a user's purchase history, most recent first, joined
// with catalog data for display. Deleted sweets appear with empty name and
// category.
func (r *purchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PurchaseDetail, error) {
	query := `
		SELECT p.id, p.sweet_id, p.user_id, p.quantity, p.total_price, p.purchased_at,
		       COALESCE(s.name, ''), COALESCE(s.category, '')
		FROM purchases p
		LEFT JOIN sweets s ON s.id = p.sweet_id
		WHERE p.user_id = $1
		ORDER BY p.purchased_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases by user: %w", err)
	}
	defer rows.Close()

	purchases := []*domain.PurchaseDetail{}
	for rows.Next() {
		detail := &domain.PurchaseDetail{}
		var sweetID uuid.NullUUID
		err := rows.Scan(
			&detail.ID,
			&sweetID,
			&detail.UserID,
			&detail.Quantity,
			&detail.TotalPrice,
			&detail.PurchasedAt,
			&detail.SweetName,
			&detail.SweetCategory,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		if sweetID.Valid {
			detail.SweetID = sweetID.UUID
		}
		purchases = append(purchases, detail)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}

// ListBySweet retrieves the purchases of a single sweet, most recent first
func (r *purchaseRepository) ListBySweet(ctx context.Context, sweetID uuid.UUID) ([]*domain.Purchase, error) {
	query := `
		SELECT id, sweet_id, user_id, quantity, total_price, purchased_at
		FROM purchases
		WHERE sweet_id = $1
		ORDER BY purchased_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sweetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases by sweet: %w", err)
	}
	defer rows.Close()

	purchases := []*domain.Purchase{}
	for rows.Next() {
		purchase := &domain.Purchase{}
		err := rows.Scan(
			&purchase.ID,
			&purchase.SweetID,
			&purchase.UserID,
			&purchase.Quantity,
			&purchase.TotalPrice,
			&purchase.PurchasedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}

// mapTxError translates Postgres serialization failures (40001) and deadlocks
// (40P01) into ErrTxConflict so the coordinator can retry; everything else is
// wrapped as-is.
func mapTxError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return ErrTxConflict
	}
	return fmt.Errorf("%s: %w", msg, err)
}
