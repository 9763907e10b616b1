package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sweet-shop/internal/domain"
	"sweet-shop/internal/events"
	"sweet-shop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxPerOrder caps the quantity of a single purchase request
	DefaultMaxPerOrder = 10

	// DefaultMaxAttempts bounds the retries of a conflicted purchase
	// transaction before giving up with ErrContention
	DefaultMaxAttempts = 5

	// retryBackoff is the base delay between purchase retries, scaled by the
	// attempt number
	retryBackoff = 10 * time.Millisecond
)

var (
	ErrInvalidQuantity = errors.New("invalid purchase quantity")
	ErrContention      = errors.New("purchase retry limit exceeded")
)

// PurchasePublisher publishes purchase events after a successful purchase
type PurchasePublisher interface {
	PublishPurchaseCompleted(event events.PurchaseCompletedEvent) error
}

// PurchaseService is the single entry point for turning a purchase request
// into a stock decrement and a ledger record. All pricing arithmetic happens
// here and below; client-supplied prices are display-only.
type PurchaseService interface {
	ExecutePurchase(ctx context.Context, sweetID, userID uuid.UUID, quantity int) (*domain.Purchase, error)
	ListUserPurchases(ctx context.Context, userID uuid.UUID) ([]*domain.PurchaseDetail, error)
}

type purchaseService struct {
	purchaseRepo repository.PurchaseRepository
	publisher    PurchasePublisher
	logger       *zap.Logger
	maxPerOrder  int
	maxAttempts  int
}

// NewPurchaseService creates a new instance of PurchaseService. The publisher
// may be nil, in which case no events are emitted. Non-positive limits fall
// back to the defaults.
func NewPurchaseService(
	purchaseRepo repository.PurchaseRepository,
	publisher PurchasePublisher,
	logger *zap.Logger,
	maxPerOrder int,
	maxAttempts int,
) PurchaseService {
	if maxPerOrder <= 0 {
		maxPerOrder = DefaultMaxPerOrder
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &purchaseService{
		purchaseRepo: purchaseRepo,
		publisher:    publisher,
		logger:       logger,
		maxPerOrder:  maxPerOrder,
		maxAttempts:  maxAttempts,
	}
}

// ExecutePurchase validates the request and executes it atomically.
//
// The quantity is checked before any store access; a failed call leaves both
// the stock and the ledger untouched. Transaction conflicts are retried up to
// the configured ceiling, after which the call fails with ErrContention
// rather than looping indefinitely. Once the underlying transaction commits,
// the mutation stands even if the caller has gone away.
func (s *purchaseService) ExecutePurchase(ctx context.Context, sweetID, userID uuid.UUID, quantity int) (*domain.Purchase, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidQuantity, quantity)
	}
	if quantity > s.maxPerOrder {
		return nil, fmt.Errorf("%w: quantity %d exceeds the per-order limit of %d", ErrInvalidQuantity, quantity, s.maxPerOrder)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		purchase, err := s.purchaseRepo.ExecutePurchase(ctx, sweetID, userID, quantity)
		if err == nil {
			s.logger.Info("Purchase completed",
				zap.String("purchase_id", purchase.ID.String()),
				zap.String("sweet_id", sweetID.String()),
				zap.String("user_id", userID.String()),
				zap.Int("quantity", quantity),
				zap.Float64("total_price", purchase.TotalPrice),
			)
			s.publishCompleted(purchase)
			return purchase, nil
		}

		if !errors.Is(err, repository.ErrTxConflict) {
			return nil, err
		}

		s.logger.Debug("Purchase transaction conflict, retrying",
			zap.String("sweet_id", sweetID.String()),
			zap.Int("attempt", attempt),
		)

		if attempt < s.maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
	}

	s.logger.Warn("Purchase abandoned after retry limit",
		zap.String("sweet_id", sweetID.String()),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, ErrContention
}

// ListUserPurchases retrieves the purchase history of a user, most recent
// first
func (s *purchaseService) ListUserPurchases(ctx context.Context, userID uuid.UUID) ([]*domain.PurchaseDetail, error) {
	purchases, err := s.purchaseRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// publishCompleted emits a purchase event, fire-and-forget. Publish failures
// are logged and never fail the purchase itself.
func (s *purchaseService) publishCompleted(purchase *domain.Purchase) {
	if s.publisher == nil {
		return
	}

	event := events.PurchaseCompletedEvent{
		EventID:     uuid.New().String(),
		PurchaseID:  purchase.ID.String(),
		SweetID:     purchase.SweetID.String(),
		UserID:      purchase.UserID.String(),
		Quantity:    purchase.Quantity,
		TotalPrice:  purchase.TotalPrice,
		PurchasedAt: purchase.PurchasedAt,
	}

	if err := s.publisher.PublishPurchaseCompleted(event); err != nil {
		s.logger.Error("Failed to publish purchase event",
			zap.String("purchase_id", purchase.ID.String()),
			zap.Error(err),
		)
	}
}
