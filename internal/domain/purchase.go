package domain

import (
	"time"

	"github.com/google/uuid"
)

// Purchase is an immutable record of a completed purchase. The total price is
// frozen at purchase time and never recomputed from the current catalog price.
type Purchase struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SweetID     uuid.UUID `json:"sweet_id" db:"sweet_id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	TotalPrice  float64   `json:"total_price" db:"total_price"`
	PurchasedAt time.Time `json:"purchased_at" db:"purchased_at"`
}

// PurchaseDetail is a purchase joined with catalog data for display. SweetName
// and SweetCategory are empty when the sweet has since been deleted.
type PurchaseDetail struct {
	Purchase
	SweetName     string `json:"sweet_name" db:"sweet_name"`
	SweetCategory string `json:"sweet_category" db:"sweet_category"`
}
