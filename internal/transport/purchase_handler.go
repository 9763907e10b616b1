package transport

import (
	"errors"
	"net/http"

	"sweet-shop/internal/middleware"
	"sweet-shop/internal/repository"
	"sweet-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseRequest represents the purchase payload. The quantity bound here is
// only a first gate; the service enforces the configured per-order limit.
type PurchaseRequest struct {
	SweetID  string `json:"sweet_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

// PurchaseHandler handles HTTP requests for purchases
type PurchaseHandler struct {
	purchaseService service.PurchaseService
	logger          *zap.Logger
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(purchaseService service.PurchaseService, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		logger:          logger,
	}
}

// RegisterRoutes registers all purchase routes. The extra middleware (rate
// limiting) applies to the purchase endpoint only.
func (h *PurchaseHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler, extra ...func(http.Handler) http.Handler) {
	r.Route("/api/purchases", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.ListMine)

		r.Group(func(r chi.Router) {
			for _, mw := range extra {
				r.Use(mw)
			}
			r.Post("/", h.Purchase)
		})
	})
}

// Purchase handles executing a purchase for the authenticated user. The
// purchaser identity always comes from the auth context, never the payload.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Purchase validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sweetID, err := uuid.Parse(req.SweetID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sweet ID")
		return
	}

	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	purchase, err := h.purchaseService.ExecutePurchase(r.Context(), sweetID, userID, req.Quantity)
	if err != nil {
		h.respondPurchaseError(w, err, sweetID)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, purchase)
}

// ListMine handles listing the authenticated user's purchase history
func (h *PurchaseHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	purchases, err := h.purchaseService.ListUserPurchases(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list purchases", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list purchases")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"purchases": purchases})
}

// respondPurchaseError maps the purchase error taxonomy to HTTP responses
func (h *PurchaseHandler) respondPurchaseError(w http.ResponseWriter, err error, sweetID uuid.UUID) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, repository.ErrSweetNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "sweet not found")

	case errors.Is(err, repository.ErrInsufficientStock):
		var stockErr *repository.InsufficientStockError
		if errors.As(err, &stockErr) {
			middleware.RespondWithError(w, http.StatusConflict, stockErr.Error())
			return
		}
		middleware.RespondWithError(w, http.StatusConflict, "insufficient stock")

	case errors.Is(err, service.ErrContention):
		middleware.RespondWithError(w, http.StatusConflict, "purchase could not complete under load, please retry")

	default:
		h.logger.Error("Purchase failed", zap.String("sweet_id", sweetID.String()), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to complete purchase")
	}
}
