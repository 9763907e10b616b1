package transport

import (
	"net/http"
	"strconv"

	"sweet-shop/internal/domain"
	"sweet-shop/internal/middleware"
	"sweet-shop/internal/repository"
	"sweet-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweetRequest represents the create/update sweet payload
type SweetRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Category    string  `json:"category" validate:"required,max=100"`
	Price       float64 `json:"price" validate:"gte=0"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url,max=500"`
}

// RestockRequest represents the restock payload
type RestockRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// RestockResponse reports the quantity after a restock
type RestockResponse struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// SweetListResponse represents a paginated sweet listing
type SweetListResponse struct {
	Sweets   []*domain.Sweet `json:"sweets"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// SweetHandler handles HTTP requests for the sweet catalog
type SweetHandler struct {
	sweetService service.SweetService
	logger       *zap.Logger
}

// NewSweetHandler creates a new SweetHandler
func NewSweetHandler(sweetService service.SweetService, logger *zap.Logger) *SweetHandler {
	return &SweetHandler{
		sweetService: sweetService,
		logger:       logger,
	}
}

// RegisterRoutes registers all sweet routes
func (h *SweetHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/sweets", func(r chi.Router) {
		// Storefront routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/", h.List)
			r.Get("/categories", h.Categories)
			r.Get("/{id}", h.Get)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminMiddleware)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/restock", h.Restock)
		})
	})
}

// List handles listing sweets with optional filters
func (h *SweetHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.SweetFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}

	if v := q.Get("min_price"); v != "" {
		minPrice, err := strconv.ParseFloat(v, 64)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid min_price")
			return
		}
		filter.MinPrice = &minPrice
	}

	if v := q.Get("max_price"); v != "" {
		maxPrice, err := strconv.ParseFloat(v, 64)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid max_price")
			return
		}
		filter.MaxPrice = &maxPrice
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	sortOrder := repository.SortOrderDesc
	if q.Get("sort_order") == "asc" {
		sortOrder = repository.SortOrderAsc
	}

	sweets, total, err := h.sweetService.List(r.Context(), filter, page, pageSize, q.Get("sort_by"), sortOrder)
	if err != nil {
		h.logger.Error("Failed to list sweets", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list sweets")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, SweetListResponse{
		Sweets:   sweets,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Categories handles listing the distinct categories
func (h *SweetHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.sweetService.Categories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

// Get handles retrieving a single sweet
func (h *SweetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	sweet, err := h.sweetService.GetByID(r.Context(), id)
	if err != nil {
		if err == repository.ErrSweetNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "sweet not found")
			return
		}
		h.logger.Error("Failed to get sweet", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get sweet")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, sweet)
}

// Create handles adding a sweet to the catalog
func (h *SweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SweetRequest
	if !decodeSweetRequest(w, r, &req, h.logger) {
		return
	}

	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	sweet, err := h.sweetService.Create(r.Context(), sweetInput(req), userID)
	if err != nil {
		h.logger.Error("Failed to create sweet", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create sweet")
		return
	}

	h.logger.Info("Sweet created", zap.String("sweet_id", sweet.ID.String()), zap.String("name", sweet.Name))
	middleware.RespondWithJSON(w, http.StatusCreated, sweet)
}

// Update handles editing a sweet
func (h *SweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req SweetRequest
	if !decodeSweetRequest(w, r, &req, h.logger) {
		return
	}

	sweet, err := h.sweetService.Update(r.Context(), id, sweetInput(req))
	if err != nil {
		if err == repository.ErrSweetNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "sweet not found")
			return
		}
		h.logger.Error("Failed to update sweet", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update sweet")
		return
	}

	h.logger.Info("Sweet updated", zap.String("sweet_id", sweet.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, sweet)
}

// Delete handles removing a sweet
func (h *SweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.sweetService.Delete(r.Context(), id); err != nil {
		if err == repository.ErrSweetNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "sweet not found")
			return
		}
		h.logger.Error("Failed to delete sweet", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete sweet")
		return
	}

	h.logger.Info("Sweet deleted", zap.String("sweet_id", id.String()))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "sweet deleted"})
}

// Restock handles increasing the stock of a sweet
func (h *SweetHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req RestockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := h.sweetService.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		if err == repository.ErrSweetNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "sweet not found")
			return
		}
		h.logger.Error("Failed to restock sweet", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to restock sweet")
		return
	}

	h.logger.Info("Sweet restocked",
		zap.String("sweet_id", id.String()),
		zap.Int("added", req.Quantity),
		zap.Int("quantity", quantity),
	)
	middleware.RespondWithJSON(w, http.StatusOK, RestockResponse{ID: id.String(), Quantity: quantity})
}

func sweetInput(req SweetRequest) service.SweetInput {
	return service.SweetInput{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
}

func decodeSweetRequest(w http.ResponseWriter, r *http.Request, req *SweetRequest, logger *zap.Logger) bool {
	if err := middleware.DecodeAndValidate(r, req); err != nil {
		logger.Debug("Sweet validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parseIDParam extracts and parses the {id} route parameter
func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sweet ID")
		return uuid.Nil, false
	}
	return id, true
}

// authenticatedUserID extracts the authenticated user's ID from the request
// context set by the auth middleware
func authenticatedUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		logger.Error("User ID not found in context")
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		logger.Error("Invalid user ID format", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}
