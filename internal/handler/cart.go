package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type AddToCartRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"qty" validate:"required,gte=1,lte=10000"`
}

type RemoveFromCartRequest struct {
	CartLineID string `json:"cart_line_id" validate:"required,uuid"`
}

type UpdateQuantitiesRequest struct {
	Quantities map[string]int `json:"quantities" validate:"required,dive,lte=10000"`
}

type CartCountResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type CartUpdateResponse struct {
	Success bool               `json:"success"`
	Summary cart.UpdateSummary `json:"summary"`
	Count   int                `json:"count"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{service: service, validate: newValidator()}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Get("/count", h.count)
		r.Post("/add", h.add)
		r.Post("/remove", h.remove)
		r.Post("/update-quantities", h.updateQuantities)
	})
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	snapshot, err := h.service.Snapshot(r.Context(), p.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID).Msg("handler: failed to load cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

func (h *CartHandler) count(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	n, err := h.service.ItemCount(r.Context(), p.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID).Msg("handler: failed to count cart items")
		respondWithError(w, http.StatusInternalServerError, "Failed to count cart items")
		return
	}
	respondWithJSON(w, http.StatusOK, CartCountResponse{Success: true, Count: n})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req AddToCartRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	n, err := h.service.AddOrIncrement(r.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, cart.ErrValidation) {
			respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, ""))
			return
		}
		log.Error().Err(err).Int64("product_id", req.ProductID).Msg("handler: failed to add to cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to add product to cart")
		return
	}
	respondWithJSON(w, http.StatusOK, CartCountResponse{Success: true, Count: n})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req RemoveFromCartRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	lineID := uuid.FromStringOrNil(req.CartLineID)

	if err := h.service.Remove(r.Context(), p.UserID, lineID); err != nil {
		log.Error().Err(err).Str("cart_line_id", req.CartLineID).Msg("handler: failed to remove cart line")
		respondWithError(w, http.StatusInternalServerError, "Failed to remove cart line")
		return
	}
	respondWithJSON(w, http.StatusOK, CartCountResponse{Success: true, Count: h.badgeCount(r, p.UserID)})
}

func (h *CartHandler) updateQuantities(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req UpdateQuantitiesRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updates := make(map[uuid.UUID]int, len(req.Quantities))
	for raw, qty := range req.Quantities {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Success: false,
				Message: "Validation failed",
				Details: map[string]string{raw: "must be a valid UUID"},
			})
			return
		}
		updates[id] = qty
	}

	summary := h.service.UpdateQuantities(r.Context(), p.UserID, updates)
	respondWithJSON(w, http.StatusOK, CartUpdateResponse{
		Success: true,
		Summary: summary,
		Count:   h.badgeCount(r, p.UserID),
	})
}

// badgeCount is best-effort: the change itself already went through.
func (h *CartHandler) badgeCount(r *http.Request, userID string) int {
	n, err := h.service.ItemCount(r.Context(), userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("handler: failed to refresh cart badge")
		return 0
	}
	return n
}
