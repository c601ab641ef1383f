package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/idempotency"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	City            string `json:"city" validate:"required,max=100"`
	Phone           string `json:"phone" validate:"required,max=32"`
	Comment         string `json:"comment" validate:"max=1000"`
}

type CheckoutResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	Replayed    bool   `json:"replayed,omitempty"`
}

type OrderHandler struct {
	service     order.Service
	idempotency idempotency.Store
	validate    *validator.Validate
}

// NewOrderHandler builds the customer order routes. store may be nil, in which
// case Idempotency-Key headers are ignored.
func NewOrderHandler(service order.Service, store idempotency.Store) *OrderHandler {
	return &OrderHandler{service: service, idempotency: store, validate: newValidator()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout", h.checkout)
	router.Route("/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func (h *OrderHandler) checkout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	scope := "checkout:" + p.UserID
	key := r.Header.Get(IdempotencyKeyHeader)
	if h.idempotency == nil {
		key = ""
	}

	if key != "" {
		res, err := h.idempotency.Reserve(r.Context(), scope, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			respondWithError(w, http.StatusConflict, clientMessage(err, ""))
			return
		case err != nil:
			log.Warn().Err(err).Str("user_id", p.UserID).Msg("handler: idempotency store unavailable, checking out without it")
			key = ""
		case res.Replayed:
			log.Info().Str("user_id", p.UserID).Str("order_id", res.Value).Msg("handler: replaying checkout")
			respondWithJSON(w, http.StatusOK, CheckoutResponse{Success: true, OrderID: res.Value, Replayed: true})
			return
		}
	}

	o, err := h.service.Checkout(r.Context(), p, order.ShippingInfo{
		ShippingAddress: req.ShippingAddress,
		City:            req.City,
		Phone:           req.Phone,
		Comment:         req.Comment,
	})
	if err != nil {
		if key != "" {
			if relErr := h.idempotency.Release(context.WithoutCancel(r.Context()), scope, key); relErr != nil {
				log.Warn().Err(relErr).Msg("handler: failed to release idempotency key")
			}
		}
		respondWithServiceError(w, err, order.Result{}, "Failed to place order")
		return
	}

	if key != "" {
		if err := h.idempotency.Complete(context.WithoutCancel(r.Context()), scope, key, o.ID.String()); err != nil {
			log.Warn().Err(err).Str("order_id", o.ID.String()).Msg("handler: failed to record idempotency result")
		}
	}

	respondWithJSON(w, http.StatusCreated, CheckoutResponse{
		Success:     true,
		OrderID:     o.ID.String(),
		OrderNumber: o.DisplayNumber(),
	})
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	status, ok := statusQuery(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListForUser(r.Context(), p, status)
	if err != nil {
		respondWithServiceError(w, err, order.Result{}, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetForUser(r.Context(), p, id)
	if err != nil {
		respondWithServiceError(w, err, order.Result{}, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.UserCancel(r.Context(), p, id)
	if err != nil {
		respondWithServiceError(w, err, res, "Failed to cancel order")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
