package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type StatusUpdateRequest struct {
	Status            string     `json:"status" validate:"required"`
	TrackingNumber    string     `json:"tracking_number" validate:"max=100"`
	AdminNotes        string     `json:"admin_notes" validate:"max=2000"`
	Carrier           string     `json:"carrier" validate:"max=100"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

type TrackingEventRequest struct {
	Location    string `json:"location" validate:"required,max=200"`
	Status      string `json:"status" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	IsMilestone bool   `json:"is_milestone"`
}

// AdminHandler serves the back-office order routes. The router is expected to
// restrict it to administrators; the service checks the role again.
type AdminHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewAdminHandler(service order.Service) *AdminHandler {
	return &AdminHandler{service: service, validate: newValidator()}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/status", h.setStatus)
		r.Post("/{id}/tracking-event", h.addTrackingEvent)
		r.Get("/{id}/tracking-history", h.trackingHistory)
		r.Post("/{id}/delete", h.delete)
	})
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	status, ok := statusQuery(w, r)
	if !ok {
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("search"))

	var (
		orders []order.Order
		err    error
	)
	if status != nil && search == "" {
		orders, err = h.service.ListByStatus(r.Context(), p, *status)
	} else {
		orders, err = h.service.ListAll(r.Context(), p, order.AdminOrderQuery{Status: status, Search: search})
	}
	if err != nil {
		respondWithServiceError(w, err, order.Result{}, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), p, id)
	if err != nil {
		respondWithServiceError(w, err, order.Result{}, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req StatusUpdateRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.AdminSetStatus(r.Context(), p, id, order.StatusUpdate{
		Status:            status,
		TrackingNumber:    req.TrackingNumber,
		AdminNotes:        req.AdminNotes,
		Carrier:           req.Carrier,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		respondWithServiceError(w, err, res, "Failed to update order status")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) addTrackingEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req TrackingEventRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.service.AddManualTrackingEvent(r.Context(), p, id, order.ManualTrackingEvent{
		Location:    req.Location,
		Status:      req.Status,
		Description: req.Description,
		IsMilestone: req.IsMilestone,
	})
	if err != nil {
		respondWithServiceError(w, err, res, "Failed to add tracking event")
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (h *AdminHandler) trackingHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	events, err := h.service.TrackingHistory(r.Context(), p, id)
	if err != nil {
		respondWithServiceError(w, err, order.Result{}, "Failed to load tracking history")
		return
	}
	if events == nil {
		events = []order.TrackingEvent{}
	}
	respondWithJSON(w, http.StatusOK, events)
}

func (h *AdminHandler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.DeleteOrder(r.Context(), p, id)
	if err != nil {
		respondWithServiceError(w, err, res, "Failed to delete order")
		return
	}
	if !res.Success {
		respondWithJSON(w, http.StatusNotFound, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
