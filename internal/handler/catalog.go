package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type CatalogHandler struct {
	service catalog.Service
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.listProducts)
	router.Get("/products/{id}", h.getProduct)
	router.Get("/categories", h.listCategories)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := catalog.ProductQuery{Name: query.Get("name")}

	// garbled numbers fall back to "no filter" and the first page
	if raw := query.Get("category_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			q.CategoryID = id
		}
	}
	if raw := query.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			q.Page = page
		}
	}

	page, err := h.service.ListProducts(r.Context(), q)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list products")
		respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found.")
			return
		}
		log.Error().Err(err).Int64("product_id", id).Msg("handler: failed to get product")
		respondWithError(w, http.StatusInternalServerError, "Failed to get product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list categories")
		respondWithError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}
