package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// PageSize is the fixed number of products per listing page.
const PageSize = 100

type Service interface {
	ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	q.Name = strings.TrimSpace(q.Name)

	total, err := s.repo.CountProducts(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to count products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	pageCount := (total + PageSize - 1) / PageSize
	page := normalizePage(q.Page, pageCount)

	items, err := s.repo.ListProducts(ctx, q, PageSize, (page-1)*PageSize)
	if err != nil {
		log.Error().Err(err).Int("page", page).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	return &ProductPage{Items: items, Page: page, PageCount: pageCount}, nil
}

func (s *service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Int64("product_id", id).Msg("service: failed to get product")
		return nil, fmt.Errorf("service: failed to get product: %w", err)
	}
	return p, nil
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list categories")
		return nil, fmt.Errorf("service: failed to list categories: %w", err)
	}
	return categories, nil
}

// normalizePage sends out-of-range pages back to the first one.
func normalizePage(page, pageCount int) int {
	if page > pageCount || page <= 0 {
		return 1
	}
	return page
}
