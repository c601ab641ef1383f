package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

// MaxLineQuantity caps a single cart line, well inside the INTEGER column.
const MaxLineQuantity = 10000

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, MaxLineQuantity)
	ErrQuantityTooLarge = fmt.Errorf("%w: cart line cannot hold more than %d items", ErrValidation, MaxLineQuantity)
)

type Service interface {
	AddOrIncrement(ctx context.Context, userID string, productID int64, qty int) (int, error)
	UpdateQuantities(ctx context.Context, userID string, updates map[uuid.UUID]int) UpdateSummary
	Remove(ctx context.Context, userID string, lineID uuid.UUID) error
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
	ItemCount(ctx context.Context, userID string) (int, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// AddOrIncrement returns the user's new badge count (sum of quantities).
func (s *service) AddOrIncrement(ctx context.Context, userID string, productID int64, qty int) (int, error) {
	if qty < 1 || qty > MaxLineQuantity {
		return 0, ErrInvalidQuantity
	}

	if err := s.repo.Upsert(ctx, userID, productID, qty); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			log.Warn().Str("user_id", userID).Int64("product_id", productID).Msg("service: add to cart for unknown product")
			return 0, catalog.ErrProductNotFound
		}
		if errors.Is(err, ErrQuantityTooLarge) {
			log.Warn().Str("user_id", userID).Int64("product_id", productID).Int("qty", qty).Msg("service: cart line would exceed quantity cap")
			return 0, ErrQuantityTooLarge
		}
		log.Error().Err(err).Str("user_id", userID).Int64("product_id", productID).Msg("service: failed to add to cart")
		return 0, fmt.Errorf("service: failed to add to cart: %w", err)
	}

	count, err := s.repo.CountItems(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("service: failed to count cart items")
		return 0, fmt.Errorf("service: failed to count cart items: %w", err)
	}

	log.Info().Str("user_id", userID).Int64("product_id", productID).Int("qty", qty).Msg("Service: cart line added")
	return count, nil
}

// UpdateQuantities applies each update on its own so one failing line does not
// block the rest. A quantity below 1 removes the line; one above
// MaxLineQuantity is reported as failed.
func (s *service) UpdateQuantities(ctx context.Context, userID string, updates map[uuid.UUID]int) UpdateSummary {
	var summary UpdateSummary

	for lineID, qty := range updates {
		if qty < 1 {
			deleted, err := s.repo.DeleteLine(ctx, userID, lineID)
			switch {
			case err != nil:
				log.Error().Err(err).Str("user_id", userID).Stringer("line_id", lineID).Msg("service: failed to remove cart line")
				summary.Failed = append(summary.Failed, lineID)
			case deleted:
				summary.Removed++
			default:
				summary.Ignored++
			}
			continue
		}

		if qty > MaxLineQuantity {
			log.Warn().Str("user_id", userID).Stringer("line_id", lineID).Int("qty", qty).Msg("service: cart quantity above cap")
			summary.Failed = append(summary.Failed, lineID)
			continue
		}

		err := s.repo.SetQuantity(ctx, userID, lineID, qty)
		switch {
		case err == nil:
			summary.Updated++
		case errors.Is(err, ErrLineNotFound):
			summary.Ignored++
		default:
			log.Error().Err(err).Str("user_id", userID).Stringer("line_id", lineID).Msg("service: failed to update cart line")
			summary.Failed = append(summary.Failed, lineID)
		}
	}

	return summary
}

// Remove is a no-op when the line is absent or not owned by userID.
func (s *service) Remove(ctx context.Context, userID string, lineID uuid.UUID) error {
	if _, err := s.repo.DeleteLine(ctx, userID, lineID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Stringer("line_id", lineID).Msg("service: failed to remove cart line")
		return fmt.Errorf("service: failed to remove cart line: %w", err)
	}
	return nil
}

func (s *service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	lines, err := s.repo.ListWithPrices(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("service: failed to load cart")
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}

	return &Snapshot{
		Lines:   lines,
		Total:   Total(lines),
		IsEmpty: len(lines) == 0,
	}, nil
}

func (s *service) ItemCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountItems(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: failed to count cart items: %w", err)
	}
	return count, nil
}
