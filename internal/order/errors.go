package order

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrStateConflict = errors.New("order state conflict")
	ErrPersistence   = errors.New("persistence failure")
	ErrForbidden     = errors.New("admin role required")

	ErrAlreadyShipped          = fmt.Errorf("%w: order has already been shipped", ErrStateConflict)
	ErrAlreadyCancelled        = fmt.Errorf("%w: order is already cancelled", ErrStateConflict)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid order status transition", ErrStateConflict)
)
