package order

import "fmt"

// TransitionPolicy decides whether an administrator may move an order from one
// status to another. A nil error allows the move.
type TransitionPolicy func(from, to Status) error

// AllowAnyTransition lets administrators set any status at any time, including
// backwards moves.
func AllowAnyTransition(_, _ Status) error {
	return nil
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusReceived: {
		StatusVerified:  true,
		StatusCancelled: true,
	},
	StatusVerified: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// StrictTransitions only allows forward moves along the lifecycle, plus
// cancellation from any non-terminal status.
func StrictTransitions(from, to Status) error {
	if allowedTransitions[from][to] {
		return nil
	}
	return fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, from, to)
}
