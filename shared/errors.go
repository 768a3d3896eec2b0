package shared

import "errors"

var (
	// ErrInsufficientData indicates there is not enough candle history to
	// compute indicators for a market.
	ErrInsufficientData = errors.New("insufficient candle data")
	// ErrRateLimited indicates a request was declined by the venue's rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable indicates a transient network or venue failure.
	ErrUnavailable = errors.New("service unavailable")
	// ErrDuplicateOpenPosition indicates an open position already exists for
	// a market and tag pair.
	ErrDuplicateOpenPosition = errors.New("duplicate open position")
	// ErrPositionNotOpen indicates the referenced position is closed or unknown.
	ErrPositionNotOpen = errors.New("position not open")
	// ErrInsufficientCapital indicates an entry was declined for lack of funds.
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrOrderRejected indicates the execution venue declined an order.
	ErrOrderRejected = errors.New("order rejected")
)

// Transient reports whether the provided error is a transient venue or
// network failure worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
