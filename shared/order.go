package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the side of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String stringifies the provided side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderIntent represents an order the decision engine wants executed. It is
// transient, the gateway converts it into a trade and a position mutation
// once the venue confirms it.
type OrderIntent struct {
	Market string
	Side   Side
	Price  decimal.Decimal
	Volume decimal.Decimal
	Tag    string
}

// OrderResult represents the venue's response to a submitted order intent.
type OrderResult struct {
	Accepted    bool
	FilledPrice decimal.Decimal
	Reference   string
	Simulated   bool
}

// ExternalOrder represents an open order reported by the execution venue,
// used to reconcile venue state into the local position store.
type ExternalOrder struct {
	Reference string
	Market    string
	Side      Side
	Price     decimal.Decimal
	Volume    decimal.Decimal
	CreatedOn time.Time
}
