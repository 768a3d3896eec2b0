package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lukaw/swingbot/shared"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a position.
type Status int

const (
	Open Status = iota
	Closed
)

// String stringifies the provided position status.
func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus parses a position status from its string form.
func ParseStatus(status string) (Status, error) {
	switch status {
	case "open":
		return Open, nil
	case "closed":
		return Closed, nil
	default:
		return Open, fmt.Errorf("unknown position status: %q", status)
	}
}

// Position represents a market position held by the bot. Closed positions
// are immutable, they form an append-only audit trail and are never reopened.
type Position struct {
	ID          string
	Market      string
	Tag         string
	EntryPrice  decimal.Decimal
	EntryTime   time.Time
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	Volume      decimal.Decimal
	PNL         decimal.Decimal
	Status      Status
	ExternalRef string
}

// NewPosition initializes a new open position.
func NewPosition(market string, tag string, price decimal.Decimal, volume decimal.Decimal,
	entryTime time.Time, externalRef string) (*Position, error) {
	if market == "" {
		return nil, fmt.Errorf("position market cannot be an empty string")
	}
	if volume.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("position volume must be positive, got %s", volume)
	}

	pos := &Position{
		ID:          uuid.New().String(),
		Market:      market,
		Tag:         tag,
		EntryPrice:  price,
		EntryTime:   entryTime,
		Volume:      volume,
		Status:      Open,
		ExternalRef: externalRef,
	}

	return pos, nil
}

// Close closes the position at the provided exit price, computing its profit
// and loss net of fees on both legs. Closing an already closed position fails
// with shared.ErrPositionNotOpen.
func (p *Position) Close(exitPrice decimal.Decimal, exitTime time.Time, feeRate decimal.Decimal) error {
	if p.Status != Open {
		return fmt.Errorf("position %s is already %s: %w", p.ID, p.Status.String(),
			shared.ErrPositionNotOpen)
	}

	fees := feeRate.Mul(p.EntryPrice.Add(exitPrice)).Mul(p.Volume)

	p.ExitPrice = exitPrice
	p.ExitTime = exitTime
	p.PNL = exitPrice.Sub(p.EntryPrice).Mul(p.Volume).Sub(fees)
	p.Status = Closed

	return nil
}

// Trade represents a single executed or simulated order, logged independently
// of the position lifecycle.
type Trade struct {
	ID        string
	Market    string
	Side      shared.Side
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Tag       string
	Simulated bool
	CreatedOn time.Time
}

// NewTrade initializes a new trade record.
func NewTrade(market string, side shared.Side, price decimal.Decimal, volume decimal.Decimal,
	tag string, simulated bool, createdOn time.Time) *Trade {
	return &Trade{
		ID:        uuid.New().String(),
		Market:    market,
		Side:      side,
		Price:     price,
		Volume:    volume,
		Tag:       tag,
		Simulated: simulated,
		CreatedOn: createdOn,
	}
}
