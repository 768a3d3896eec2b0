// Package position tracks market positions and trades through their
// lifecycles, enforcing at most one open position per market and tag pair.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lukaw/swingbot/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StoreConfig represents the position store configuration.
type StoreConfig struct {
	// FeeRate is the per-leg trading fee rate applied to realized pnl.
	FeeRate decimal.Decimal
	// SyncTag labels positions materialized from venue reconciliation.
	SyncTag string
	// PersistPosition stores the provided position to the database.
	PersistPosition func(ctx context.Context, position *Position) error
	// PersistTrade stores the provided trade to the database.
	PersistTrade func(ctx context.Context, trade *Trade) error
	// LoadOpenPositions loads all open positions from the database.
	LoadOpenPositions func(ctx context.Context) ([]*Position, error)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *StoreConfig) Validate() error {
	var errs error

	if cfg.PersistPosition == nil {
		errs = errors.Join(errs, fmt.Errorf("persist position function cannot be nil"))
	}
	if cfg.PersistTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("persist trade function cannot be nil"))
	}
	if cfg.LoadOpenPositions == nil {
		errs = errors.Join(errs, fmt.Errorf("load open positions function cannot be nil"))
	}
	if cfg.FeeRate.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("fee rate cannot be negative, got %s", cfg.FeeRate))
	}

	return errs
}

// Store owns the open position set for the lifetime of the process. All
// mutations are serialized through a single writer lock so the one open
// position per market and tag invariant holds under concurrent readers.
type Store struct {
	cfg  *StoreConfig
	mtx  sync.RWMutex
	open map[string]*Position
}

// openKey forms the open-position lookup key for a market and tag pair.
func openKey(market string, tag string) string {
	return market + "|" + tag
}

// NewStore initializes a new position store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating store config: %w", err)
	}

	store := &Store{
		cfg:  cfg,
		open: make(map[string]*Position),
	}

	return store, nil
}

// SyncFromStore replaces the in-memory open set with the open positions
// persisted in the database.
func (s *Store) SyncFromStore(ctx context.Context) error {
	positions, err := s.cfg.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.open = make(map[string]*Position, len(positions))
	for idx := range positions {
		s.open[openKey(positions[idx].Market, positions[idx].Tag)] = positions[idx]
	}

	s.cfg.Logger.Info().Msgf("synced %d open positions from store", len(positions))

	return nil
}

// OpenPositions returns the open positions for the provided market. An empty
// market matches all open positions.
func (s *Store) OpenPositions(market string) []*Position {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	positions := make([]*Position, 0, len(s.open))
	for _, pos := range s.open {
		if market == "" || pos.Market == market {
			positions = append(positions, pos)
		}
	}

	return positions
}

// OpenPosition returns the open position for the provided market and tag pair.
func (s *Store) OpenPosition(market string, tag string) (*Position, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	pos, ok := s.open[openKey(market, tag)]
	return pos, ok
}

// RecordEntry creates and persists a new open position along with its buy
// trade. It fails with shared.ErrDuplicateOpenPosition when an open position
// already exists for the market and tag pair.
func (s *Store) RecordEntry(ctx context.Context, market string, price decimal.Decimal,
	volume decimal.Decimal, tag string, at time.Time, externalRef string, simulated bool) (*Position, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := openKey(market, tag)
	if existing, ok := s.open[key]; ok {
		return nil, fmt.Errorf("open position %s already exists for %s (%s): %w",
			existing.ID, market, tag, shared.ErrDuplicateOpenPosition)
	}

	pos, err := NewPosition(market, tag, price, volume, at, externalRef)
	if err != nil {
		return nil, fmt.Errorf("creating position: %w", err)
	}

	err = s.cfg.PersistPosition(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("persisting position: %w", err)
	}

	trade := NewTrade(market, shared.SideBuy, price, volume, tag, simulated, at)
	err = s.cfg.PersistTrade(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("persisting entry trade: %w", err)
	}

	s.open[key] = pos

	return pos, nil
}

// RecordExit closes the referenced open position at the provided price,
// persisting the closed record and its sell trade atomically with the status
// flip. It fails with shared.ErrPositionNotOpen for closed or unknown ids.
func (s *Store) RecordExit(ctx context.Context, id string, price decimal.Decimal,
	at time.Time, simulated bool) (*Position, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var pos *Position
	var key string
	for k, candidate := range s.open {
		if candidate.ID == id {
			pos, key = candidate, k
			break
		}
	}
	if pos == nil {
		return nil, fmt.Errorf("no open position with id %s: %w", id, shared.ErrPositionNotOpen)
	}

	// Close a copy first so a failed persist never leaves a closed position
	// in the open set.
	closed := *pos
	err := closed.Close(price, at, s.cfg.FeeRate)
	if err != nil {
		return nil, err
	}

	err = s.cfg.PersistPosition(ctx, &closed)
	if err != nil {
		return nil, fmt.Errorf("persisting closed position: %w", err)
	}

	trade := NewTrade(pos.Market, shared.SideSell, price, pos.Volume, pos.Tag, simulated, at)
	err = s.cfg.PersistTrade(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("persisting exit trade: %w", err)
	}

	*pos = closed
	delete(s.open, key)

	return pos, nil
}

// SyncFromExchange reconciles the venue's open orders into the store. Open
// buy orders with no tracked position materialize as open positions tied to
// their venue reference. Re-applying an identical snapshot mutates nothing.
func (s *Store) SyncFromExchange(ctx context.Context, orders []shared.ExternalOrder) (int, error) {
	tracked := make(map[string]bool)
	s.mtx.RLock()
	for _, pos := range s.open {
		if pos.ExternalRef != "" {
			tracked[pos.ExternalRef] = true
		}
	}
	s.mtx.RUnlock()

	var synced int
	for idx := range orders {
		order := orders[idx]
		if order.Side != shared.SideBuy || tracked[order.Reference] {
			continue
		}
		if _, ok := s.OpenPosition(order.Market, s.cfg.SyncTag); ok {
			continue
		}

		_, err := s.RecordEntry(ctx, order.Market, order.Price, order.Volume,
			s.cfg.SyncTag, order.CreatedOn, order.Reference, false)
		if err != nil {
			return synced, fmt.Errorf("syncing order %s: %w", order.Reference, err)
		}

		s.cfg.Logger.Info().Msgf("synced venue buy order %s for %s @ %s",
			order.Reference, order.Market, order.Price)
		synced++
	}

	return synced, nil
}
