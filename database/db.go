// Package database persists positions and trades to rqlite and serves the
// read queries behind reconciliation and reporting.
package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lukaw/swingbot/position"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// SQL statements.
	createPositionsTableSQL = "CREATE TABLE IF NOT EXISTS positions (id TEXT PRIMARY KEY, symbol TEXT NOT NULL, entry_price TEXT NOT NULL, entry_time INTEGER NOT NULL, exit_price TEXT, exit_time INTEGER, volume TEXT NOT NULL, tag TEXT, pnl TEXT, status TEXT NOT NULL, external_ref TEXT)"
	createTradesTableSQL    = "CREATE TABLE IF NOT EXISTS trades (id TEXT PRIMARY KEY, symbol TEXT NOT NULL, side TEXT NOT NULL, price TEXT NOT NULL, volume TEXT NOT NULL, tag TEXT, simulated INTEGER NOT NULL, timestamp INTEGER NOT NULL)"
	createPositionsSymbolIdxSQL  = "CREATE INDEX IF NOT EXISTS positions_symbol_idx ON positions(symbol)"
	createPositionsStatusIdxSQL  = "CREATE INDEX IF NOT EXISTS positions_status_idx ON positions(status)"
	createTradesSymbolIdxSQL     = "CREATE INDEX IF NOT EXISTS trades_symbol_idx ON trades(symbol)"
	createTradesTimestampIdxSQL  = "CREATE INDEX IF NOT EXISTS trades_timestamp_idx ON trades(timestamp)"
	upsertPositionSQL            = "INSERT INTO positions(id, symbol, entry_price, entry_time, exit_price, exit_time, volume, tag, pnl, status, external_ref) VALUES(?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO UPDATE SET exit_price=excluded.exit_price, exit_time=excluded.exit_time, pnl=excluded.pnl, status=excluded.status"
	insertTradeSQL               = "INSERT INTO trades(id, symbol, side, price, volume, tag, simulated, timestamp) VALUES(?,?,?,?,?,?,?,?)"
	loadOpenPositionsSQL         = "SELECT id, symbol, entry_price, entry_time, volume, tag, external_ref FROM positions WHERE status = 'open' ORDER BY entry_time"
	monthlyPerformanceSQL        = "SELECT COUNT(*) AS total_trades, SUM(CASE WHEN CAST(pnl AS REAL) > 0 THEN 1 ELSE 0 END) AS wins, SUM(CAST(pnl AS REAL)) AS total_pnl, AVG((CAST(exit_price AS REAL) - CAST(entry_price AS REAL)) / CAST(entry_price AS REAL)) AS avg_return, AVG(exit_time - entry_time) AS avg_holding_secs FROM positions WHERE status = 'closed' AND exit_time >= ?"
)

// Config is the configuration for the database.
type Config struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Database represents the database connection.
type Database struct {
	cfg    *Config
	client *rqlitehttp.Client
}

// New initializes a new database connection and bootstraps the schema.
func New(ctx context.Context, cfg *Config) (*Database, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database schema and indices.
func (db *Database) bootstrap(ctx context.Context) error {
	_, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createPositionsTableSQL},
		{SQL: createTradesTableSQL},
		{SQL: createPositionsSymbolIdxSQL},
		{SQL: createPositionsStatusIdxSQL},
		{SQL: createTradesSymbolIdxSQL},
		{SQL: createTradesTimestampIdxSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	return nil
}

// nullableUnix converts a possibly-zero time into a nullable unix parameter.
func nullableUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Unix()
}

// PersistPosition stores the provided position, updating the exit fields and
// status in place when the record already exists.
func (db *Database) PersistPosition(ctx context.Context, pos *position.Position) error {
	var exitPrice, pnl any
	if pos.Status == position.Closed {
		exitPrice = pos.ExitPrice.String()
		pnl = pos.PNL.String()
	}

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: upsertPositionSQL,
			PositionalParams: []any{pos.ID, pos.Market, pos.EntryPrice.String(), pos.EntryTime.Unix(),
				exitPrice, nullableUnix(pos.ExitTime), pos.Volume.String(), pos.Tag, pnl,
				pos.Status.String(), pos.ExternalRef},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting position %s: %d -> %s", pos.ID, idx, errStr)
	}

	return nil
}

// PersistTrade appends the provided trade to the trade log.
func (db *Database) PersistTrade(ctx context.Context, trade *position.Trade) error {
	var simulated int
	if trade.Simulated {
		simulated = 1
	}

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertTradeSQL,
			PositionalParams: []any{trade.ID, trade.Market, trade.Side.String(), trade.Price.String(),
				trade.Volume.String(), trade.Tag, simulated, trade.CreatedOn.Unix()},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting trade %s: %d -> %s", trade.ID, idx, errStr)
	}

	return nil
}

// parseOpenPosition rebuilds an open position from a database row.
func parseOpenPosition(row map[string]any) (*position.Position, error) {
	id, _ := row["id"].(string)
	symbol, _ := row["symbol"].(string)
	if id == "" || symbol == "" {
		return nil, fmt.Errorf("malformed open position row: %s", spew.Sdump(row))
	}

	entryPrice, err := decimal.NewFromString(fmt.Sprintf("%v", row["entry_price"]))
	if err != nil {
		return nil, fmt.Errorf("parsing entry price for position %s: %w", id, err)
	}

	volume, err := decimal.NewFromString(fmt.Sprintf("%v", row["volume"]))
	if err != nil {
		return nil, fmt.Errorf("parsing volume for position %s: %w", id, err)
	}

	entryUnix, _ := row["entry_time"].(float64)
	tag, _ := row["tag"].(string)
	externalRef, _ := row["external_ref"].(string)

	pos := &position.Position{
		ID:          id,
		Market:      symbol,
		Tag:         tag,
		EntryPrice:  entryPrice,
		EntryTime:   time.Unix(int64(entryUnix), 0).UTC(),
		Volume:      volume,
		Status:      position.Open,
		ExternalRef: externalRef,
	}

	return pos, nil
}

// LoadOpenPositions loads all open positions ordered by entry time.
func (db *Database) LoadOpenPositions(ctx context.Context) ([]*position.Position, error) {
	resp, err := db.client.QuerySingle(ctx, loadOpenPositionsSQL)
	if err != nil {
		return nil, err
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	positions := make([]*position.Position, 0, len(results[0].Rows))
	for _, row := range results[0].Rows {
		pos, err := parseOpenPosition(row)
		if err != nil {
			db.cfg.Logger.Error().Msgf("skipping open position row: %v", err)
			continue
		}
		positions = append(positions, pos)
	}

	return positions, nil
}

// Performance represents aggregated trading performance over a period.
type Performance struct {
	TotalTrades int
	WinRate     float64
	AvgReturn   float64
	TotalPNL    float64
	AvgHolding  time.Duration
}

// String formats the performance summary for reports and notifications.
func (p *Performance) String() string {
	return fmt.Sprintf("Total Trades: %d\nWin Rate: %.2f%%\nAvg Return: %.2f%%\nTotal PnL: %.2f\nAvg Hold: %s",
		p.TotalTrades, p.WinRate*100, p.AvgReturn*100, p.TotalPNL, p.AvgHolding)
}

// floatColumn extracts a float column from a row, tolerating nulls.
func floatColumn(row map[string]any, column string) float64 {
	val, _ := row[column].(float64)
	return val
}

// MonthlyPerformance aggregates closed-position performance since the
// provided time.
func (db *Database) MonthlyPerformance(ctx context.Context, since time.Time) (*Performance, error) {
	resp, err := db.client.QuerySingle(ctx, monthlyPerformanceSQL, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying monthly performance: %w", err)
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return &Performance{}, nil
	}

	row := results[0].Rows[0]
	total := int(floatColumn(row, "total_trades"))
	wins := floatColumn(row, "wins")

	perf := &Performance{
		TotalTrades: total,
		AvgReturn:   floatColumn(row, "avg_return"),
		TotalPNL:    floatColumn(row, "total_pnl"),
		AvgHolding:  time.Duration(floatColumn(row, "avg_holding_secs")) * time.Second,
	}
	if total > 0 {
		perf.WinRate = wins / float64(total)
	}

	return perf, nil
}
