// Package fetch retrieves market candle data from the Kraken public API.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/lukaw/swingbot/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the kraken public api base url.
	BaseURL = "https://api.kraken.com/0/public"
)

// marketLookup maps standard market symbols to kraken pair names.
var marketLookup = map[string]string{
	"BTC/USD": "XXBTZUSD",
	"ETH/USD": "XETHZUSD",
	"USD/CAD": "ZUSDZCAD",
	"ETH/BTC": "ETHXBT",
}

// KrakenConfig represents the configuration for the kraken candle client.
type KrakenConfig struct {
	// BaseURL is the api base url.
	BaseURL string
}

// KrakenClient represents the kraken public market data client. It is safe
// for concurrent fetches across markets.
type KrakenClient struct {
	cfg    *KrakenConfig
	httpc  http.Client
	bufMtx sync.Mutex
	buf    *bytes.Buffer
}

// Ensure the kraken client implements the CandleFetcher interface.
var _ shared.CandleFetcher = (*KrakenClient)(nil)

// NewKrakenClient instantiates a new kraken market data client.
func NewKrakenClient(cfg *KrakenConfig) (*KrakenClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kraken base url cannot be an empty string")
	}

	client := &KrakenClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}

	return client, nil
}

// formURL creates full urls including parameters for the api. The shared
// buffer is guarded so fetches may run concurrently across markets.
func (c *KrakenClient) formURL(path string, params string) string {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()

	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// ParseCandlesticks parses an ordered candlestick series from the provided
// kraken OHLC payload rows.
func ParseCandlesticks(rows []gjson.Result, market string, interval time.Duration) ([]shared.Candlestick, error) {
	candles := make([]shared.Candlestick, 0, len(rows))

	for idx := range rows {
		row := rows[idx].Array()
		if len(row) < 7 {
			return nil, fmt.Errorf("malformed ohlc row for %s: %s", market, rows[idx].Raw)
		}

		candle := shared.Candlestick{
			Open:     row[1].Float(),
			High:     row[2].Float(),
			Low:      row[3].Float(),
			Close:    row[4].Float(),
			Volume:   row[6].Float(),
			Date:     time.Unix(row[0].Int(), 0).UTC(),
			Market:   market,
			Interval: interval,
		}

		candles = append(candles, candle)
	}

	err := shared.ValidateSeries(candles)
	if err != nil {
		return nil, fmt.Errorf("parsing candlesticks for %s: %w", market, err)
	}

	return candles, nil
}

// FetchCandles fetches an ordered candlestick series for the provided market.
// Transient venue failures surface as shared.ErrRateLimited or
// shared.ErrUnavailable so callers can retry them under a policy.
func (c *KrakenClient) FetchCandles(ctx context.Context, market string, interval time.Duration, limit int) ([]shared.Candlestick, error) {
	const ohlcPath = "/OHLC"

	pair, ok := marketLookup[market]
	if !ok {
		return nil, fmt.Errorf("unknown kraken pair for market %s", market)
	}

	since := time.Now().Add(-time.Duration(2*limit) * interval)

	params := url.Values{}
	params.Add("pair", pair)
	params.Add("interval", strconv.Itoa(int(interval.Minutes())))
	params.Add("since", strconv.FormatInt(since.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(ohlcPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating ohlc request for %s: %w", market, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ohlc data for %s: %v: %w", market, err, shared.ErrUnavailable)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetching ohlc data for %s: %w", market, shared.ErrRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("fetching ohlc data for %s: status %d: %w",
			market, resp.StatusCode, shared.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching ohlc data for %s: unexpected status %d", market, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ohlc response body: %w", err)
	}

	if apiErrs := gjson.GetBytes(body, "error").Array(); len(apiErrs) > 0 {
		return nil, fmt.Errorf("kraken ohlc error for %s: %s: %w",
			market, apiErrs[0].String(), shared.ErrUnavailable)
	}

	rows := gjson.GetBytes(body, fmt.Sprintf("result.%s", pair)).Array()
	candles, err := ParseCandlesticks(rows, market, interval)
	if err != nil {
		return nil, err
	}

	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}
