// Package gateway submits orders to the Kraken private API and reports venue
// state back for reconciliation. In dry-run mode submissions are simulated
// without contacting the venue.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lukaw/swingbot/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the kraken api base url.
	BaseURL = "https://api.kraken.com"
)

// pairLookup maps standard market symbols to kraken pair names.
var pairLookup = map[string]string{
	"BTC/USD": "XXBTZUSD",
	"ETH/USD": "XETHZUSD",
	"USD/CAD": "ZUSDZCAD",
	"ETH/BTC": "ETHXBT",
}

// marketFromPair reverses pairLookup for venue-reported order pairs.
func marketFromPair(pair string) (string, bool) {
	for market, candidate := range pairLookup {
		if candidate == pair {
			return market, true
		}
	}

	return "", false
}

// KrakenConfig represents the configuration for the kraken execution gateway.
type KrakenConfig struct {
	// BaseURL is the api base url.
	BaseURL string
	// APIKey is the kraken api key.
	APIKey string
	// APISecret is the base64 encoded kraken api secret.
	APISecret string
	// FeeRate discounts reported balances to usable capital.
	FeeRate decimal.Decimal
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *KrakenConfig) Validate() error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("kraken base url cannot be an empty string")
	}
	if cfg.FeeRate.IsNegative() {
		return fmt.Errorf("fee rate cannot be negative, got %s", cfg.FeeRate)
	}

	return nil
}

// Kraken represents the kraken execution gateway.
type Kraken struct {
	cfg   *KrakenConfig
	httpc http.Client
}

// Ensure the gateway implements the ExecutionGateway interface.
var _ shared.ExecutionGateway = (*Kraken)(nil)

// NewKraken initializes a new kraken execution gateway.
func NewKraken(cfg *KrakenConfig) (*Kraken, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating gateway config: %w", err)
	}

	gw := &Kraken{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
	}

	return gw, nil
}

// sign produces the API-Sign header for a private request.
func (k *Kraken) sign(path string, nonce string, form url.Values) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(k.cfg.APISecret)
	if err != nil {
		return "", fmt.Errorf("decoding api secret: %w", err)
	}

	digest := sha256.Sum256([]byte(nonce + form.Encode()))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// post issues a signed private api request and returns the result payload.
func (k *Kraken) post(ctx context.Context, path string, form url.Values) (gjson.Result, error) {
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	form.Set("nonce", nonce)

	sig, err := k.sign(path, nonce, form)
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.BaseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request for %s: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.cfg.APIKey)
	req.Header.Set("API-Sign", sig)

	resp, err := k.httpc.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("requesting %s: %v: %w", path, err, shared.ErrUnavailable)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, fmt.Errorf("requesting %s: %w", path, shared.ErrRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		return gjson.Result{}, fmt.Errorf("requesting %s: status %d: %w",
			path, resp.StatusCode, shared.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return gjson.Result{}, fmt.Errorf("requesting %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading %s response body: %w", path, err)
	}

	if apiErrs := gjson.GetBytes(body, "error").Array(); len(apiErrs) > 0 {
		msg := apiErrs[0].String()
		if strings.Contains(msg, "Rate limit") {
			return gjson.Result{}, fmt.Errorf("requesting %s: %s: %w", path, msg, shared.ErrRateLimited)
		}
		return gjson.Result{}, fmt.Errorf("requesting %s: %s", path, msg)
	}

	return gjson.GetBytes(body, "result"), nil
}

// Submit places the provided order intent with the venue. In dry-run mode
// acceptance is simulated at the intent price without any network I/O.
func (k *Kraken) Submit(ctx context.Context, intent *shared.OrderIntent, mode shared.Mode) (*shared.OrderResult, error) {
	if mode.DryRun() {
		result := &shared.OrderResult{
			Accepted:    true,
			FilledPrice: intent.Price,
			Reference:   "sim-" + uuid.New().String(),
			Simulated:   true,
		}

		k.cfg.Logger.Info().Msgf("[dry-run] %s %s @ %s, volume %s",
			intent.Side.String(), intent.Market, intent.Price, intent.Volume)

		return result, nil
	}

	pair, ok := pairLookup[intent.Market]
	if !ok {
		return nil, fmt.Errorf("unknown kraken pair for market %s", intent.Market)
	}

	form := url.Values{}
	form.Set("pair", pair)
	form.Set("type", intent.Side.String())
	form.Set("ordertype", "limit")
	form.Set("price", intent.Price.String())
	form.Set("volume", intent.Volume.String())

	result, err := k.post(ctx, "/0/private/AddOrder", form)
	if err != nil {
		return nil, fmt.Errorf("submitting %s order for %s: %w", intent.Side.String(), intent.Market, err)
	}

	txids := result.Get("txid").Array()
	if len(txids) == 0 {
		return &shared.OrderResult{Accepted: false}, nil
	}

	return &shared.OrderResult{
		Accepted:    true,
		FilledPrice: intent.Price,
		Reference:   txids[0].String(),
	}, nil
}

// OpenOrders reports the venue's currently open orders for reconciliation.
func (k *Kraken) OpenOrders(ctx context.Context) ([]shared.ExternalOrder, error) {
	result, err := k.post(ctx, "/0/private/OpenOrders", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("fetching open orders: %w", err)
	}

	var orders []shared.ExternalOrder
	result.Get("open").ForEach(func(txid, order gjson.Result) bool {
		market, ok := marketFromPair(order.Get("descr.pair").String())
		if !ok {
			k.cfg.Logger.Warn().Msgf("skipping open order %s with unknown pair %s",
				txid.String(), order.Get("descr.pair").String())
			return true
		}

		side := shared.SideBuy
		if order.Get("descr.type").String() == "sell" {
			side = shared.SideSell
		}

		price, err := decimal.NewFromString(order.Get("descr.price").String())
		if err != nil {
			k.cfg.Logger.Warn().Msgf("skipping open order %s with malformed price %q",
				txid.String(), order.Get("descr.price").String())
			return true
		}

		volume, err := decimal.NewFromString(order.Get("vol").String())
		if err != nil {
			k.cfg.Logger.Warn().Msgf("skipping open order %s with malformed volume %q",
				txid.String(), order.Get("vol").String())
			return true
		}

		orders = append(orders, shared.ExternalOrder{
			Reference: txid.String(),
			Market:    market,
			Side:      side,
			Price:     price,
			Volume:    volume,
			CreatedOn: time.Unix(int64(order.Get("opentm").Float()), 0).UTC(),
		})

		return true
	})

	return orders, nil
}

// AvailableBalance reports the usable quote balance for the provided market,
// discounted by the fee rate.
func (k *Kraken) AvailableBalance(ctx context.Context, market string) (decimal.Decimal, error) {
	parts := strings.Split(market, "/")
	if len(parts) != 2 {
		return decimal.Zero, fmt.Errorf("malformed market symbol %s", market)
	}

	// Kraken prefixes three-letter fiat assets with Z.
	asset := parts[1]
	if len(asset) == 3 {
		asset = "Z" + asset
	}

	result, err := k.post(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching balance for %s: %w", market, err)
	}

	raw := result.Get(asset).String()
	if raw == "" {
		return decimal.Zero, nil
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s balance %q: %w", asset, raw, err)
	}

	usable := balance.Mul(decimal.NewFromInt(1).Sub(k.cfg.FeeRate))

	return usable, nil
}

// baseAsset maps a market symbol to Kraken's ledger name for its base asset.
func baseAsset(market string) (string, error) {
	parts := strings.Split(market, "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed market symbol %s", market)
	}

	// Kraken prefixes major crypto assets with X.
	asset := parts[0]
	switch asset {
	case "BTC":
		asset = "XXBT"
	case "ETH":
		asset = "XETH"
	case "XRP", "LTC":
		asset = "X" + asset
	}

	return asset, nil
}

// BaseBalances reports the venue balances of the provided markets' base
// assets with a single balance fetch, used to detect phantom positions whose
// holdings vanished on the venue.
func (k *Kraken) BaseBalances(ctx context.Context, markets []string) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(markets))
	if len(markets) == 0 {
		return balances, nil
	}

	result, err := k.post(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("fetching base balances: %w", err)
	}

	for _, market := range markets {
		asset, err := baseAsset(market)
		if err != nil {
			return nil, err
		}

		raw := result.Get(asset).String()
		if raw == "" {
			balances[market] = decimal.Zero
			continue
		}

		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s balance %q: %w", asset, raw, err)
		}

		balances[market] = balance
	}

	return balances, nil
}
