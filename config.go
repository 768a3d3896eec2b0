package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lukaw/swingbot/shared"
)

// Default tunables, overridable through the environment or flags.
const (
	defaultFeeRate               = 0.005
	defaultEntryBuffer           = 0.001
	defaultATRMultiplier         = 1.6
	defaultRSIExitThreshold      = 80
	defaultRSIEntryCeiling       = 70
	defaultMinFGScoreForEntry    = 30
	defaultDangerFGScoreForExit  = 15
	defaultLookback              = 14
	defaultCandleHistory         = 60
	defaultCandleIntervalMinutes = 240
	defaultStalenessMinutes      = 90
	defaultRetryMaxAttempts      = 3
	defaultRetryBaseDelaySecs    = 2
	defaultTradeTag              = "swing"
)

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the traded markets.
	Markets []string
	// Mode is the bot run mode (dev, test or prod).
	Mode string
	// Report requests a performance report instead of a trading cycle.
	Report bool
	// TradeTag labels positions opened by this bot.
	TradeTag string
	// DBEndpoint is the rqlite endpoint.
	DBEndpoint string
	// DBUser is the rqlite basic auth user.
	DBUser string
	// DBPass is the rqlite basic auth password.
	DBPass string
	// KrakenAPIKey is the kraken API key.
	KrakenAPIKey string
	// KrakenAPISecret is the kraken API secret.
	KrakenAPISecret string
	// PushoverToken is the pushover application token.
	PushoverToken string
	// PushoverUser is the pushover user key.
	PushoverUser string
	// FeeRate is the venue fee rate applied per order.
	FeeRate float64
	// EntryBuffer scales the ATR offset added to entry limit prices.
	EntryBuffer float64
	// ATRMultiplier scales the supertrend volatility bands.
	ATRMultiplier float64
	// RSIExitThreshold is the overbought exit level.
	RSIExitThreshold float64
	// RSIEntryCeiling is the level above which entries are suppressed.
	RSIEntryCeiling float64
	// MinFGScoreForEntry is the sentiment floor for entries.
	MinFGScoreForEntry int
	// DangerFGScoreForExit is the sentiment level forcing positions out.
	DangerFGScoreForExit int
	// Lookback is the indicator lookback period.
	Lookback int
	// CandleHistory is the number of candles fetched per market each cycle.
	CandleHistory int
	// CandleIntervalMinutes is the candle timeframe in minutes.
	CandleIntervalMinutes int
	// SentimentStalenessMinutes bounds usable sentiment score age.
	SentimentStalenessMinutes int
	// CycleIntervalMinutes schedules repeated cycles when positive.
	CycleIntervalMinutes int
	// RetryMaxAttempts caps venue retries per call.
	RetryMaxAttempts int
	// RetryBaseDelaySeconds is the initial venue retry delay.
	RetryBaseDelaySeconds int

	registeredFlags map[string]bool
}

// setDefaults fills unset tunables with their defaults.
func (cfg *Config) setDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = shared.Dev.String()
	}
	if cfg.TradeTag == "" {
		cfg.TradeTag = defaultTradeTag
	}
	if cfg.FeeRate == 0 {
		cfg.FeeRate = defaultFeeRate
	}
	if cfg.EntryBuffer == 0 {
		cfg.EntryBuffer = defaultEntryBuffer
	}
	if cfg.ATRMultiplier == 0 {
		cfg.ATRMultiplier = defaultATRMultiplier
	}
	if cfg.RSIExitThreshold == 0 {
		cfg.RSIExitThreshold = defaultRSIExitThreshold
	}
	if cfg.RSIEntryCeiling == 0 {
		cfg.RSIEntryCeiling = defaultRSIEntryCeiling
	}
	if cfg.MinFGScoreForEntry == 0 {
		cfg.MinFGScoreForEntry = defaultMinFGScoreForEntry
	}
	if cfg.DangerFGScoreForExit == 0 {
		cfg.DangerFGScoreForExit = defaultDangerFGScoreForExit
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.CandleHistory == 0 {
		cfg.CandleHistory = defaultCandleHistory
	}
	if cfg.CandleIntervalMinutes == 0 {
		cfg.CandleIntervalMinutes = defaultCandleIntervalMinutes
	}
	if cfg.SentimentStalenessMinutes == 0 {
		cfg.SentimentStalenessMinutes = defaultStalenessMinutes
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.RetryBaseDelaySeconds == 0 {
		cfg.RetryBaseDelaySeconds = defaultRetryBaseDelaySecs
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	mode, err := shared.ParseMode(cfg.Mode)
	if err != nil {
		errs = errors.Join(errs, err)
	}

	if !cfg.Report && len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for the trading bot"))
	}
	if cfg.DBEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if mode == shared.Prod && !cfg.Report {
		if cfg.KrakenAPIKey == "" || cfg.KrakenAPISecret == "" {
			errs = errors.Join(errs, fmt.Errorf("kraken credentials are required in prod mode"))
		}
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		errs = errors.Join(errs, fmt.Errorf("fee rate must be in [0, 1), got %f", cfg.FeeRate))
	}
	if cfg.EntryBuffer < 0 {
		errs = errors.Join(errs, fmt.Errorf("entry buffer cannot be negative, got %f", cfg.EntryBuffer))
	}
	if cfg.ATRMultiplier <= 0 {
		errs = errors.Join(errs, fmt.Errorf("atr multiplier must be positive, got %f", cfg.ATRMultiplier))
	}
	if cfg.Lookback < 1 {
		errs = errors.Join(errs, fmt.Errorf("lookback must be positive, got %d", cfg.Lookback))
	}
	if cfg.CandleHistory < cfg.Lookback+1 {
		errs = errors.Join(errs, fmt.Errorf("candle history %d cannot cover lookback %d",
			cfg.CandleHistory, cfg.Lookback))
	}
	if cfg.CandleIntervalMinutes <= 0 {
		errs = errors.Join(errs, fmt.Errorf("candle interval must be positive, got %d",
			cfg.CandleIntervalMinutes))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, reg := range []struct {
		name  string
		value interface{}
		usage string
	}{
		{"markets", &cfg.Markets, "the traded markets"},
		{"mode", &cfg.Mode, "the bot run mode (dev, test or prod)"},
		{"report", &cfg.Report, "generate a performance report instead of trading"},
		{"tradetag", &cfg.TradeTag, "the label for positions opened by this bot"},
		{"dbendpoint", &cfg.DBEndpoint, "the rqlite endpoint"},
		{"dbuser", &cfg.DBUser, "the rqlite basic auth user"},
		{"dbpass", &cfg.DBPass, "the rqlite basic auth password"},
		{"krakenapikey", &cfg.KrakenAPIKey, "the kraken api key"},
		{"krakenapisecret", &cfg.KrakenAPISecret, "the kraken api secret"},
		{"pushovertoken", &cfg.PushoverToken, "the pushover application token"},
		{"pushoveruser", &cfg.PushoverUser, "the pushover user key"},
		{"feerate", &cfg.FeeRate, "the venue fee rate applied per order"},
		{"entrybuffer", &cfg.EntryBuffer, "the atr offset scale for entry limit prices"},
		{"atrmultiplier", &cfg.ATRMultiplier, "the supertrend band multiplier"},
		{"rsiexitthreshold", &cfg.RSIExitThreshold, "the overbought rsi exit level"},
		{"rsientryceiling", &cfg.RSIEntryCeiling, "the rsi level above which entries are suppressed"},
		{"minfgscoreforentry", &cfg.MinFGScoreForEntry, "the sentiment floor for entries"},
		{"dangerfgscoreforexit", &cfg.DangerFGScoreForExit, "the sentiment level forcing exits"},
		{"lookback", &cfg.Lookback, "the indicator lookback period"},
		{"candlehistory", &cfg.CandleHistory, "the number of candles fetched per cycle"},
		{"candleinterval", &cfg.CandleIntervalMinutes, "the candle timeframe in minutes"},
		{"sentimentstaleness", &cfg.SentimentStalenessMinutes, "the usable sentiment age in minutes"},
		{"cycleinterval", &cfg.CycleIntervalMinutes, "the minutes between scheduled cycles, 0 for one cycle"},
		{"retrymaxattempts", &cfg.RetryMaxAttempts, "the venue retry attempt cap"},
		{"retrybasedelay", &cfg.RetryBaseDelaySeconds, "the initial venue retry delay in seconds"},
	} {
		err = cfg.registerFlag(reg.name, reg.value, reg.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.setDefaults()

	return cfg.Validate()
}
