package main

import (
	"flag"
	"os"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		Markets:    []string{"BTC/USD", "ETH/USD"},
		Mode:       "dev",
		DBEndpoint: "http://localhost:4001",
	}
	cfg.setDefaults()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid config",
			mutate:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name: "missing markets",
			mutate: func(cfg *Config) {
				cfg.Markets = nil
			},
			wantErr: []string{"no markets provided for the trading bot"},
		},
		{
			name: "report mode needs no markets",
			mutate: func(cfg *Config) {
				cfg.Markets = nil
				cfg.Report = true
			},
			wantErr: nil,
		},
		{
			name: "missing database endpoint",
			mutate: func(cfg *Config) {
				cfg.DBEndpoint = ""
			},
			wantErr: []string{"database endpoint cannot be an empty string"},
		},
		{
			name: "prod mode without kraken credentials",
			mutate: func(cfg *Config) {
				cfg.Mode = "prod"
			},
			wantErr: []string{"kraken credentials are required in prod mode"},
		},
		{
			name: "prod report without kraken credentials",
			mutate: func(cfg *Config) {
				cfg.Mode = "prod"
				cfg.Report = true
			},
			wantErr: nil,
		},
		{
			name: "unknown mode",
			mutate: func(cfg *Config) {
				cfg.Mode = "paper"
			},
			wantErr: []string{"unknown bot mode"},
		},
		{
			name: "fee rate out of range",
			mutate: func(cfg *Config) {
				cfg.FeeRate = 1.5
			},
			wantErr: []string{"fee rate must be in [0, 1)"},
		},
		{
			name: "candle history below lookback",
			mutate: func(cfg *Config) {
				cfg.Lookback = 30
				cfg.CandleHistory = 20
			},
			wantErr: []string{"candle history 20 cannot cover lookback 30"},
		},
		{
			name: "missing markets and endpoint",
			mutate: func(cfg *Config) {
				cfg.Markets = nil
				cfg.DBEndpoint = ""
			},
			wantErr: []string{
				"no markets provided for the trading bot",
				"database endpoint cannot be an empty string",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("expected error(s) %v, got none", tt.wantErr)
					return
				}
				for _, want := range tt.wantErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()

	// Ensure the documented defaults are applied to unset tunables.
	if cfg.Mode != "dev" {
		t.Errorf("Mode: got %v, want dev", cfg.Mode)
	}
	if cfg.TradeTag != defaultTradeTag {
		t.Errorf("TradeTag: got %v, want %v", cfg.TradeTag, defaultTradeTag)
	}
	if cfg.FeeRate != defaultFeeRate {
		t.Errorf("FeeRate: got %v, want %v", cfg.FeeRate, defaultFeeRate)
	}
	if cfg.RSIExitThreshold != defaultRSIExitThreshold {
		t.Errorf("RSIExitThreshold: got %v, want %v", cfg.RSIExitThreshold, defaultRSIExitThreshold)
	}
	if cfg.CandleIntervalMinutes != defaultCandleIntervalMinutes {
		t.Errorf("CandleIntervalMinutes: got %v, want %v",
			cfg.CandleIntervalMinutes, defaultCandleIntervalMinutes)
	}

	// Ensure explicit settings survive.
	cfg = Config{FeeRate: 0.001, Lookback: 21}
	cfg.setDefaults()
	if cfg.FeeRate != 0.001 {
		t.Errorf("FeeRate: got %v, want 0.001", cfg.FeeRate)
	}
	if cfg.Lookback != 21 {
		t.Errorf("Lookback: got %v, want 21", cfg.Lookback)
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "all from env",
			env: map[string]string{
				"markets":    "BTC/USD,ETH/USD",
				"mode":       "test",
				"dbendpoint": "http://localhost:4001",
				"feerate":    "0.0025",
			},
			args: []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Markets) != 2 {
					t.Errorf("Markets: got %v, want 2 markets", cfg.Markets)
				}
				if cfg.Mode != "test" {
					t.Errorf("Mode: got %v, want test", cfg.Mode)
				}
				if cfg.FeeRate != 0.0025 {
					t.Errorf("FeeRate: got %v, want 0.0025", cfg.FeeRate)
				}
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"markets":    "BTC/USD",
				"mode":       "dev",
				"dbendpoint": "http://localhost:4001",
			},
			args: []string{"cmd", "-mode=test", "-lookback=21", "-rsiexitthreshold=75"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Mode != "test" {
					t.Errorf("Mode: got %v, want test", cfg.Mode)
				}
				if cfg.Lookback != 21 {
					t.Errorf("Lookback: got %v, want 21", cfg.Lookback)
				}
				if cfg.RSIExitThreshold != 75 {
					t.Errorf("RSIExitThreshold: got %v, want 75", cfg.RSIExitThreshold)
				}
			},
		},
		{
			name:        "missing markets and endpoint",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"no markets provided for the trading bot", "database endpoint cannot be an empty string"},
		},
		{
			name: "report without markets",
			env: map[string]string{
				"dbendpoint": "http://localhost:4001",
			},
			args: []string{"cmd", "-report"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Report {
					t.Errorf("Report: got false, want true")
				}
			},
		},
		{
			name: "defaults applied when unset",
			env: map[string]string{
				"markets":    "BTC/USD",
				"dbendpoint": "http://localhost:4001",
			},
			args: []string{"cmd"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.CandleHistory != defaultCandleHistory {
					t.Errorf("CandleHistory: got %v, want %v", cfg.CandleHistory, defaultCandleHistory)
				}
				if cfg.TradeTag != defaultTradeTag {
					t.Errorf("TradeTag: got %v, want %v", cfg.TradeTag, defaultTradeTag)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "") // don't load .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				tt.check(t, &cfg)
			}

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}
		})
	}
}
