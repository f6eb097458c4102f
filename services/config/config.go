// Package config defines the explicit run configuration. Every tuning knob
// the engine consults is a named field with a default here; nothing reads
// the environment from inside the engine, so two differently configured
// drivers can coexist in one process.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Symbol      string  `yaml:"symbol" json:"symbol"`
	StartDate   string  `yaml:"start_date" json:"start_date"`
	EndDate     string  `yaml:"end_date" json:"end_date"`
	InitialCash float64 `yaml:"initial_cash" json:"initial_cash"`
	LotSize     int64   `yaml:"lot_size" json:"lot_size"`

	CommissionRate  float64 `yaml:"commission_rate" json:"commission_rate"`
	StampDutyRate   float64 `yaml:"stamp_duty_rate" json:"stamp_duty_rate"`
	TransferFeeRate float64 `yaml:"transfer_fee_rate" json:"transfer_fee_rate"`
	SlippageRate    float64 `yaml:"slippage_rate" json:"slippage_rate"`

	// Position sizing when the strategy document does not specify one.
	PositionPct float64 `yaml:"position_pct" json:"position_pct"`

	// Risk-gate tuning. These calibrations are strategy concerns, not
	// correctness concerns, so they are fields rather than constants.
	CooldownOpenDays      int     `yaml:"cooldown_open_days" json:"cooldown_open_days"`
	CooldownReleaseRSI    float64 `yaml:"cooldown_release_rsi" json:"cooldown_release_rsi"`
	CooldownReleaseBand   float64 `yaml:"cooldown_release_band" json:"cooldown_release_band"`
	DowntrendCapPct       float64 `yaml:"downtrend_cap_pct" json:"downtrend_cap_pct"`
	AddOnMaxEMARatio      float64 `yaml:"addon_max_ema_ratio" json:"addon_max_ema_ratio"`
	AddOnMaxEMARatioHot   float64 `yaml:"addon_max_ema_ratio_hot" json:"addon_max_ema_ratio_hot"`
	MaxBuysPerWindow      int     `yaml:"max_buys_per_window" json:"max_buys_per_window"`
	BuyWindowOpenDays     int     `yaml:"buy_window_open_days" json:"buy_window_open_days"`
	InvalidationSellRatio float64 `yaml:"invalidation_sell_ratio" json:"invalidation_sell_ratio"`

	// Decision-provider retry policy.
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	MaxRetryBackoff        time.Duration `yaml:"max_retry_backoff" json:"max_retry_backoff"`

	// StrictPersistence makes store write failures fatal instead of
	// best-effort.
	StrictPersistence bool `yaml:"strict_persistence" json:"strict_persistence"`
}

// Default returns the standard A-share configuration.
func Default() Config {
	return Config{
		InitialCash:            100000,
		LotSize:                100,
		CommissionRate:         0.0003,
		StampDutyRate:          0.0005,
		TransferFeeRate:        0.00001,
		SlippageRate:           0.001,
		PositionPct:            25,
		CooldownOpenDays:       3,
		CooldownReleaseRSI:     40,
		CooldownReleaseBand:    0.015,
		DowntrendCapPct:        0.15,
		AddOnMaxEMARatio:       1.03,
		AddOnMaxEMARatioHot:    1.10,
		MaxBuysPerWindow:       2,
		BuyWindowOpenDays:      5,
		InvalidationSellRatio:  0.5,
		MaxConsecutiveFailures: 3,
		MaxRetryBackoff:        60 * time.Second,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot produce a sound simulation.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("config: initial_cash must be positive")
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("config: lot_size must be positive")
	}
	if c.PositionPct <= 0 || c.PositionPct > 100 {
		return fmt.Errorf("config: position_pct %.2f out of (0,100]", c.PositionPct)
	}
	if c.DowntrendCapPct <= 0 || c.DowntrendCapPct > 1 {
		return fmt.Errorf("config: downtrend_cap_pct %.2f out of (0,1]", c.DowntrendCapPct)
	}
	return nil
}

// Snapshot records content hashes of the effective config and strategy
// document so a run manifest can prove what it executed.
type Snapshot struct {
	ConfigHash   string `json:"config_hash"`
	StrategyHash string `json:"strategy_hash"`
	Timestamp    int64  `json:"timestamp"`
}

// NewSnapshot hashes the config and the raw strategy document.
func NewSnapshot(cfg Config, strategyDoc []byte) Snapshot {
	cfgBytes, _ := json.Marshal(cfg)
	return Snapshot{
		ConfigHash:   fmt.Sprintf("%x", sha256.Sum256(cfgBytes)),
		StrategyHash: fmt.Sprintf("%x", sha256.Sum256(strategyDoc)),
		Timestamp:    time.Now().UnixMilli(),
	}
}
