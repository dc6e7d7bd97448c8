package config

import (
	"encoding/json"
	"fmt"
	"os"

	"krait/market"
	"gopkg.in/yaml.v3"
)

// Run modes accepted by Config.Mode.
const (
	ModeBacktest = "BACKTEST"
	ModePaper    = "PAPER"
	ModeLive     = "LIVE"
)

// Config represents the complete bot configuration
type Config struct {
	Symbol  string   `json:"symbol" yaml:"symbol"`
	Symbols []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Mode    string   `json:"mode" yaml:"mode"` // BACKTEST, PAPER or LIVE

	EntryTimeframe  string `json:"entry_timeframe" yaml:"entry_timeframe"`
	FilterTimeframe string `json:"filter_timeframe" yaml:"filter_timeframe"`

	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Indicators IndicatorConfig  `json:"indicators" yaml:"indicators"`
	Features   FeatureConfig    `json:"features" yaml:"features"`
	Adaptive   AdaptiveConfig   `json:"adaptive" yaml:"adaptive"`
	Timeframes TimeframeConfig  `json:"timeframes" yaml:"timeframes"`
	ML         MLConfig         `json:"ml" yaml:"ml"`
	Portfolio  PortfolioConfig  `json:"portfolio" yaml:"portfolio"`
	Exits      ExitConfig       `json:"exits" yaml:"exits"`
	Regime     RegimeConfig     `json:"regime" yaml:"regime"`
	Volume     VolumeConfig     `json:"volume_profile" yaml:"volume_profile"`
	Backtest   BacktestConfig   `json:"backtest" yaml:"backtest"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Execution  ExecutionConfig  `json:"execution" yaml:"execution"`
}

// RiskConfig contains position sizing and stop parameters
type RiskConfig struct {
	RiskPerTrade   float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
	Leverage       int     `json:"leverage" yaml:"leverage"`
	StopATRMult    float64 `json:"stop_loss_atr_multiplier" yaml:"stop_loss_atr_multiplier"`
	TrailATRMult   float64 `json:"trailing_stop_atr_multiplier" yaml:"trailing_stop_atr_multiplier"`
	MinOrderSize   float64 `json:"min_order_size" yaml:"min_order_size"`
}

// IndicatorConfig contains technical indicator parameters
type IndicatorConfig struct {
	ATRPeriod     int     `json:"atr_period" yaml:"atr_period"`
	ADXPeriod     int     `json:"adx_period" yaml:"adx_period"`
	ADXThreshold  float64 `json:"adx_threshold" yaml:"adx_threshold"`
	RVOLPeriod    int     `json:"rvol_period" yaml:"rvol_period"`
	RVOLThreshold float64 `json:"rvol_threshold" yaml:"rvol_threshold"`
}

// FeatureConfig toggles the optional analyzers
type FeatureConfig struct {
	AdaptiveThresholds bool `json:"adaptive_thresholds" yaml:"adaptive_thresholds"`
	MultiTimeframe     bool `json:"multi_timeframe" yaml:"multi_timeframe"`
	VolumeProfile      bool `json:"volume_profile" yaml:"volume_profile"`
	MLPrediction       bool `json:"ml_prediction" yaml:"ml_prediction"`
	PortfolioMgmt      bool `json:"portfolio_management" yaml:"portfolio_management"`
	AdvancedExits      bool `json:"advanced_exits" yaml:"advanced_exits"`
	RegimeDetection    bool `json:"regime_detection" yaml:"regime_detection"`
}

// AdaptiveConfig contains adaptive threshold bounds
type AdaptiveConfig struct {
	UpdateIntervalSec int     `json:"update_interval" yaml:"update_interval"`
	LookbackDays      int     `json:"lookback_days" yaml:"lookback_days"`
	MinADX            float64 `json:"min_adx" yaml:"min_adx"`
	MaxADX            float64 `json:"max_adx" yaml:"max_adx"`
	MinRVOL           float64 `json:"min_rvol" yaml:"min_rvol"`
	MaxRVOL           float64 `json:"max_rvol" yaml:"max_rvol"`
}

// TimeframeConfig contains multi-timeframe weights and alignment rules
type TimeframeConfig struct {
	Weights      map[string]float64 `json:"weights" yaml:"weights"`
	MinAlignment int                `json:"min_alignment" yaml:"min_alignment"`
}

// MLConfig contains the prediction gate thresholds
type MLConfig struct {
	HighConfidence float64 `json:"high_confidence_threshold" yaml:"high_confidence_threshold"`
	LowConfidence  float64 `json:"low_confidence_threshold" yaml:"low_confidence_threshold"`
	MinAccuracy    float64 `json:"min_accuracy" yaml:"min_accuracy"`
	AccuracyWindow int     `json:"accuracy_window" yaml:"accuracy_window"`
}

// PortfolioConfig contains multi-symbol admission limits
type PortfolioConfig struct {
	MaxSymbols            int     `json:"max_symbols" yaml:"max_symbols"`
	CorrelationThreshold  float64 `json:"correlation_threshold" yaml:"correlation_threshold"`
	CorrelationMaxExp     float64 `json:"correlation_max_exposure" yaml:"correlation_max_exposure"`
	MaxSingleAllocation   float64 `json:"max_single_allocation" yaml:"max_single_allocation"`
	RebalanceIntervalSec  int     `json:"rebalance_interval" yaml:"rebalance_interval"`
	CorrelationLookback   int     `json:"correlation_lookback_days" yaml:"correlation_lookback_days"`
	MaxTotalRisk          float64 `json:"max_total_risk" yaml:"max_total_risk"`
}

// ExitConfig contains the scaled exit ladder parameters
type ExitConfig struct {
	Partial1ATRMult   float64 `json:"partial_1_atr_multiplier" yaml:"partial_1_atr_multiplier"`
	Partial1Pct       float64 `json:"partial_1_percentage" yaml:"partial_1_percentage"`
	Partial2ATRMult   float64 `json:"partial_2_atr_multiplier" yaml:"partial_2_atr_multiplier"`
	Partial2Pct       float64 `json:"partial_2_percentage" yaml:"partial_2_percentage"`
	FinalATRMult      float64 `json:"final_atr_multiplier" yaml:"final_atr_multiplier"`
	BreakevenATRMult  float64 `json:"breakeven_atr_multiplier" yaml:"breakeven_atr_multiplier"`
	TightStopATRMult  float64 `json:"tight_stop_atr_multiplier" yaml:"tight_stop_atr_multiplier"`
	MaxHoldHours      int     `json:"max_hold_time_hours" yaml:"max_hold_time_hours"`
	RegimeChangeExits bool    `json:"regime_change_enabled" yaml:"regime_change_enabled"`
}

// RegimeConfig contains market regime classification parameters
type RegimeConfig struct {
	UpdateIntervalSec   int     `json:"update_interval" yaml:"update_interval"`
	StabilityMinutes    int     `json:"stability_minutes" yaml:"stability_minutes"`
	TrendingADX         float64 `json:"trending_adx_threshold" yaml:"trending_adx_threshold"`
	RangingADX          float64 `json:"ranging_adx_threshold" yaml:"ranging_adx_threshold"`
	VolatileATRPct      float64 `json:"volatile_atr_percentile" yaml:"volatile_atr_percentile"`
	RangingATRPct       float64 `json:"ranging_atr_percentile" yaml:"ranging_atr_percentile"`
	TrendingStopMult    float64 `json:"trending_stop_multiplier" yaml:"trending_stop_multiplier"`
	RangingStopMult     float64 `json:"ranging_stop_multiplier" yaml:"ranging_stop_multiplier"`
	VolatileSizeFactor  float64 `json:"volatile_size_reduction" yaml:"volatile_size_reduction"`
	VolatileThreshInc   float64 `json:"volatile_threshold_increase" yaml:"volatile_threshold_increase"`
}

// VolumeConfig contains volume profile parameters
type VolumeConfig struct {
	UpdateIntervalSec int     `json:"update_interval" yaml:"update_interval"`
	LookbackDays      int     `json:"lookback_days" yaml:"lookback_days"`
	BinSize           float64 `json:"bin_size" yaml:"bin_size"`
	ValueAreaPct      float64 `json:"value_area_pct" yaml:"value_area_pct"`
	KeyLevelThreshold float64 `json:"key_level_threshold" yaml:"key_level_threshold"`
	LowVolumeFactor   float64 `json:"low_volume_size_reduction" yaml:"low_volume_size_reduction"`
}

// BacktestConfig contains replay cost model parameters
type BacktestConfig struct {
	Days       int     `json:"days" yaml:"days"`
	TradingFee float64 `json:"trading_fee" yaml:"trading_fee"`
	Slippage   float64 `json:"slippage" yaml:"slippage"`
	Balance    float64 `json:"balance" yaml:"balance"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoggingConfig contains log output parameters
type LoggingConfig struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	Level      string `json:"level" yaml:"level"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// ExecutionConfig contains exchange call retry parameters
type ExecutionConfig struct {
	MaxRetries   int `json:"max_retries" yaml:"max_retries"`
	BackoffMS    int `json:"backoff_ms" yaml:"backoff_ms"`
	RateLimitMin int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Mode != ModeBacktest && c.Mode != ModePaper && c.Mode != ModeLive {
		return fmt.Errorf("mode must be BACKTEST, PAPER or LIVE, got %q", c.Mode)
	}
	if _, err := market.ParseTimeframe(c.EntryTimeframe); err != nil {
		return fmt.Errorf("entry_timeframe: %w", err)
	}
	if _, err := market.ParseTimeframe(c.FilterTimeframe); err != nil {
		return fmt.Errorf("filter_timeframe: %w", err)
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be between 0 and 1")
	}
	if c.Risk.Leverage < 1 || c.Risk.Leverage > 125 {
		return fmt.Errorf("risk.leverage must be between 1 and 125")
	}
	if c.Risk.StopATRMult <= 0 {
		return fmt.Errorf("risk.stop_loss_atr_multiplier must be positive")
	}
	if c.Risk.TrailATRMult <= 0 {
		return fmt.Errorf("risk.trailing_stop_atr_multiplier must be positive")
	}

	if c.Indicators.ATRPeriod < 1 {
		return fmt.Errorf("indicators.atr_period must be at least 1")
	}
	if c.Indicators.ADXPeriod < 1 {
		return fmt.Errorf("indicators.adx_period must be at least 1")
	}
	if c.Indicators.ADXThreshold < 0 || c.Indicators.ADXThreshold > 100 {
		return fmt.Errorf("indicators.adx_threshold must be between 0 and 100")
	}
	if c.Indicators.RVOLPeriod < 1 {
		return fmt.Errorf("indicators.rvol_period must be at least 1")
	}
	if c.Indicators.RVOLThreshold <= 0 {
		return fmt.Errorf("indicators.rvol_threshold must be positive")
	}

	if c.Adaptive.MinADX >= c.Adaptive.MaxADX {
		return fmt.Errorf("adaptive.min_adx must be less than adaptive.max_adx")
	}
	if c.Adaptive.MinRVOL >= c.Adaptive.MaxRVOL {
		return fmt.Errorf("adaptive.min_rvol must be less than adaptive.max_rvol")
	}

	if c.Timeframes.MinAlignment < 1 || c.Timeframes.MinAlignment > 4 {
		return fmt.Errorf("timeframes.min_alignment must be between 1 and 4")
	}
	var weightSum float64
	for tf, w := range c.Timeframes.Weights {
		if _, err := market.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("timeframes.weights: %w", err)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("timeframes.weights[%s] must be between 0 and 1", tf)
		}
		weightSum += w
	}
	if len(c.Timeframes.Weights) > 0 && (weightSum < 0.99 || weightSum > 1.01) {
		return fmt.Errorf("timeframes.weights must sum to 1.0, got %.2f", weightSum)
	}

	if c.ML.LowConfidence >= c.ML.HighConfidence {
		return fmt.Errorf("ml.low_confidence_threshold must be less than ml.high_confidence_threshold")
	}

	if c.Portfolio.MaxSymbols < 1 || c.Portfolio.MaxSymbols > 10 {
		return fmt.Errorf("portfolio.max_symbols must be between 1 and 10")
	}
	if len(c.Symbols) > c.Portfolio.MaxSymbols {
		return fmt.Errorf("symbols lists %d symbols but portfolio.max_symbols is %d",
			len(c.Symbols), c.Portfolio.MaxSymbols)
	}
	if c.Portfolio.CorrelationThreshold <= 0 || c.Portfolio.CorrelationThreshold > 1 {
		return fmt.Errorf("portfolio.correlation_threshold must be between 0 and 1")
	}
	if c.Portfolio.MaxSingleAllocation <= 0 || c.Portfolio.MaxSingleAllocation > 1 {
		return fmt.Errorf("portfolio.max_single_allocation must be between 0 and 1")
	}
	if c.Portfolio.MaxTotalRisk <= 0 || c.Portfolio.MaxTotalRisk > 1 {
		return fmt.Errorf("portfolio.max_total_risk must be between 0 and 1")
	}

	if c.Exits.Partial1ATRMult >= c.Exits.Partial2ATRMult {
		return fmt.Errorf("exits.partial_1_atr_multiplier must be less than exits.partial_2_atr_multiplier")
	}
	if c.Exits.Partial2ATRMult >= c.Exits.FinalATRMult {
		return fmt.Errorf("exits.partial_2_atr_multiplier must be less than exits.final_atr_multiplier")
	}
	if c.Exits.MaxHoldHours < 1 {
		return fmt.Errorf("exits.max_hold_time_hours must be at least 1")
	}

	if c.Regime.RangingADX >= c.Regime.TrendingADX {
		return fmt.Errorf("regime.ranging_adx_threshold must be less than regime.trending_adx_threshold")
	}

	if c.Backtest.TradingFee < 0 || c.Backtest.TradingFee > 0.01 {
		return fmt.Errorf("backtest.trading_fee must be between 0 and 0.01")
	}
	if c.Backtest.Slippage < 0 || c.Backtest.Slippage > 0.01 {
		return fmt.Errorf("backtest.slippage must be between 0 and 0.01")
	}
	if c.Backtest.Balance <= 0 {
		return fmt.Errorf("backtest.balance must be positive")
	}

	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && (c.Journal.TradesFile == "" || c.Journal.EquityFile == "") {
		return fmt.Errorf("journal trades_file and equity_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}

	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must not be negative")
	}

	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Symbol:          "BTCUSDT",
		Symbols:         []string{"BTCUSDT"},
		Mode:            ModeBacktest,
		EntryTimeframe:  "15m",
		FilterTimeframe: "1h",
		Risk: RiskConfig{
			RiskPerTrade: 0.01,
			Leverage:     3,
			StopATRMult:  2.0,
			TrailATRMult: 1.5,
			MinOrderSize: 0.001,
		},
		Indicators: IndicatorConfig{
			ATRPeriod:     14,
			ADXPeriod:     14,
			ADXThreshold:  20.0,
			RVOLPeriod:    20,
			RVOLThreshold: 1.2,
		},
		Adaptive: AdaptiveConfig{
			UpdateIntervalSec: 3600,
			LookbackDays:      30,
			MinADX:            15.0,
			MaxADX:            35.0,
			MinRVOL:           0.8,
			MaxRVOL:           2.0,
		},
		Timeframes: TimeframeConfig{
			Weights: map[string]float64{
				"5m":  0.1,
				"15m": 0.2,
				"1h":  0.3,
				"4h":  0.4,
			},
			MinAlignment: 3,
		},
		ML: MLConfig{
			HighConfidence: 0.7,
			LowConfidence:  0.3,
			MinAccuracy:    0.55,
			AccuracyWindow: 100,
		},
		Portfolio: PortfolioConfig{
			MaxSymbols:           5,
			CorrelationThreshold: 0.7,
			CorrelationMaxExp:    0.5,
			MaxSingleAllocation:  0.4,
			RebalanceIntervalSec: 21600,
			CorrelationLookback:  30,
			MaxTotalRisk:         0.05,
		},
		Exits: ExitConfig{
			Partial1ATRMult:   1.5,
			Partial1Pct:       0.33,
			Partial2ATRMult:   3.0,
			Partial2Pct:       0.33,
			FinalATRMult:      5.0,
			BreakevenATRMult:  2.0,
			TightStopATRMult:  0.5,
			MaxHoldHours:      24,
			RegimeChangeExits: true,
		},
		Regime: RegimeConfig{
			UpdateIntervalSec:  900,
			StabilityMinutes:   15,
			TrendingADX:        30.0,
			RangingADX:         20.0,
			VolatileATRPct:     80.0,
			RangingATRPct:      40.0,
			TrendingStopMult:   2.5,
			RangingStopMult:    1.0,
			VolatileSizeFactor: 0.5,
			VolatileThreshInc:  0.3,
		},
		Volume: VolumeConfig{
			UpdateIntervalSec: 14400,
			LookbackDays:      7,
			BinSize:           0.001,
			ValueAreaPct:      0.70,
			KeyLevelThreshold: 0.005,
			LowVolumeFactor:   0.5,
		},
		Backtest: BacktestConfig{
			Days:       90,
			TradingFee: 0.0005,
			Slippage:   0.0002,
			Balance:    10000,
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Execution: ExecutionConfig{
			MaxRetries:   3,
			BackoffMS:    250,
			RateLimitMin: 1200,
		},
	}
}
