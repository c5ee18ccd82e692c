package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/resaleoracle/internal/comparables"
	"github.com/rewired-gh/resaleoracle/internal/estimator"
	"github.com/rewired-gh/resaleoracle/internal/models"
	"github.com/rewired-gh/resaleoracle/internal/pricing"
	"github.com/rewired-gh/resaleoracle/internal/vinted"
)

// Config represents the complete application configuration
type Config struct {
	Vinted      VintedConfig      `mapstructure:"vinted"`
	Comparables ComparablesConfig `mapstructure:"comparables"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Estimator   EstimatorConfig   `mapstructure:"estimator"`
	Server      ServerConfig      `mapstructure:"server"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// VintedConfig holds Vinted catalog API configuration
type VintedConfig struct {
	Enabled        bool          `mapstructure:"enabled"` // false = synthetic data only
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
	PerPage        int           `mapstructure:"per_page"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
}

// ComparablesConfig holds listing acquisition and cache configuration
type ComparablesConfig struct {
	MaxResults   int           `mapstructure:"max_results"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"` // 0 disables the cache
	FallbackSeed int64         `mapstructure:"fallback_seed"`
}

// PricingConfig holds multiplier tables and confidence weights
type PricingConfig struct {
	ConditionMultipliers map[string]float64 `mapstructure:"condition_multipliers"`
	SpeedMultipliers     map[string]float64 `mapstructure:"speed_multipliers"`
	VisionWeight         float64            `mapstructure:"vision_weight"`
	PriceWeight          float64            `mapstructure:"price_weight"`
	MarketWeight         float64            `mapstructure:"market_weight"`
	MarketSaturation     int                `mapstructure:"market_saturation"`
}

// EstimatorConfig holds pipeline orchestration configuration
type EstimatorConfig struct {
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxEstimates        int           `mapstructure:"max_estimates"`
	DBPath              string        `mapstructure:"db_path"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// RESALE_ORACLE_VINTED_ENABLED overrides vinted.enabled, and so on
	v.SetEnvPrefix("RESALE_ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	vd := vinted.DefaultConfig()
	v.SetDefault("vinted.enabled", true)
	v.SetDefault("vinted.base_url", vd.BaseURL)
	v.SetDefault("vinted.timeout", vd.Timeout)
	v.SetDefault("vinted.fetch_timeout", comparables.DefaultConfig().FetchTimeout)
	v.SetDefault("vinted.max_pages", vd.MaxPages)
	v.SetDefault("vinted.per_page", vd.PerPage)
	v.SetDefault("vinted.page_delay", vd.PageDelay)
	v.SetDefault("vinted.max_retries", vd.MaxRetries)
	v.SetDefault("vinted.retry_delay", vd.RetryDelay)
	v.SetDefault("vinted.user_agent", vd.UserAgent)
	v.SetDefault("vinted.accept_language", vd.AcceptLanguage)

	cd := comparables.DefaultConfig()
	v.SetDefault("comparables.max_results", cd.MaxResults)
	v.SetDefault("comparables.cache_ttl", cd.CacheTTL)
	v.SetDefault("comparables.fallback_seed", 0)

	pd := pricing.DefaultConfig()
	conditions := make(map[string]float64, len(pd.ConditionMultipliers))
	for c, m := range pd.ConditionMultipliers {
		conditions[string(c)] = m
	}
	speeds := make(map[string]float64, len(pd.SpeedMultipliers))
	for s, m := range pd.SpeedMultipliers {
		speeds[string(s)] = m
	}
	v.SetDefault("pricing.condition_multipliers", conditions)
	v.SetDefault("pricing.speed_multipliers", speeds)
	v.SetDefault("pricing.vision_weight", pd.VisionWeight)
	v.SetDefault("pricing.price_weight", pd.PriceWeight)
	v.SetDefault("pricing.market_weight", pd.MarketWeight)
	v.SetDefault("pricing.market_saturation", pd.MarketSaturation)

	v.SetDefault("estimator.batch_concurrency", estimator.DefaultConfig().BatchConcurrency)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.max_estimates", 10000)
	v.SetDefault("storage.db_path", "./data/resaleoracle.db")
	v.SetDefault("storage.maintenance_interval", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Vinted config
	if c.Vinted.Enabled {
		if c.Vinted.BaseURL == "" {
			return fmt.Errorf("vinted.base_url is required when vinted is enabled")
		}
		if c.Vinted.Timeout <= 0 {
			return fmt.Errorf("vinted.timeout must be positive")
		}
		if c.Vinted.MaxPages < 1 || c.Vinted.MaxPages > 20 {
			return fmt.Errorf("vinted.max_pages must be between 1 and 20")
		}
		if c.Vinted.PerPage < 1 || c.Vinted.PerPage > 96 {
			return fmt.Errorf("vinted.per_page must be between 1 and 96")
		}
	}
	if c.Vinted.FetchTimeout < 0 {
		return fmt.Errorf("vinted.fetch_timeout must not be negative")
	}
	if c.Vinted.PageDelay < 0 {
		return fmt.Errorf("vinted.page_delay must not be negative")
	}
	if c.Vinted.MaxRetries < 0 {
		return fmt.Errorf("vinted.max_retries must not be negative")
	}

	// Validate Comparables config
	if c.Comparables.MaxResults < 1 || c.Comparables.MaxResults > 200 {
		return fmt.Errorf("comparables.max_results must be between 1 and 200")
	}
	if c.Comparables.CacheTTL < 0 {
		return fmt.Errorf("comparables.cache_ttl must not be negative")
	}

	// Validate Pricing config
	for key, m := range c.Pricing.ConditionMultipliers {
		if _, ok := models.ParseCondition(key); !ok {
			return fmt.Errorf("pricing.condition_multipliers: unknown condition %q", key)
		}
		if m <= 0 {
			return fmt.Errorf("pricing.condition_multipliers.%s must be positive", key)
		}
	}
	for key, m := range c.Pricing.SpeedMultipliers {
		if !isSaleSpeed(key) {
			return fmt.Errorf("pricing.speed_multipliers: unknown sale speed %q", key)
		}
		if m <= 0 {
			return fmt.Errorf("pricing.speed_multipliers.%s must be positive", key)
		}
	}
	weights := []float64{c.Pricing.VisionWeight, c.Pricing.PriceWeight, c.Pricing.MarketWeight}
	sum := 0.0
	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("pricing weights must be between 0.0 and 1.0")
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("pricing weights must sum to 1.0, got %.4f", sum)
	}
	if c.Pricing.MarketSaturation < 1 {
		return fmt.Errorf("pricing.market_saturation must be at least 1")
	}

	// Validate Estimator config
	if c.Estimator.BatchConcurrency < 1 {
		return fmt.Errorf("estimator.batch_concurrency must be at least 1")
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxEstimates < 1 {
		return fmt.Errorf("storage.max_estimates must be at least 1")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaintenanceInterval < time.Minute {
		return fmt.Errorf("storage.maintenance_interval must be at least 1 minute")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func isSaleSpeed(key string) bool {
	switch models.SaleSpeed(key) {
	case models.SaleSpeedFast, models.SaleSpeedNormal, models.SaleSpeedPremium:
		return true
	}
	return false
}

// VintedClientConfig returns the Vinted client configuration
func (c *Config) VintedClientConfig() vinted.Config {
	return vinted.Config{
		BaseURL:        c.Vinted.BaseURL,
		Timeout:        c.Vinted.Timeout,
		MaxPages:       c.Vinted.MaxPages,
		PerPage:        c.Vinted.PerPage,
		PageDelay:      c.Vinted.PageDelay,
		MaxRetries:     c.Vinted.MaxRetries,
		RetryDelay:     c.Vinted.RetryDelay,
		UserAgent:      c.Vinted.UserAgent,
		AcceptLanguage: c.Vinted.AcceptLanguage,
	}
}

// ComparablesSourceConfig returns the comparable-listing source configuration
func (c *Config) ComparablesSourceConfig() comparables.Config {
	return comparables.Config{
		MaxResults:   c.Comparables.MaxResults,
		FetchTimeout: c.Vinted.FetchTimeout,
		CacheTTL:     c.Comparables.CacheTTL,
	}
}

// PricingEngineConfig returns the pricing configuration. Tables start from
// the defaults so a partial override keeps the remaining entries.
func (c *Config) PricingEngineConfig() pricing.Config {
	pc := pricing.DefaultConfig()
	for key, m := range c.Pricing.ConditionMultipliers {
		if cond, ok := models.ParseCondition(key); ok {
			pc.ConditionMultipliers[cond] = m
		}
	}
	for key, m := range c.Pricing.SpeedMultipliers {
		if isSaleSpeed(key) {
			pc.SpeedMultipliers[models.SaleSpeed(key)] = m
		}
	}
	pc.VisionWeight = c.Pricing.VisionWeight
	pc.PriceWeight = c.Pricing.PriceWeight
	pc.MarketWeight = c.Pricing.MarketWeight
	pc.MarketSaturation = c.Pricing.MarketSaturation
	return pc
}

// EstimatorPipelineConfig returns the estimator configuration
func (c *Config) EstimatorPipelineConfig() estimator.Config {
	return estimator.Config{
		MaxResults:       c.Comparables.MaxResults,
		BatchConcurrency: c.Estimator.BatchConcurrency,
	}
}
