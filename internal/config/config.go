// Package config provides configuration loading for the market simulation.
// Values come from built-in defaults, then an optional YAML file, then
// MARKETSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config is the complete simulation configuration.
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation" envPrefix:"MARKETSIM_SIM_"`
	Economy     EconomyConfig     `yaml:"economy" envPrefix:"MARKETSIM_ECONOMY_"`
	Finance     FinanceConfig     `yaml:"finance" envPrefix:"MARKETSIM_FINANCE_"`
	Funnel      FunnelConfig      `yaml:"funnel" envPrefix:"MARKETSIM_FUNNEL_"`
	Matching    MatchingConfig    `yaml:"matching" envPrefix:"MARKETSIM_MATCHING_"`
	Negotiation NegotiationConfig `yaml:"negotiation" envPrefix:"MARKETSIM_NEGOTIATION_"`
	Feedback    FeedbackConfig    `yaml:"feedback" envPrefix:"MARKETSIM_FEEDBACK_"`
	Oracle      OracleConfig      `yaml:"oracle" envPrefix:"MARKETSIM_ORACLE_"`
	Persistence PersistenceConfig `yaml:"persistence" envPrefix:"MARKETSIM_DB_"`
	Logging     LoggingConfig     `yaml:"logging" envPrefix:"MARKETSIM_LOG_"`
}

// SimulationConfig sizes the generated world.
type SimulationConfig struct {
	Seed       int64 `yaml:"seed" env:"SEED"`
	Months     int   `yaml:"months" env:"MONTHS"`
	Agents     int   `yaml:"agents" env:"AGENTS"`
	Properties int   `yaml:"properties" env:"PROPERTIES"`
	// ZoneGrid is the side length of the square zone grid (ZoneGrid² zones).
	ZoneGrid int `yaml:"zone_grid" env:"ZONE_GRID"`
}

// EconomyConfig controls monthly cash flow outside of transactions.
type EconomyConfig struct {
	// SavingsRate is the share of (income - debt service) added to cash each month.
	SavingsRate float64 `yaml:"savings_rate" env:"SAVINGS_RATE"`
}

// FinanceConfig holds mortgage underwriting parameters.
type FinanceConfig struct {
	DownPaymentRatio float64 `yaml:"down_payment_ratio" env:"DOWN_PAYMENT_RATIO"`
	AnnualRate       float64 `yaml:"annual_rate" env:"ANNUAL_RATE"`
	TermYears        int     `yaml:"term_years" env:"TERM_YEARS"`
	MaxDTI           float64 `yaml:"max_dti" env:"MAX_DTI"`
}

// FunnelConfig controls agent activation and exit.
type FunnelConfig struct {
	SampleSize      int     `yaml:"sample_size" env:"SAMPLE_SIZE"`
	BatchSize       int     `yaml:"batch_size" env:"BATCH_SIZE"`
	MinLiquidity    int64   `yaml:"min_liquidity" env:"MIN_LIQUIDITY"`
	ExitCheckAfter  int     `yaml:"exit_check_after" env:"EXIT_CHECK_AFTER"`
	MaxSearchMonths int     `yaml:"max_search_months" env:"MAX_SEARCH_MONTHS"`
	DefaultMarkup   float64 `yaml:"default_markup" env:"DEFAULT_MARKUP"`
	FloorRatio      float64 `yaml:"floor_ratio" env:"FLOOR_RATIO"`
}

// MatchingConfig controls buyer-to-listing matching.
type MatchingConfig struct {
	// Headroom lets buyers look at listings priced up to MaxPrice*(1+Headroom).
	Headroom  float64 `yaml:"headroom" env:"HEADROOM"`
	CrossZone bool    `yaml:"cross_zone" env:"CROSS_ZONE"`
}

// NegotiationConfig controls the negotiation protocol.
type NegotiationConfig struct {
	MaxRounds     int     `yaml:"max_rounds" env:"MAX_ROUNDS"`
	Concurrency   int     `yaml:"concurrency" env:"CONCURRENCY"`
	BuyerDefault  string  `yaml:"buyer_default" env:"BUYER_DEFAULT"`   // withdraw | repeat
	SellerDefault string  `yaml:"seller_default" env:"SELLER_DEFAULT"` // reject | hold
	FlashDiscount float64 `yaml:"flash_discount" env:"FLASH_DISCOUNT"`
}

// FeedbackConfig controls price discovery after failed negotiations.
type FeedbackConfig struct {
	OversupplyRatio float64 `yaml:"oversupply_ratio" env:"OVERSUPPLY_RATIO"`
	CutProbability  float64 `yaml:"cut_probability" env:"CUT_PROBABILITY"`
	CutRate         float64 `yaml:"cut_rate" env:"CUT_RATE"`
	StaleAfter      int     `yaml:"stale_after" env:"STALE_AFTER"`
	SmallCut        float64 `yaml:"small_cut" env:"SMALL_CUT"`
	LargeCut        float64 `yaml:"large_cut" env:"LARGE_CUT"`
}

// OracleConfig selects and tunes the decision oracle.
type OracleConfig struct {
	// Provider is "rules", "anthropic" or "openai".
	Provider      string        `yaml:"provider" env:"PROVIDER"`
	Model         string        `yaml:"model" env:"MODEL"`
	APIKey        string        `yaml:"api_key,omitempty" env:"API_KEY"`
	BaseURL       string        `yaml:"base_url,omitempty" env:"BASE_URL"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxTokens     int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	RatePerMinute int           `yaml:"rate_per_minute" env:"RATE_PER_MINUTE"`
}

// PersistenceConfig controls the SQLite store.
type PersistenceConfig struct {
	Path       string        `yaml:"path" env:"PATH"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // text | json
}

// RedactedAPIKey returns the API key with most characters masked.
func (c OracleConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String keeps the API key out of log lines.
func (c OracleConfig) String() string {
	return fmt.Sprintf("OracleConfig{Provider:%s, Model:%s, APIKey:%s, Timeout:%s}",
		c.Provider, c.Model, c.RedactedAPIKey(), c.Timeout)
}

// Default returns a Config with working defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:       42,
			Months:     24,
			Agents:     2000,
			Properties: 1400,
			ZoneGrid:   3,
		},
		Economy: EconomyConfig{
			SavingsRate: 0.25,
		},
		Finance: FinanceConfig{
			DownPaymentRatio: 0.30,
			AnnualRate:       0.05,
			TermYears:        30,
			MaxDTI:           0.50,
		},
		Funnel: FunnelConfig{
			SampleSize:      120,
			BatchSize:       20,
			MinLiquidity:    500_000,
			ExitCheckAfter:  2,
			MaxSearchMonths: 12,
			DefaultMarkup:   1.05,
			FloorRatio:      0.90,
		},
		Matching: MatchingConfig{
			Headroom:  0.10,
			CrossZone: true,
		},
		Negotiation: NegotiationConfig{
			MaxRounds:     3,
			Concurrency:   8,
			BuyerDefault:  "withdraw",
			SellerDefault: "reject",
			FlashDiscount: 0.05,
		},
		Feedback: FeedbackConfig{
			OversupplyRatio: 1.2,
			CutProbability:  0.6,
			CutRate:         0.03,
			StaleAfter:      6,
			SmallCut:        0.03,
			LargeCut:        0.08,
		},
		Oracle: OracleConfig{
			Provider:      "rules",
			Timeout:       20 * time.Second,
			MaxTokens:     600,
			RatePerMinute: 50,
		},
		Persistence: PersistenceConfig{
			Path:       "data/market.db",
			MaxRetries: 3,
			RetryDelay: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Simulation.Agents <= 0 {
		errs = append(errs, fmt.Errorf("simulation.agents must be positive"))
	}
	if c.Simulation.ZoneGrid <= 0 {
		errs = append(errs, fmt.Errorf("simulation.zone_grid must be positive"))
	}
	if c.Finance.DownPaymentRatio <= 0 || c.Finance.DownPaymentRatio > 1 {
		errs = append(errs, fmt.Errorf("finance.down_payment_ratio must be in (0, 1]"))
	}
	if c.Finance.TermYears <= 0 {
		errs = append(errs, fmt.Errorf("finance.term_years must be positive"))
	}
	if c.Finance.MaxDTI <= 0 {
		errs = append(errs, fmt.Errorf("finance.max_dti must be positive"))
	}
	if c.Funnel.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("funnel.batch_size must be positive"))
	}
	if c.Funnel.FloorRatio <= 0 || c.Funnel.FloorRatio > 1 {
		errs = append(errs, fmt.Errorf("funnel.floor_ratio must be in (0, 1]"))
	}
	if c.Negotiation.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("negotiation.max_rounds must be positive"))
	}
	if c.Negotiation.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("negotiation.concurrency must be positive"))
	}
	switch c.Negotiation.BuyerDefault {
	case "withdraw", "repeat":
	default:
		errs = append(errs, fmt.Errorf("negotiation.buyer_default %q is not withdraw or repeat", c.Negotiation.BuyerDefault))
	}
	switch c.Negotiation.SellerDefault {
	case "reject", "hold":
	default:
		errs = append(errs, fmt.Errorf("negotiation.seller_default %q is not reject or hold", c.Negotiation.SellerDefault))
	}
	switch c.Oracle.Provider {
	case "rules", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("oracle.provider %q is not rules, anthropic or openai", c.Oracle.Provider))
	}
	if c.Persistence.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("persistence.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}
