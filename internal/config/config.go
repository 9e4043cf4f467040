// Package config loads the engine's tunable market parameters: defaults,
// then an optional .env overlay, then an optional YAML file overlay, then
// validation/clamping. Priority is YAML > process env > .env > defaults,
// matching the layering convention in the teacher's params package.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the transaction engine consults outside the
// pure math kernel.
type Config struct {
	// EnableHoldPeriod gates whether sells are blocked for HoldPeriod after
	// a buy on the same (user, event).
	EnableHoldPeriod bool `yaml:"enable_hold_period"`
	// HoldPeriod is how long a position is locked against selling after a
	// buy.
	HoldPeriod time.Duration `yaml:"-"`
	HoldPeriodHours float64 `yaml:"hold_period_hours"`

	// KellyFraction is the fractional-Kelly multiplier applied to the
	// full-Kelly suggested stake (conservative betting).
	KellyFraction float64 `yaml:"kelly_fraction"`
	// MaxKellyFraction bounds KellyFraction from above.
	MaxKellyFraction float64 `yaml:"max_kelly_fraction"`

	// MaxRetryAttempts bounds the total number of attempts (the first try
	// included) the engine makes at a transaction that fails on a
	// serialization or deadlock conflict.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
	// BaseRetryDelay is the base of the exponential backoff between retry
	// attempts (backoff = BaseRetryDelay * 2^(attempt-1) + jitter).
	BaseRetryDelay time.Duration `yaml:"-"`
	BaseRetryDelayMillis int64 `yaml:"base_retry_delay_millis"`

	// LedgerScale is the number of integer ledger units per RP. It is a
	// fixed constant throughout the system (see internal/lmsrmath) but is
	// surfaced here too so display code never hardcodes it twice.
	LedgerScale int64 `yaml:"-"`
}

// Default returns the engine's baked-in defaults, matching the original
// prediction engine's MarketConfig::default().
func Default() Config {
	return Config{
		EnableHoldPeriod:     true,
		HoldPeriod:           time.Hour,
		HoldPeriodHours:      1.0,
		KellyFraction:        0.25,
		MaxKellyFraction:     1.0,
		MaxRetryAttempts:     5,
		BaseRetryDelay:       10 * time.Millisecond,
		BaseRetryDelayMillis: 10,
		LedgerScale:          1_000_000,
	}
}

// Load builds a Config by layering, in increasing priority: defaults,
// a .env file (if envPath is non-empty, or ".env" in the working
// directory otherwise — missing is not an error), process environment
// variables, and finally an optional YAML file at yamlPath (empty string
// skips this layer). The result is validated and any out-of-range value
// is clamped with a warning logged via the standard logger.
func Load(envPath, yamlPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	applyEnv(&cfg)

	if yamlPath != "" {
		if err := applyYAML(&cfg, yamlPath); err != nil {
			log.Printf("config: failed to load %s: %v (keeping prior values)", yamlPath, err)
		}
	}

	cfg.HoldPeriod = time.Duration(cfg.HoldPeriodHours * float64(time.Hour))
	cfg.BaseRetryDelay = time.Duration(cfg.BaseRetryDelayMillis) * time.Millisecond

	cfg.validate()
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MARKET_ENABLE_HOLD_PERIOD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableHoldPeriod = b
		}
	}
	if v := os.Getenv("MARKET_HOLD_PERIOD_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HoldPeriodHours = f
		}
	}
	if v := os.Getenv("MARKET_KELLY_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.KellyFraction = f
		}
	}
	if v := os.Getenv("MARKET_MAX_KELLY_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxKellyFraction = f
		}
	}
	if v := os.Getenv("MARKET_MAX_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetryAttempts = n
		}
	}
	if v := os.Getenv("MARKET_BASE_RETRY_DELAY_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BaseRetryDelayMillis = n
		}
	}
}

func applyYAML(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

// validate clamps out-of-range values to the documented defaults, logging
// a warning for each correction, mirroring the original engine's
// validate().
func (cfg *Config) validate() {
	if cfg.HoldPeriodHours < 0 {
		log.Printf("config: invalid hold_period_hours=%v, using default 1.0", cfg.HoldPeriodHours)
		cfg.HoldPeriodHours = 1.0
		cfg.HoldPeriod = time.Hour
	}
	if cfg.MaxKellyFraction < 0 || cfg.MaxKellyFraction > 2.0 {
		log.Printf("config: invalid max_kelly_fraction=%v, using default 1.0", cfg.MaxKellyFraction)
		cfg.MaxKellyFraction = 1.0
	}
	if cfg.KellyFraction < 0 || cfg.KellyFraction > cfg.MaxKellyFraction {
		log.Printf("config: invalid kelly_fraction=%v, using default 0.25", cfg.KellyFraction)
		cfg.KellyFraction = 0.25
	}
	if cfg.MaxRetryAttempts <= 0 {
		log.Printf("config: invalid max_retry_attempts=%v, using default 5", cfg.MaxRetryAttempts)
		cfg.MaxRetryAttempts = 5
	}
	if cfg.BaseRetryDelay <= 0 {
		log.Printf("config: invalid base_retry_delay=%v, using default 10ms", cfg.BaseRetryDelay)
		cfg.BaseRetryDelay = 10 * time.Millisecond
	}
	if cfg.LedgerScale <= 0 {
		cfg.LedgerScale = 1_000_000
	}
}
