package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Oracle   OracleConfig   `mapstructure:"oracle"`
	Exchange ExchangeConfig `mapstructure:"exchange"`

	Pricing    PricingConfig    `mapstructure:"pricing"`
	Hedging    HedgingConfig    `mapstructure:"hedging"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SettlementSweep string `mapstructure:"settlement_sweep"`
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
}

type ExchangeConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	APIKey  string        `mapstructure:"api_key"`
}

// PricingConfig drives the quote engine. QuoteTTL is the validity window
// stamped on every quote; OracleTimeout bounds the single external call.
type PricingConfig struct {
	QuoteTTL      time.Duration `mapstructure:"quote_ttl"`
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`
	MaxLegs       int           `mapstructure:"max_legs"`
}

// HedgeTier maps a probability floor (percent) to the fraction of stake
// hedged for legs at or above that floor. Tiers are evaluated highest floor
// first; a leg below every floor is not hedged.
type HedgeTier struct {
	MinProbabilityPercent float64 `mapstructure:"min_probability_percent"`
	Fraction              float64 `mapstructure:"fraction"`
}

type HedgingConfig struct {
	Tiers        []HedgeTier `mapstructure:"tiers"`
	TopScenarios int         `mapstructure:"top_scenarios"`
	// MaxLegs caps scenario enumeration; the combination count is 2^n.
	MaxLegs int `mapstructure:"max_legs"`
}

type SettlementConfig struct {
	// Concurrency bounds the purchase fan-out of the batch sweep. Leg
	// lookups within a purchase stay sequential so a rate-limited exchange
	// client is never hammered by a single purchase.
	Concurrency int `mapstructure:"concurrency"`
	BatchLimit  int `mapstructure:"batch_limit"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.settlement_sweep", "@every 1m")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.timeout", "20s")
	v.SetDefault("oracle.model", "")
	v.SetDefault("exchange.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("exchange.timeout", "15s")

	v.SetDefault("pricing.quote_ttl", "5m")
	v.SetDefault("pricing.oracle_timeout", "20s")
	v.SetDefault("pricing.max_legs", 12)

	v.SetDefault("hedging.tiers", []map[string]any{
		{"min_probability_percent": 65.0, "fraction": 0.40},
		{"min_probability_percent": 55.0, "fraction": 0.25},
		{"min_probability_percent": 50.0, "fraction": 0.15},
	})
	v.SetDefault("hedging.top_scenarios", 5)
	v.SetDefault("hedging.max_legs", 12)

	v.SetDefault("settlement.concurrency", 4)
	v.SetDefault("settlement.batch_limit", 500)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
