// Package ops loads runtime configuration from the environment and an
// optional JSON limits file.
package ops

import (
	"os"

	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"

	"main/internal/risk"
)

// Config is the resolved engine configuration.
type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	Broker BrokerConfig `envPrefix:"BROKER_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	PG     PGConfig     `envPrefix:"PG_"`
	Kafka  KafkaConfig  `envPrefix:"KAFKA_"`
	Chaos  ChaosConfig  `envPrefix:"CHAOS_"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"trade-engine"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9102"`

	// LimitsFile optionally overrides the stock risk limits.
	LimitsFile string `env:"LIMITS_FILE"`

	// LedgerWindowMinutes bounds the idempotency dedupe horizon.
	LedgerWindowMinutes int `env:"LEDGER_WINDOW_MINUTES" envDefault:"1440"`

	// JournalDir enables the on-disk audit journal when set.
	JournalDir string `env:"JOURNAL_DIR"`

	// ReconcileSeconds sets both the spread reconciliation sweep interval
	// and the settle window a spread's leg fills get before diverging
	// ratios freeze it.
	ReconcileSeconds int `env:"RECONCILE_SECONDS" envDefault:"30"`
}

// BrokerConfig selects and tunes the default venue adapter.
type BrokerConfig struct {
	Name        string `env:"NAME" envDefault:"PAPER"`
	SlippageBps int64  `env:"SLIPPAGE_BPS" envDefault:"5"`
	Atomic      bool   `env:"ATOMIC" envDefault:"true"`
	Host        string `env:"HOST"`
	Port        int    `env:"PORT"`
}

// RedisConfig points at the shared state store. Empty address selects the
// in-memory ledger and portfolio.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// PGConfig points at the audit database. Empty host disables the sink.
type PGConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"trade"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE" envDefault:"trade_engine"`
}

// KafkaConfig points at the audit stream. Empty brokers disable the sink.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"trade-audit"`
}

// ChaosConfig injects faults into the paper fill stream. Zero rates leave
// the stream untouched.
type ChaosConfig struct {
	Seed          int64   `env:"SEED"`
	DropRate      float64 `env:"DROP_RATE"`
	DuplicateRate float64 `env:"DUPLICATE_RATE"`
	ReorderWindow int     `env:"REORDER_WINDOW"`
}

// Enabled reports whether any fault is configured.
func (c ChaosConfig) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1
}

// Load resolves configuration from .env (when present) and the process
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// LoadLimits reads risk limits from the configured JSON file, falling back
// to the stock thresholds when no file is set.
func LoadLimits(path string) (risk.Limits, error) {
	limits := risk.DefaultLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return limits, errors.Wrap(err, "read limits file")
	}
	if err := sonic.Unmarshal(data, &limits); err != nil {
		return limits, errors.Wrap(err, "decode limits file")
	}
	return limits, nil
}
