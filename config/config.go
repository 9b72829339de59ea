// Package config loads server settings: defaults, then an optional TOML
// file, then .env and SITELEDGER_* environment variables. Command-line flags
// are applied last by cmd/server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "SITELEDGER_"

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Ledger   LedgerConfig   `toml:"ledger"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	StaticDir      string   `toml:"static_dir"`
}

type LogConfig struct {
	Mode  string `toml:"mode"` // dev | prod
	Level string `toml:"level"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite3 | postgres
	DSN    string `toml:"dsn"`
}

// RedisConfig enables the distributed lock when Addr is set.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	LockTTL  Duration `toml:"lock_ttl"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type LedgerConfig struct {
	OperationTimeout Duration `toml:"operation_timeout"`
	StatsCache       bool     `toml:"stats_cache"`
	LowStockInterval Duration `toml:"low_stock_interval"` // zero disables the monitor
}

// Duration reads "10s" style values from TOML and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			StaticDir:      "web/dist",
		},
		Log:      LogConfig{Mode: "dev", Level: "info"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "./data/site-ledger.db"},
		Redis:    RedisConfig{LockTTL: Duration{30 * time.Second}},
		Kafka:    KafkaConfig{Topic: "site-ledger.events"},
		Ledger: LedgerConfig{
			OperationTimeout: Duration{10 * time.Second},
			LowStockInterval: Duration{15 * time.Minute},
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			}
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	num("PORT", &c.Server.Port)
	list("ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	str("STATIC_DIR", &c.Server.StaticDir)
	str("LOG_MODE", &c.Log.Mode)
	str("LOG_LEVEL", &c.Log.Level)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	dur("REDIS_LOCK_TTL", &c.Redis.LockTTL)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	dur("OPERATION_TIMEOUT", &c.Ledger.OperationTimeout)
	dur("LOW_STOCK_INTERVAL", &c.Ledger.LowStockInterval)
	if v, ok := lookup(envPrefix + "STATS_CACHE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTATS_CACHE: %w", envPrefix, err))
		} else {
			c.Ledger.StatsCache = b
		}
	}
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite3 or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Ledger.OperationTimeout.Duration <= 0 {
		errs = append(errs, errors.New("ledger.operation_timeout must be positive"))
	}
	if c.Ledger.LowStockInterval.Duration < 0 {
		errs = append(errs, errors.New("ledger.low_stock_interval must not be negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
