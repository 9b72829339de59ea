package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Ledger.OperationTimeout.Duration)
}

func TestLoad_TOMLFile(t *testing.T) {
	// GIVEN: A config file overriding the database and kafka sections
	// WHEN: Loading it
	// THEN: File values win over defaults, untouched sections keep defaults

	path := filepath.Join(t.TempDir(), "site-ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[database]
driver = "postgres"
dsn = "postgres://ledger@localhost/ledger?sslmode=disable"

[kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]

[ledger]
operation_timeout = "3s"
stats_cache = true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "site-ledger.events", cfg.Kafka.Topic)
	assert.Equal(t, 3*time.Second, cfg.Ledger.OperationTimeout.Duration)
	assert.True(t, cfg.Ledger.StatsCache)
	assert.Equal(t, 15*time.Minute, cfg.Ledger.LowStockInterval.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site-ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9090\n"), 0o600))

	t.Setenv("SITELEDGER_PORT", "7070")
	t.Setenv("SITELEDGER_REDIS_ADDR", "redis:6379")
	t.Setenv("SITELEDGER_REDIS_LOCK_TTL", "45s")
	t.Setenv("SITELEDGER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestApplyEnv_BadValues(t *testing.T) {
	env := map[string]string{
		"SITELEDGER_PORT":              "eighty",
		"SITELEDGER_OPERATION_TIMEOUT": "soon",
		"SITELEDGER_STATS_CACHE":       "maybe",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := Default().applyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SITELEDGER_PORT")
	assert.Contains(t, err.Error(), "SITELEDGER_OPERATION_TIMEOUT")
	assert.Contains(t, err.Error(), "SITELEDGER_STATS_CACHE")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Database.Driver = "mysql"
	cfg.Kafka.Brokers = []string{"kafka:9092"}
	cfg.Kafka.Topic = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "kafka.topic")
}
