package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	content := `environment: development
server:
  port: 9090
  read_timeout: 15s
  enable_cors: true
game:
  min_stake: "0.25"
  max_stake: "5"
  platform_fee_bps: 150
  fold_refunds_raises: true
  max_rounds: 4
  timeout: 30m
  treasury: treasury-wallet
redis:
  addr: localhost:6379
kafka:
  brokers:
    - localhost:9092
  consumer_group: test-group
  topics:
    session_events: session-events
jwt:
  secret: test-secret
logging:
  level: debug
  format: console
`
	path := writeConfigFile(t, tmpDir, "config.yaml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Expected environment 'development', got '%s'", cfg.Environment)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected IsDevelopment to be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Expected read timeout 15s, got %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Server.EnableCORS {
		t.Error("Expected CORS to be enabled")
	}
	if !cfg.Game.MinStake.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Expected min stake 0.25, got %s", cfg.Game.MinStake)
	}
	if !cfg.Game.MaxStake.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected max stake 5, got %s", cfg.Game.MaxStake)
	}
	if cfg.Game.PlatformFeeBps != 150 {
		t.Errorf("Expected fee 150 bps, got %d", cfg.Game.PlatformFeeBps)
	}
	if !cfg.Game.FoldRefundsRaises {
		t.Error("Expected fold_refunds_raises to be true")
	}
	if cfg.Game.MaxRounds != 4 {
		t.Errorf("Expected 4 rounds, got %d", cfg.Game.MaxRounds)
	}
	if cfg.Game.Timeout != 30*time.Minute {
		t.Errorf("Expected timeout 30m, got %v", cfg.Game.Timeout)
	}
	if cfg.Game.Treasury != "treasury-wallet" {
		t.Errorf("Expected treasury 'treasury-wallet', got '%s'", cfg.Game.Treasury)
	}
	if cfg.Kafka.ConsumerGroup != "test-group" {
		t.Errorf("Expected consumer group 'test-group', got '%s'", cfg.Kafka.ConsumerGroup)
	}
	if cfg.Kafka.Topics["session_events"] != "session-events" {
		t.Errorf("Expected topic 'session-events', got '%s'", cfg.Kafka.Topics["session_events"])
	}
	if cfg.JWT.Secret != "test-secret" {
		t.Errorf("Expected JWT secret 'test-secret', got '%s'", cfg.JWT.Secret)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	// Minimal file; everything else should come from defaults.
	path := writeConfigFile(t, tmpDir, "config.yaml", "environment: production\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("Expected IsProduction to be true")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.Server.WriteTimeout)
	}
	if !cfg.Game.MinStake.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("Expected default min stake 0.1, got %s", cfg.Game.MinStake)
	}
	if !cfg.Game.RaiseCeiling.Equal(cfg.Game.MaxStake.Mul(decimal.NewFromInt(2))) {
		t.Errorf("Expected raise ceiling 2x max stake, got %s", cfg.Game.RaiseCeiling)
	}
	if cfg.Game.PlatformFeeBps != 200 {
		t.Errorf("Expected default fee 200 bps, got %d", cfg.Game.PlatformFeeBps)
	}
	if cfg.Game.SweepInterval != 5*time.Second {
		t.Errorf("Expected default sweep interval 5s, got %v", cfg.Game.SweepInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.ExternalServices.LedgerService.Timeout != 10*time.Second {
		t.Errorf("Expected default ledger timeout 10s, got %v", cfg.ExternalServices.LedgerService.Timeout)
	}
}

func TestLoadDecimalFromYAMLNumber(t *testing.T) {
	tmpDir := t.TempDir()

	// Unquoted YAML numbers must decode into decimals without float drift
	// on the representable values used in configs.
	content := `game:
  min_stake: 0.5
  max_stake: 25
`
	path := writeConfigFile(t, tmpDir, "config.yaml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Game.MinStake.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected min stake 0.5, got %s", cfg.Game.MinStake)
	}
	if !cfg.Game.MaxStake.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected max stake 25, got %s", cfg.Game.MaxStake)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadByEnvDefaultsToDevelopment(t *testing.T) {
	tmpDir := t.TempDir()

	writeConfigFile(t, tmpDir, "config-development.yaml", `environment: development
server:
  port: 7070
`)

	cfg, err := LoadByEnv(tmpDir)
	if err != nil {
		t.Fatalf("Failed to load config by env: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development environment")
	}
}

func TestLoadByEnvMissingDir(t *testing.T) {
	_, err := LoadByEnv(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Error("Expected error when config directory does not exist, got nil")
	}
}
