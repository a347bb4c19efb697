package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Simlowker/solduel-gaming-platform/logging"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment      string                 `mapstructure:"environment"`
	Server           ServerConfig           `mapstructure:"server"`
	Game             GameConfig             `mapstructure:"game"`
	Redis            RedisConfig            `mapstructure:"redis"`
	Kafka            KafkaConfig            `mapstructure:"kafka"`
	JWT              JWTConfig              `mapstructure:"jwt"`
	Logging          logging.Config         `mapstructure:"logging"`
	ExternalServices ExternalServicesConfig `mapstructure:"external_services"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
}

// GameConfig holds wager session rules
type GameConfig struct {
	MinStake        decimal.Decimal `mapstructure:"min_stake"`
	MaxStake        decimal.Decimal `mapstructure:"max_stake"`
	MinLotteryStake decimal.Decimal `mapstructure:"min_lottery_stake"`
	RaiseCeiling    decimal.Decimal `mapstructure:"raise_ceiling"`
	PlatformFeeBps  int64           `mapstructure:"platform_fee_bps"`
	FeeOnForfeit    bool            `mapstructure:"fee_on_forfeit"`
	// FoldRefundsRaises returns a folder's raises above their initial stake
	// fee-free instead of awarding the whole pot to the winner.
	FoldRefundsRaises bool          `mapstructure:"fold_refunds_raises"`
	MaxRounds         int           `mapstructure:"max_rounds"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	Treasury          string        `mapstructure:"treasury"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string          `mapstructure:"brokers"`
	ConsumerGroup string            `mapstructure:"consumer_group"`
	Topics        map[string]string `mapstructure:"topics"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// ExternalServicesConfig holds external service configurations
type ExternalServicesConfig struct {
	LedgerService ServiceConfig `mapstructure:"ledger_service"`
	LogService    ServiceConfig `mapstructure:"log_service"`
}

// ServiceConfig holds external service configuration
type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from YAML file using Viper
func Load(filename string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(filename)
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHooks()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// LoadByEnv loads configuration based on environment using Viper
func LoadByEnv(configDir string) (*Config, error) {
	v := viper.New()

	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	env := viper.GetString("ENV")
	if env == "" {
		env = viper.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	v.SetConfigName(fmt.Sprintf("config-%s", env))
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHooks()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// setDefaults sets default values for missing configuration
func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Game.MinStake.IsZero() {
		c.Game.MinStake = decimal.NewFromFloat(0.1)
	}
	if c.Game.MaxStake.IsZero() {
		c.Game.MaxStake = decimal.NewFromInt(10)
	}
	if c.Game.MinLotteryStake.IsZero() {
		c.Game.MinLotteryStake = decimal.NewFromFloat(0.05)
	}
	if c.Game.RaiseCeiling.IsZero() {
		c.Game.RaiseCeiling = c.Game.MaxStake.Mul(decimal.NewFromInt(2))
	}
	if c.Game.PlatformFeeBps == 0 {
		c.Game.PlatformFeeBps = 200
	}
	if c.Game.MaxRounds == 0 {
		c.Game.MaxRounds = 3
	}
	if c.Game.Timeout == 0 {
		c.Game.Timeout = time.Hour
	}
	if c.Game.SweepInterval == 0 {
		c.Game.SweepInterval = 5 * time.Second
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.ExternalServices.LedgerService.Timeout == 0 {
		c.ExternalServices.LedgerService.Timeout = 10 * time.Second
	}
	if c.ExternalServices.LogService.Timeout == 0 {
		c.ExternalServices.LogService.Timeout = 10 * time.Second
	}
}

// decodeHooks keeps viper's default string-to-duration and string-to-slice
// hooks and adds the decimal hook. Passing a bare DecodeHook would replace
// the defaults and break every time.Duration field.
func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalDecodeHook(),
	))
}

// decimalDecodeHook decodes YAML numbers and strings into decimal.Decimal
// without passing through float64.
func decimalDecodeHook() func(from, to reflect.Type, data interface{}) (interface{}, error) {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		default:
			return data, nil
		}
	}
}

// GetAddr returns Redis address
func (c *RedisConfig) GetAddr() string {
	return c.Addr
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
