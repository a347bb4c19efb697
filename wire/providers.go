package wire

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/Simlowker/solduel-gaming-platform/config"
	"github.com/Simlowker/solduel-gaming-platform/db/redis"
	"github.com/Simlowker/solduel-gaming-platform/events/kafka"
	"github.com/Simlowker/solduel-gaming-platform/game"
	"github.com/Simlowker/solduel-gaming-platform/logging"
	"github.com/Simlowker/solduel-gaming-platform/provider"
	"github.com/Simlowker/solduel-gaming-platform/server"
)

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideKafkaProducer provides the session event producer
func ProvideKafkaProducer(cfg *config.Config) (*kafka.Producer, error) {
	return kafka.NewProducer(cfg.Kafka.Brokers)
}

// ProvideRegistry provides the session registry with crypto randomness
func ProvideRegistry(cfg *config.Config) *game.Registry {
	rules := game.Rules{
		MinStake:        cfg.Game.MinStake,
		MaxStake:        cfg.Game.MaxStake,
		MinLotteryStake: cfg.Game.MinLotteryStake,
		RaiseCeiling:    cfg.Game.RaiseCeiling,
		MaxRounds:       cfg.Game.MaxRounds,
		Timeout:         cfg.Game.Timeout,
	}
	return game.NewRegistry(rules, game.NewCryptoSource())
}

// ProvidePayoutCalculator provides the fee-aware payout calculator
func ProvidePayoutCalculator(cfg *config.Config) *game.PayoutCalculator {
	return game.NewPayoutCalculator(
		cfg.Game.PlatformFeeBps,
		cfg.Game.Treasury,
		cfg.Game.FeeOnForfeit,
		cfg.Game.FoldRefundsRaises,
	)
}

// ProvideLedgerProvider provides the ledger service adapter
func ProvideLedgerProvider(cfg *config.Config, logger zerolog.Logger) server.LedgerProvider {
	return provider.NewLedgerProvider(cfg, logger)
}

// ProvideArchiveProvider provides the redis-backed archive
func ProvideArchiveProvider(redisClient *redis.Client, logger zerolog.Logger) server.ArchiveProvider {
	return provider.NewArchiveProvider(redisClient, logger)
}

// ProvideLogProvider provides the history service adapter
func ProvideLogProvider(cfg *config.Config, logger zerolog.Logger) server.LogProvider {
	return provider.NewLogProvider(cfg, logger)
}

// ProvideServerOptions provides server options
func ProvideServerOptions(
	cfg *config.Config,
	logger zerolog.Logger,
	registry *game.Registry,
	payout *game.PayoutCalculator,
	ledger server.LedgerProvider,
	archive server.ArchiveProvider,
	history server.LogProvider,
	redisClient *redis.Client,
	producer *kafka.Producer,
) server.Options {
	return server.Options{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Payout:   payout,
		Ledger:   ledger,
		Archive:  archive,
		History:  history,
		Cache:    redisClient,
		Producer: producer,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	return server.New(opts)
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// RedisSet is the wire provider set for Redis
var RedisSet = wire.NewSet(
	ProvideRedisClient,
)

// KafkaSet is the wire provider set for the event bus
var KafkaSet = wire.NewSet(
	ProvideKafkaProducer,
)

// GameSet is the wire provider set for the session engines
var GameSet = wire.NewSet(
	ProvideRegistry,
	ProvidePayoutCalculator,
)

// ProviderSet is the wire provider set for the external service adapters
var ProviderSet = wire.NewSet(
	ProvideLedgerProvider,
	ProvideArchiveProvider,
	ProvideLogProvider,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideServerOptions,
	ProvideApp,
)

// FullSet includes everything needed to build a running App
var FullSet = wire.NewSet(
	LoggingSet,
	RedisSet,
	KafkaSet,
	GameSet,
	ProviderSet,
	ServerSet,
)
