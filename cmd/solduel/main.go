package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Simlowker/solduel-gaming-platform/config"
	"github.com/Simlowker/solduel-gaming-platform/events/kafka"
	"github.com/Simlowker/solduel-gaming-platform/wire"
)

var (
	configFile string
	configDir  string
)

func main() {
	root := &cobra.Command{
		Use:   "solduel",
		Short: "Peer-to-peer wager session service",
		Long: `solduel runs the wager session service: commit-reveal duels,
multi-round betting duels and weighted lottery pools, settled through
the platform ledger.`,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	serve.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file (overrides --config-dir)")
	serve.Flags().StringVar(&configDir, "config-dir", "./configs", "directory holding per-environment config files")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadByEnv(configDir)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := wire.ProvideLogger(cfg)

	redisClient, err := wire.ProvideRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close() //nolint:errcheck

	producer, err := wire.ProvideKafkaProducer(cfg)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer producer.Close() //nolint:errcheck

	registry := wire.ProvideRegistry(cfg)
	payout := wire.ProvidePayoutCalculator(cfg)
	ledger := wire.ProvideLedgerProvider(cfg, logger)
	archive := wire.ProvideArchiveProvider(redisClient, logger)
	history := wire.ProvideLogProvider(cfg, logger)

	app := wire.ProvideApp(wire.ProvideServerOptions(
		cfg, logger, registry, payout, ledger, archive, history, redisClient, producer,
	))

	// Cross-instance event streaming, enabled when a consumer group is set.
	if cfg.Kafka.ConsumerGroup != "" {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         sessionTopic(cfg),
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			Logger:        logger,
		})
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		defer consumer.Stop() //nolint:errcheck
		app.AttachEventConsumer(consumer)
	}

	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterSessionRoutes()

	return app.Run()
}

func sessionTopic(cfg *config.Config) string {
	if topic := cfg.Kafka.Topics["session_events"]; topic != "" {
		return topic
	}
	return "session-events"
}
