package main

import (
	"chat-relay/auth"
	"chat-relay/console"
	"chat-relay/contract"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket relay",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(envFile)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	return cmd
}

func loadConfig(envFile string) (internal.Config, error) {
	// A missing file is fine: the environment alone may be complete.
	_ = godotenv.Load(envFile)
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return config, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}

// run wires every component and blocks until a signal or the console stops the relay.
// Returning instead of exiting lets the deferred cleanups run.
func run(envFile string) error {
	// 1. Configuration & Logger
	config, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	debug := strings.EqualFold(config.LogLevel, "DEBUG")

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLogger(repositories.NewBadgerLogger(log)))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	// 3. Optional collaborators
	censor, err := newCensor(log, config)
	if err != nil {
		return err
	}
	var tokens contract.TokenIssuer
	if config.TokenSecret != "" {
		tokens = auth.NewTokenIssuer(config.TokenSecret, config.TokenDuration)
	}

	// 4. Core
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	ids := runtime.NewIDGenerator()
	identities := runtime.NewIdentityRegistry(ids)
	groups := runtime.NewGroupRegistry(identities, ids)
	router := runtime.NewRouter(log, identities, groups, messageRepository, censor, tokens,
		metrics, config.StrictReconnect)

	// 5. Transport
	server := transport.NewServer(log, router, transport.Config{
		AllowedOrigins:          config.Origins(),
		MaxMessageSize:          config.MaxMessageSize,
		RateLimitBurst:          config.RateLimitBurst,
		RateLimitRefillInterval: config.RateLimitRefillInterval,
		SendBuffer:              config.ConnectionBufferSize,
	})
	extra := map[string]http.Handler{"/metrics": metrics.Handler()}
	if debug {
		extra["/debug/history"] = repositories.NewInspectHandler(db)
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Supervision
	stats := workers.NewStatsWorker(log, identities, groups, metrics, config.StatsInterval)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		transport.NewHTTPWorker(log, server, fmt.Sprintf("%s:%d", config.Host, config.Port),
			server.Routes(extra), config.ShutdownTimeout),
		transport.NewHealthWorker(log, fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)),
		stats,
	)
	if config.EnableConsole {
		sup.Add(console.NewConsole(log, identities, groups, stats, version, stop, true))
	}

	log.Info("Relay starting", "version", version, "port", config.Port, "grpc_port", config.GrpcPort,
		"moderation", censor != nil, "tokens", tokens != nil, "strict_reconnect", config.StrictReconnect)
	sup.Run(ctx)
	log.Info("Program stopped cleanly")
	return nil
}

// newCensor returns nil when no dictionary directory is configured.
func newCensor(log *slog.Logger, config internal.Config) (contract.Censor, error) {
	if config.CensoredWordsDir == "" {
		return nil, nil
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("loading censored words: %w", err)
	}
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(data.Words, char, log)
	if err != nil {
		return nil, fmt.Errorf("building moderator: %w", err)
	}
	log.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	return moderator, nil
}
