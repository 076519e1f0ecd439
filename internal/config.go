// Package internal holds the process configuration shared by the cmd entry points.
package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	GrpcPort       int    `env:"GRPC_PORT,default=9090"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	AllowedOrigins          string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=256"`

	TokenSecret     string        `env:"TOKEN_SECRET"`
	TokenDuration   time.Duration `env:"TOKEN_DURATION,default=24h"`
	StrictReconnect bool          `env:"STRICT_RECONNECT,default=false"`

	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=1m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	EnableConsole   bool          `env:"ENABLE_CONSOLE,default=false"`
}

// Origins splits ALLOWED_ORIGINS on commas. An empty variable yields no origin.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	return strings.Split(c.AllowedOrigins, ",")
}

// Validate reports settings go-env cannot check on its own.
func (c Config) Validate() error {
	if c.Port == c.GrpcPort {
		return fmt.Errorf("PORT and GRPC_PORT must differ, both are %d", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	}
	if c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.TokenSecret == "" && c.StrictReconnect {
		return fmt.Errorf("STRICT_RECONNECT needs TOKEN_SECRET")
	}
	if c.StatsInterval <= 0 || c.RestartInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL and RESTART_INTERVAL must be positive")
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
