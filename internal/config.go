package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	BufferSize        int           `env:"BUFFER_SIZE,required=true"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,required=true"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,required=true"`
	RefreshRetries    int           `env:"REFRESH_RETRIES,required=true"`
	RefreshBackoff    time.Duration `env:"REFRESH_BACKOFF,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	RedisAddr         string        `env:"REDIS_ADDR,required=true"`
	MaskCharacter     string        `env:"MASK_CHARACTER,required=true"`
}

// Load reads an optional .env file first, then the process environment.
// Missing .env is not an error; the platform injects variables in
// deployed environments.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}

// MaskRune validates that MASK_CHARACTER holds exactly one rune.
func (c Config) MaskRune() (rune, error) {
	r := []rune(c.MaskCharacter)
	if len(r) != 1 {
		return 0, fmt.Errorf("MASK_CHARACTER must be a single character, got %q", c.MaskCharacter)
	}
	return r[0], nil
}
