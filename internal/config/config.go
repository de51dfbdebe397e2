package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ArchiveNone   = "none"
	ArchiveFile   = "file"
	ArchiveSQLite = "sqlite"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	WordsFile        string `env:"WORDS_FILE"`
	AllowedWordsFile string `env:"ALLOWED_WORDS_FILE"`
	DuelSameWord     bool   `env:"DUEL_SAME_WORD" envDefault:"false"`

	RoomIdleTTL     time.Duration `env:"ROOM_IDLE_TTL" envDefault:"2h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	SendBuffer   int           `env:"SEND_BUFFER" envDefault:"32"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	ArchiveDriver string `env:"ARCHIVE_DRIVER" envDefault:"none"`
	ArchivePath   string `env:"ARCHIVE_PATH" envDefault:"./data/results.db"`

	StaticDir string `env:"STATIC_DIR"`
}

// FromEnv reads an optional .env file from the working directory and then
// parses the process environment. Variables already set win over .env.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	switch c.ArchiveDriver {
	case ArchiveNone, ArchiveFile, ArchiveSQLite:
	default:
		return fmt.Errorf("ARCHIVE_DRIVER must be none, file or sqlite, got %q", c.ArchiveDriver)
	}
	if c.ArchiveDriver != ArchiveNone && c.ArchivePath == "" {
		return errors.New("ARCHIVE_PATH is required when an archive driver is set")
	}
	if c.RoomIdleTTL <= 0 || c.JanitorInterval <= 0 || c.WriteTimeout <= 0 {
		return errors.New("ROOM_IDLE_TTL, JANITOR_INTERVAL and WRITE_TIMEOUT must be positive")
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("SEND_BUFFER must be at least 1, got %d", c.SendBuffer)
	}
	return nil
}

// AllowsOrigin reports whether origin may open a live connection.
func (c Config) AllowsOrigin(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
