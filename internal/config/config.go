package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	App struct {
		Env      string `env:"APP_ENV" envDefault:"development"`
		HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
		// Comma separated origins allowed to open the scoreboard stream.
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	}
	Bot struct {
		Token    string   `env:"BOT_TOKEN,required,notEmpty"`
		AdminIDs []string `env:"ADMIN_IDS" envSeparator:","`
		// Owner and Support add link buttons to /start and /help when set.
		Owner   string `env:"BOT_OWNER"`
		Support string `env:"SUPPORT_URL"`
		// Shown when a player picks the match type.
		ModeChoiceImage string `env:"MODE_CHOICE_IMAGE_URL"`
	}
	Game struct {
		RevealDelay  time.Duration `env:"REVEAL_DELAY" envDefault:"1s"`
		DefaultOvers int           `env:"DEFAULT_OVERS" envDefault:"1"`
	}
	DB struct {
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DB_DSN" envDefault:"data/games.db"`
	}
	Redis struct {
		URL    string `env:"REDIS_URL"`
		Stream string `env:"EVENT_STREAM" envDefault:"handcricket.events"`
	}
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.Game.DefaultOvers < 1 {
		return errors.New("DEFAULT_OVERS must be at least 1")
	}
	if c.Game.RevealDelay < 0 {
		return errors.New("REVEAL_DELAY must not be negative")
	}
	ids := c.Bot.AdminIDs[:0]
	for _, id := range c.Bot.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.Bot.AdminIDs = ids
	return nil
}

func (c *Config) IsDevelopment() bool { return c.App.Env == envDevelopment }

// Admins returns the configured admin user ids as a set.
func (c *Config) Admins() map[string]bool {
	set := make(map[string]bool, len(c.Bot.AdminIDs))
	for _, id := range c.Bot.AdminIDs {
		set[id] = true
	}
	return set
}

const envDevelopment = "development"

// NewLogger returns the JSON production logger unless appEnv is development,
// which gets the console logger at debug level.
func NewLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == envDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
