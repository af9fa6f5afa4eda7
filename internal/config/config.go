package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

// EnvPrefix is prepended to every environment variable the server reads
const EnvPrefix = "SHOTGUN"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Game    GameConfig
	Logging LoggingConfig
	Ledger  LedgerConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int
	Host string
	Env  string // "development" or "production"
}

// GameConfig holds game-related configuration
type GameConfig struct {
	MinPlayers             int
	MaxPlayers             int
	RoomCodeLength         int
	ReconnectGracePeriod   time.Duration
	CardRoundDuration      time.Duration
	EveryoneDrinksDuration time.Duration
	StaleRoomTimeout       time.Duration
	RateLimit              float64 // inbound messages per second per connection
	RateBurst              int
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// LedgerConfig selects where finalized rounds are recorded
type LedgerConfig struct {
	DatabaseURL string // empty keeps the ledger in memory
}

// BindFlags registers every configuration flag with its default
func BindFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.String("host", "0.0.0.0", "address to bind to (env: SHOTGUN_HOST)")
	fs.IntP("port", "p", 8080, "port to listen on (env: SHOTGUN_PORT)")
	fs.String("env", "development", "development or production (env: SHOTGUN_ENV)")
	fs.String("log-level", "info", "debug, info, warn or error (env: SHOTGUN_LOG_LEVEL)")
	fs.String("log-format", "text", "text or json (env: SHOTGUN_LOG_FORMAT)")
	fs.Int("min-players", 3, "players needed to start a game (env: SHOTGUN_MIN_PLAYERS)")
	fs.Int("max-players", 12, "players allowed in one room (env: SHOTGUN_MAX_PLAYERS)")
	fs.Int("room-code-length", 4, "characters in a room code (env: SHOTGUN_ROOM_CODE_LENGTH)")
	fs.Duration("reconnect-grace", 2*time.Minute, "how long a dropped player keeps their seat (env: SHOTGUN_RECONNECT_GRACE)")
	fs.Int("card-round-seconds", 30, "countdown of a card round (env: SHOTGUN_CARD_ROUND_SECONDS)")
	fs.Int("everyone-drinks-seconds", 10, "countdown of an everyone-drinks round (env: SHOTGUN_EVERYONE_DRINKS_SECONDS)")
	fs.Duration("stale-room-timeout", 2*time.Hour, "age after which empty rooms are removed (env: SHOTGUN_STALE_ROOM_TIMEOUT)")
	fs.Float64("rate-limit", 10, "inbound messages per second per connection (env: SHOTGUN_RATE_LIMIT)")
	fs.Int("rate-burst", 20, "inbound message burst per connection (env: SHOTGUN_RATE_BURST)")
	fs.String("database-url", "", "postgres url for the round ledger, empty for in-memory (env: SHOTGUN_DATABASE_URL)")
}

// Load reads configuration from flags, SHOTGUN_* environment variables and
// an optional .env file, in that order of precedence.
func Load(fs *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		// .env is optional
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("port"),
			Host: v.GetString("host"),
			Env:  v.GetString("env"),
		},
		Game: GameConfig{
			MinPlayers:             v.GetInt("min-players"),
			MaxPlayers:             v.GetInt("max-players"),
			RoomCodeLength:         v.GetInt("room-code-length"),
			ReconnectGracePeriod:   v.GetDuration("reconnect-grace"),
			CardRoundDuration:      time.Duration(v.GetInt("card-round-seconds")) * time.Second,
			EveryoneDrinksDuration: time.Duration(v.GetInt("everyone-drinks-seconds")) * time.Second,
			StaleRoomTimeout:       v.GetDuration("stale-room-timeout"),
			RateLimit:              v.GetFloat64("rate-limit"),
			RateBurst:              v.GetInt("rate-burst"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
		},
		Ledger: LedgerConfig{
			DatabaseURL: v.GetString("database-url"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Server.Port)
	}
	if c.Game.MinPlayers < 3 {
		return fmt.Errorf("min-players must be at least 3: %d", c.Game.MinPlayers)
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("max-players (%d) must not be below min-players (%d)", c.Game.MaxPlayers, c.Game.MinPlayers)
	}
	if c.Game.RoomCodeLength < 4 {
		return fmt.Errorf("room-code-length must be at least 4: %d", c.Game.RoomCodeLength)
	}
	if c.Game.CardRoundDuration <= 0 || c.Game.EveryoneDrinksDuration <= 0 {
		return errors.New("round durations must be positive")
	}
	if c.Game.ReconnectGracePeriod <= 0 || c.Game.StaleRoomTimeout <= 0 {
		return errors.New("reconnect-grace and stale-room-timeout must be positive")
	}
	if c.Game.RateLimit <= 0 || c.Game.RateBurst <= 0 {
		return errors.New("rate-limit and rate-burst must be positive")
	}
	return nil
}

// RoomSettings returns the per-room settings derived from the game config
func (c *Config) RoomSettings() domain.RoomSettings {
	return domain.RoomSettings{
		MinPlayers:             c.Game.MinPlayers,
		MaxPlayers:             c.Game.MaxPlayers,
		CardRoundDuration:      c.Game.CardRoundDuration,
		EveryoneDrinksDuration: c.Game.EveryoneDrinksDuration,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
