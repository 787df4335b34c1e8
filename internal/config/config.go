package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type TrackerConfig struct {
	MatchRadius     float64       `mapstructure:"match_radius"`
	GapTimeout      time.Duration `mapstructure:"gap_timeout"`
	MaxTrackLen     int           `mapstructure:"max_track_len"`
	MaxObservations int           `mapstructure:"max_observations"`
}

type CameraConfig struct {
	ID        string `mapstructure:"id"`
	Direction string `mapstructure:"direction"`
}

type WhitelistConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// Load reads config.yaml from the working directory (or the path in
// GATE_CONFIG) and applies GATE_-prefixed environment overrides, e.g.
// GATE_DATABASE_PASSWORD or GATE_TELEGRAM_BOT_TOKEN.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "gate_monitor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("tracker.match_radius", 120.0)
	v.SetDefault("tracker.gap_timeout", 3*time.Second)
	v.SetDefault("tracker.max_track_len", 15)
	v.SetDefault("tracker.max_observations", 60)
	v.SetDefault("camera.id", "gate-1")
	v.SetDefault("camera.direction", "IN")
	v.SetDefault("whitelist.cache_ttl", 5*time.Second)
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := os.Getenv("GATE_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// config file is optional, env and defaults are enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Camera.Direction != "IN" && cfg.Camera.Direction != "OUT" {
		return nil, fmt.Errorf("camera.direction must be IN or OUT, got %q", cfg.Camera.Direction)
	}
	if cfg.Tracker.MatchRadius <= 0 {
		return nil, fmt.Errorf("tracker.match_radius must be positive, got %v", cfg.Tracker.MatchRadius)
	}
	if cfg.Tracker.GapTimeout <= 0 {
		return nil, fmt.Errorf("tracker.gap_timeout must be positive, got %v", cfg.Tracker.GapTimeout)
	}
	if cfg.Tracker.MaxTrackLen < 1 {
		return nil, fmt.Errorf("tracker.max_track_len must be at least 1, got %d", cfg.Tracker.MaxTrackLen)
	}
	if cfg.Tracker.MaxObservations < 1 {
		return nil, fmt.Errorf("tracker.max_observations must be at least 1, got %d", cfg.Tracker.MaxObservations)
	}

	return &cfg, nil
}
