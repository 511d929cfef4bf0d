package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	SendBuffer int           `mapstructure:"send_buffer"`

	DefaultMaxPlayers int `mapstructure:"default_max_players"`
	MaxPlayersLimit   int `mapstructure:"max_players_limit"`

	RoomSafetyTimeout time.Duration `mapstructure:"room_safety_timeout"`
	GameReadyDelay    time.Duration `mapstructure:"game_ready_delay"`
	CountdownDuration time.Duration `mapstructure:"countdown_duration"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	PlayerIdleTimeout time.Duration `mapstructure:"player_idle_timeout"`

	CarUpdateLimit  int           `mapstructure:"car_update_limit"`
	CarUpdateWindow time.Duration `mapstructure:"car_update_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "lobby-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("default_max_players", 8)
	v.SetDefault("max_players_limit", 16)

	v.SetDefault("room_safety_timeout", "5m")
	v.SetDefault("game_ready_delay", "1s")
	v.SetDefault("countdown_duration", "6s")
	v.SetDefault("sweep_interval", "60s")
	v.SetDefault("player_idle_timeout", "5m")

	v.SetDefault("car_update_limit", 0)
	v.SetDefault("car_update_window", "1s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) on top of the
// built-in defaults. A missing file is not an error.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("LOBBY")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
