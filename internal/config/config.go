package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Database   DatabaseConfig  `mapstructure:"database"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Credits    CreditsConfig   `mapstructure:"credits"`
	Lifecycle  LifecycleConfig `mapstructure:"lifecycle"`
	Room       RoomConfig      `mapstructure:"room"`
	ICEServers []ICEServer     `mapstructure:"ice_servers"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RelayConfig struct {
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RoomCapacity int           `mapstructure:"room_capacity"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type CreditsConfig struct {
	BookingCost     int64 `mapstructure:"booking_cost"`
	Reward          int64 `mapstructure:"reward"`
	ChargeAtRequest bool  `mapstructure:"charge_at_request"`
}

type LifecycleConfig struct {
	RejectDuplicates bool `mapstructure:"reject_duplicates"`
}

type RoomConfig struct {
	Prefix string `mapstructure:"prefix"`
	Salted bool   `mapstructure:"salted"`
}

// ICEServer is the config shape of a STUN/TURN server handed to clients.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SKILLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
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
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = defaultICEServers()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("database.dsn", "skillcall.db")

	v.SetDefault("relay.send_timeout", "2s")
	v.SetDefault("relay.send_buffer", 32)
	v.SetDefault("relay.room_capacity", 2)
	v.SetDefault("relay.rate_limit", 50)
	v.SetDefault("relay.rate_interval", "1s")

	v.SetDefault("credits.booking_cost", 5)
	v.SetDefault("credits.reward", 10)
	v.SetDefault("credits.charge_at_request", true)

	v.SetDefault("lifecycle.reject_duplicates", false)

	v.SetDefault("room.prefix", "skillxchange")
	v.SetDefault("room.salted", true)
}

func defaultICEServers() []ICEServer {
	return []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	if c.Credits.BookingCost < 0 || c.Credits.Reward < 0 {
		return fmt.Errorf("credit amounts must not be negative")
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive")
	}
	if c.Relay.RateLimit > 0 && c.Relay.RateInterval <= 0 {
		return fmt.Errorf("relay.rate_interval must be positive when rate_limit is set")
	}
	if strings.Contains(c.Room.Prefix, "_") || c.Room.Prefix == "" {
		return fmt.Errorf("room.prefix must be non-empty and contain no underscore")
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: urls required", i)
		}
	}
	return nil
}
