package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Board     BoardConfig     `mapstructure:"board"`
	Input     InputConfig     `mapstructure:"input"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TransportConfig selects the link to the board, e.g. serial:///dev/ttyACM0?baud=57600,
// tcp://10.0.0.5:3030, ws://bridge:8080/firmata or mqtt://broker:1883/bench/uno
type TransportConfig struct {
	Target         string        `mapstructure:"target"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// ReconnectInterval is the pause before redialing a lost link, 0 disables it
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

type BoardConfig struct {
	SamplingInterval time.Duration `mapstructure:"sampling_interval"`
	Normalize        bool          `mapstructure:"normalize"`
	Profile          string        `mapstructure:"profile"`
}

type InputConfig struct {
	DebounceInterval  time.Duration `mapstructure:"debounce_interval"`
	SustainedInterval time.Duration `mapstructure:"sustained_interval"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

// Load reads path (yaml) on top of the defaults. An empty path uses defaults
// and BOARDLINK_ environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("transport.target", "serial:///dev/ttyACM0?baud=57600")
	v.SetDefault("transport.connect_timeout", "5s")
	v.SetDefault("transport.reconnect_interval", "0s")

	v.SetDefault("board.sampling_interval", "19ms")
	v.SetDefault("board.normalize", true)
	v.SetDefault("board.profile", "")

	v.SetDefault("input.debounce_interval", "20ms")
	v.SetDefault("input.sustained_interval", "500ms")

	v.SetDefault("profiles.search_paths", []string{"./profiles", "/etc/boardlink/profiles"})

	// BOARDLINK_TRANSPORT_TARGET overrides transport.target
	v.SetEnvPrefix("BOARDLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the rest of the system cannot start with
func (c *Config) Validate() error {
	if c.Transport.Target == "" {
		return fmt.Errorf("transport.target is required")
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Transport.ReconnectInterval < 0 {
		return fmt.Errorf("transport.reconnect_interval must not be negative")
	}
	if c.Input.DebounceInterval <= 0 {
		return fmt.Errorf("input.debounce_interval must be positive")
	}
	if c.Input.SustainedInterval <= 0 {
		return fmt.Errorf("input.sustained_interval must be positive")
	}
	return nil
}
