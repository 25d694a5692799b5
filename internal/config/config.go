package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode" validate:"oneof=debug release test"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Secret   string `mapstructure:"secret" validate:"required,min=16"`

	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	PongWait   time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	WriteWait  time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"min=1"`
	KeepAlive  time.Duration `mapstructure:"keep_alive" validate:"gte=1s"`

	SendTimeout          time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	BroadcastConcurrency int           `mapstructure:"broadcast_concurrency" validate:"min=1"`

	Compat      CompatConfig      `mapstructure:"compat"`
	InboundRate InboundRateConfig `mapstructure:"inbound_rate"`
}

// CompatConfig selects the legacy client whose old versions get no pushes.
// An empty LegacyClient disables the check.
type CompatConfig struct {
	LegacyClient string `mapstructure:"legacy_client"`
	MinVersion   string `mapstructure:"min_version" validate:"required_with=LegacyClient"`
}

type InboundRateConfig struct {
	Limit    int           `mapstructure:"limit" validate:"min=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me-please-0000")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("keep_alive", "60s")
	v.SetDefault("send_timeout", "10s")
	v.SetDefault("broadcast_concurrency", 16)
	v.SetDefault("compat.legacy_client", "mb-classic")
	v.SetDefault("compat.min_version", "3.0.196")
	v.SetDefault("inbound_rate.limit", 20)
	v.SetDefault("inbound_rate.interval", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). PUSH_*
// environment variables override file values.
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
	v.SetEnvPrefix("PUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("legacy_client", cfg.Compat.LegacyClient).
		Str("min_version", cfg.Compat.MinVersion).
		Msg("config ready")
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
