package server

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/secrets"
	"github.com/icwatch/icwatch/internal/spot"
	"github.com/icwatch/icwatch/pkg/sockpath"
)

// Config is the top-level daemon configuration.
type Config struct {
	Provider  string          `mapstructure:"provider"`
	Interval  int             `mapstructure:"interval"` // seconds between spot queries
	Name      string          `mapstructure:"name"`
	Spot      SpotConfig      `mapstructure:"spot"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
	Server    ServerConfig    `mapstructure:"server"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

// SpotConfig holds spot interruption settings.
type SpotConfig struct {
	Callback string `mapstructure:"callback"`
}

// AlertConfig holds the alert integrations.
type AlertConfig struct {
	Timeout time.Duration      `mapstructure:"timeout"`
	Feishu  alert.FeishuConfig `mapstructure:"feishu"`
	Slack   alert.SlackConfig  `mapstructure:"slack"`
	NATS    alert.NATSConfig   `mapstructure:"nats"`
}

// KeepaliveConfig holds heartbeat client and server settings.
type KeepaliveConfig struct {
	Period int                   `mapstructure:"period"` // seconds
	Client KeepaliveClientConfig `mapstructure:"client"`
	Server KeepaliveServerConfig `mapstructure:"server"`
}

// KeepaliveClientConfig enables the heartbeat client when URL is set.
type KeepaliveClientConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// KeepaliveServerConfig holds heartbeat server settings.
type KeepaliveServerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Listen    string        `mapstructure:"listen"`
	Key       string        `mapstructure:"key"`
	Num       int           `mapstructure:"num"`
	IOTimeout time.Duration `mapstructure:"io_timeout"`
}

// ServerConfig holds the control socket and the optional metrics listener.
type ServerConfig struct {
	Socket string `mapstructure:"socket"`
	Listen string `mapstructure:"listen"`
}

// NATSConfig holds embedded NATS settings.
type NATSConfig struct {
	Embedded bool   `mapstructure:"embedded"`
	DataDir  string `mapstructure:"data_dir"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Token    string `mapstructure:"token"`
}

// Period returns the heartbeat period.
func (c Config) Period() time.Duration {
	return time.Duration(c.Keepalive.Period) * time.Second
}

// SpotInterval returns the spot polling interval.
func (c Config) SpotInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// DisplayName returns the configured name or the hostname.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return alert.Hostname()
}

// Validate checks cross-field constraints and normalizes the provider name.
func (c *Config) Validate() error {
	var errs []error

	p, err := spot.ParseProvider(c.Provider)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Provider = string(p)
		if p != spot.LocalHost && c.Interval <= 0 {
			errs = append(errs, fmt.Errorf("interval must be positive, got %d", c.Interval))
		}
	}
	if c.Keepalive.Period <= 0 {
		errs = append(errs, fmt.Errorf("keepalive.period must be positive, got %d", c.Keepalive.Period))
	}
	if n := c.Keepalive.Server.Num; n <= 0 || n > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("keepalive.server.num must be in 1..%d, got %d", math.MaxUint16, n))
	}
	if c.Keepalive.Server.IOTimeout < 0 {
		errs = append(errs, fmt.Errorf("keepalive.server.io_timeout must not be negative"))
	}
	if c.Alert.NATS.Enabled && c.Alert.NATS.URL == "" && !c.NATS.Embedded {
		errs = append(errs, fmt.Errorf("alert.nats needs a url or nats.embedded"))
	}
	if c.Server.Socket == "" {
		errs = append(errs, fmt.Errorf("server.socket must be set"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads configuration from file and env, decrypts ENC[...] values
// and validates the result.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("provider", string(spot.LocalHost))
	v.SetDefault("interval", 10)
	v.SetDefault("alert.timeout", 10*time.Second)
	v.SetDefault("keepalive.period", 30)
	v.SetDefault("keepalive.server.listen", ":9080")
	v.SetDefault("keepalive.server.num", 4)
	v.SetDefault("keepalive.server.io_timeout", 10*time.Second)
	v.SetDefault("server.socket", sockpath.DefaultSocketPath())

	homeDir, _ := os.UserHomeDir()
	v.SetDefault("nats.data_dir", filepath.Join(homeDir, ".local", "share", "icwatch", "nats"))

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("icwatch")
		v.AddConfigPath("/etc/icwatch")
		v.AddConfigPath("$HOME/.config/icwatch")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ICWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("alert.feishu.secret", "ICWATCH_FEISHU_SECRET")
	v.BindEnv("alert.slack.token", "ICWATCH_SLACK_TOKEN")
	v.BindEnv("alert.nats.token", "ICWATCH_ALERT_NATS_TOKEN")
	v.BindEnv("keepalive.server.key", "ICWATCH_SERVER_KEY")
	v.BindEnv("keepalive.client.key", "ICWATCH_CLIENT_KEY")
	v.BindEnv("nats.token", "ICWATCH_NATS_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		// The search-path config file is optional; an explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if _, err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
