package mcp

import (
	"time"

	"github.com/spf13/viper"

	"github.com/icwatch/icwatch/internal/secrets"
	"github.com/icwatch/icwatch/pkg/sockpath"
)

// Config holds all configuration for the MCP server.
type Config struct {
	Daemon DaemonConfig `mapstructure:"daemon"`
	Ping   PingConfig   `mapstructure:"ping"`
}

// DaemonConfig locates the icwatchd control socket.
type DaemonConfig struct {
	Socket string `mapstructure:"socket"`
}

// PingConfig holds defaults for the ping_server tool.
type PingConfig struct {
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads the MCP server configuration from file, env vars, and defaults.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("daemon.socket", sockpath.DefaultSocketPath())
	v.SetDefault("ping.name", "icwatch-mcp")
	v.SetDefault("ping.timeout", 5*time.Second)

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("icwatch-mcp")
		v.AddConfigPath("/etc/icwatch")
		v.AddConfigPath("$HOME/.config/icwatch")
		v.AddConfigPath(".")
	}

	v.BindEnv("daemon.socket", "ICWATCH_DAEMON_SOCKET")

	_ = v.ReadInConfig() // config file is optional

	if _, err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
