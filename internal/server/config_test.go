package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/icwatch/icwatch/internal/secrets"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(secrets.EnvAgeKey, "")
	t.Setenv(secrets.EnvAgeKeyFile, "")
	path := filepath.Join(t.TempDir(), "icwatch.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != "LocalHost" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.Interval != 10 || cfg.Keepalive.Period != 30 {
		t.Errorf("interval = %d, period = %d", cfg.Interval, cfg.Keepalive.Period)
	}
	ks := cfg.Keepalive.Server
	if ks.Enabled || ks.Listen != ":9080" || ks.Num != 4 || ks.IOTimeout != 10*time.Second {
		t.Errorf("keepalive.server = %+v", ks)
	}
	if cfg.Server.Socket == "" {
		t.Error("socket has no default")
	}
	if cfg.Period() != 30*time.Second {
		t.Errorf("Period() = %s", cfg.Period())
	}
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
provider = "tencentcloud"
interval = 5
name = "cvm-1"

[spot]
callback = "/opt/icwatch/interrupt_callback.sh"

[alert.feishu]
webhook = "https://open.feishu.cn/open-apis/bot/v2/hook/abc"
secret = "Oh, you saw me."

[alert.slack]
token = "xoxb-1"
channel = "C123"

[keepalive]
period = 15

[keepalive.client]
url = "ic://default:coin@10.0.0.1"
key = "override"

[keepalive.server]
enabled = true
listen = "127.0.0.1:9100"
key = "coin"
num = 6
io_timeout = "3s"

[server]
listen = "127.0.0.1:9101"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != "TencentCloud" {
		t.Errorf("provider not normalized: %q", cfg.Provider)
	}
	if cfg.DisplayName() != "cvm-1" || cfg.SpotInterval() != 5*time.Second {
		t.Errorf("name = %q, interval = %s", cfg.DisplayName(), cfg.SpotInterval())
	}
	if cfg.Spot.Callback != "/opt/icwatch/interrupt_callback.sh" {
		t.Errorf("callback = %q", cfg.Spot.Callback)
	}
	if cfg.Alert.Feishu.Secret != "Oh, you saw me." || cfg.Alert.Slack.Channel != "C123" {
		t.Errorf("alert = %+v", cfg.Alert)
	}
	if cfg.Keepalive.Client.Key != "override" {
		t.Errorf("client key = %q", cfg.Keepalive.Client.Key)
	}
	ks := cfg.Keepalive.Server
	if !ks.Enabled || ks.Num != 6 || ks.IOTimeout != 3*time.Second || ks.Key != "coin" {
		t.Errorf("keepalive.server = %+v", ks)
	}
	if cfg.Server.Listen != "127.0.0.1:9101" {
		t.Errorf("server.listen = %q", cfg.Server.Listen)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "[keepalive.server]\nkey = \"file\"\n")
	t.Setenv("ICWATCH_SERVER_KEY", "from-env")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Keepalive.Server.Key != "from-env" {
		t.Errorf("key = %q, want from-env", cfg.Keepalive.Server.Key)
	}
}

func TestLoadConfigEncryptedValues(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := secrets.Encrypt("coin", id.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "[keepalive.server]\nkey = \""+enc+"\"\n")
	t.Setenv(secrets.EnvAgeKey, id.String())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Keepalive.Server.Key != "coin" {
		t.Errorf("key = %q, want coin", cfg.Keepalive.Server.Key)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown provider", `provider = "aws"`, "unknown provider"},
		{"zero num", "[keepalive.server]\nnum = 0\n", "keepalive.server.num"},
		{"num overflow", "[keepalive.server]\nnum = 70000\n", "keepalive.server.num"},
		{"zero period", "[keepalive]\nperiod = 0\n", "keepalive.period"},
		{"zero interval", "provider = \"AliCloud\"\ninterval = 0\n", "interval"},
		{"nats without bus", "[alert.nats]\nenabled = true\n", "alert.nats"},
		{"bad toml", "provider = ", "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}
