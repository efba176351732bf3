// Package secrets decrypts age-encrypted values in icwatch config files.
//
// A secret is written inline as ENC[<base64 age ciphertext>], so webhook
// secrets, bot tokens and the heartbeat key can live in a committed TOML file.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/spf13/viper"
)

const (
	encPrefix = "ENC["
	encSuffix = "]"

	// EnvAgeKey holds a raw AGE-SECRET-KEY-1... string.
	EnvAgeKey = "ICWATCH_AGE_KEY"

	// EnvAgeKeyFile holds the path of an age identity file.
	EnvAgeKeyFile = "ICWATCH_AGE_KEY_FILE"
)

var (
	// ErrNoIdentity means no age identity is configured anywhere.
	ErrNoIdentity = errors.New("no age identity configured")

	// ErrNotEncrypted is returned by Decrypt for values without ENC[...].
	ErrNotEncrypted = errors.New("value is not wrapped in ENC[...]")
)

// IsEncrypted reports whether value is a non-empty ENC[...] wrapper.
func IsEncrypted(value string) bool {
	return len(value) > len(encPrefix)+len(encSuffix) &&
		strings.HasPrefix(value, encPrefix) && strings.HasSuffix(value, encSuffix)
}

// Encrypt seals plaintext for recipients and wraps it in ENC[...].
func Encrypt(plaintext string, recipients ...age.Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return encPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + encSuffix, nil
}

// Decrypt opens an ENC[...] value with any of the identities.
func Decrypt(value string, identities ...age.Identity) (string, error) {
	if !IsEncrypted(value) {
		return "", ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(value[len(encPrefix) : len(value)-len(encSuffix)])
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return string(plaintext), nil
}

// DefaultKeyPath is ~/.config/icwatch/age.key.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "icwatch", "age.key")
}

// LoadIdentity reads the identities in an age key file.
func LoadIdentity(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()
	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return ids, nil
}

// ResolveIdentity looks for an identity in ICWATCH_AGE_KEY, then
// ICWATCH_AGE_KEY_FILE, then the secrets.identity config key, then
// DefaultKeyPath. It returns ErrNoIdentity when none is present.
func ResolveIdentity(v *viper.Viper) ([]age.Identity, error) {
	if raw := os.Getenv(EnvAgeKey); raw != "" {
		id, err := age.ParseX25519Identity(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvAgeKey, err)
		}
		return []age.Identity{id}, nil
	}
	if path := os.Getenv(EnvAgeKeyFile); path != "" {
		return LoadIdentity(path)
	}
	if path := v.GetString("secrets.identity"); path != "" {
		return LoadIdentity(expandHome(path))
	}
	path := DefaultKeyPath()
	if path == "" {
		return nil, ErrNoIdentity
	}
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNoIdentity
	}
	return LoadIdentity(path)
}

// DecryptConfig replaces every ENC[...] string in v with its plaintext and
// returns the number of keys decrypted. Without any encrypted value it does
// not need an identity and never fails.
func DecryptConfig(v *viper.Viper) (int, error) {
	var keys []string
	for _, key := range v.AllKeys() {
		if IsEncrypted(v.GetString(key)) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ids, err := ResolveIdentity(v)
	if err != nil {
		return 0, fmt.Errorf("config has encrypted values: %w", err)
	}
	for _, key := range keys {
		plaintext, err := Decrypt(v.GetString(key), ids...)
		if err != nil {
			return 0, fmt.Errorf("decrypt %q: %w", key, err)
		}
		v.Set(key, plaintext)
	}
	return len(keys), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
