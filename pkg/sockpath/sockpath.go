// Package sockpath resolves the default control socket shared by icwatchd,
// icwatchctl and icwatch-mcp.
package sockpath

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath prefers $XDG_RUNTIME_DIR/icwatch/icwatchd.sock and falls
// back to ~/.config/icwatch/icwatchd.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "icwatch", "icwatchd.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "icwatch", "icwatchd.sock")
}
