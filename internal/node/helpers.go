package node

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-intents/config"
)

// minDispatchInterval bounds how hard the dispatcher polls the outbox.
const minDispatchInterval = 100 * time.Millisecond

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// dispatchInterval returns the configured outbox poll interval, clamped.
func dispatchInterval(cfg *config.Config) time.Duration {
	if cfg.Dispatch.Interval < minDispatchInterval {
		return minDispatchInterval
	}
	return cfg.Dispatch.Interval
}
