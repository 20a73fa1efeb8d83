// Package sqlitepath resolves where the SQLite transcript database lives.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/dotdir"
)

const memoryPath = ":memory:"

// ResolveSQLitePath turns the configured storage.sqlite_path into a usable
// database path. Precedence: RAGCHAT_SQLITE, then the configured value.
// Absolute paths and ":memory:" are used as is; relative paths are placed in
// the .ragchat/ directory selected by configDir.
func ResolveSQLitePath(configured, configDir string) (string, error) {
	path := strings.TrimSpace(configured)
	if envPath := strings.TrimSpace(os.Getenv("RAGCHAT_SQLITE")); envPath != "" {
		path = envPath
	}

	if path == "" {
		path = "ragchat.sqlite"
	}
	if path == memoryPath || strings.HasPrefix(path, "file:") || filepath.IsAbs(path) {
		return path, nil
	}

	if strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}

	return dotdir.NewManager().Path(configDir, path)
}
