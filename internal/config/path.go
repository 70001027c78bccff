// Package config loads the pipeline's tunable settings from Viper and
// resolves filesystem paths supplied through flags and config files.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a user-supplied path: a leading ~ becomes the home
// directory and $VAR references are expanded. The database path from flag,
// env, or config file goes through here before the store opens it.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return os.ExpandEnv(path)
}
