// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "hubbub"

// ConfigDir returns the XDG config directory for hubbub.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns ConfigDir()/config.yaml if it exists, or "".
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), "config.yaml")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}
