package main

import (
	"os"
	"path/filepath"
)

// defaultConfigPath resolves the operator's config file the way the
// teacher's profile package does: $NEXUS_CONFIG, else ~/.config/nexus/config.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("NEXUS_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "nexus.yaml"
	}
	return filepath.Join(home, ".config", "nexus", "config.yaml")
}
