package env

import (
	"os"
	"strings"
)

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// TerminalID identifies the till this process runs on. It falls back to the
// hostname so logs from unnamed terminals can still be told apart.
func TerminalID() string {
	if id := Get("HOLO_TERMINAL_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "terminal-0"
}
