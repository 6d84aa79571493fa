package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goferpkg/gofer/pkg/version"
)

// Default values
const (
	// Concurrency defaults
	DefaultConcurrency = 4

	// HTTP defaults
	DefaultHTTPTimeout    = 15 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxRedirects   = 10

	// API cache defaults
	DefaultAPICacheEnabled = true
	DefaultAPICacheTTL     = 15 * time.Minute

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "pretty"
)

// DefaultUserAgent returns the User-Agent sent with HTTP requests.
func DefaultUserAgent() string {
	return "gofer/" + version.Short()
}

// ConfigDir returns the config directory path
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gofer"
	}
	return filepath.Join(home, ".config", "gofer")
}

// DefaultCacheDir returns the cache root. File downloads live under
// downloads/ beneath it, VCS checkouts and version symlinks at the root.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".gofer-cache"
	}
	return filepath.Join(base, "gofer", "cache")
}

// DefaultAPICacheDir returns the metadata cache location beside the cache root
func DefaultAPICacheDir(cacheDir string) string {
	return filepath.Join(filepath.Dir(cacheDir), "api")
}

// ConfigFilePath returns the config file path
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns the default configuration
func Default() *Config {
	cacheDir := DefaultCacheDir()
	return &Config{
		CacheDir:    cacheDir,
		Concurrency: DefaultConcurrency,
		HTTP: HTTPConfig{
			Timeout:        DefaultHTTPTimeout,
			ConnectTimeout: DefaultConnectTimeout,
			MaxRedirects:   DefaultMaxRedirects,
			UserAgent:      DefaultUserAgent(),
		},
		APICache: APICacheConfig{
			Enabled: DefaultAPICacheEnabled,
			Dir:     DefaultAPICacheDir(cacheDir),
			TTL:     DefaultAPICacheTTL,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
