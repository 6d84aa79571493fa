package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/goferpkg/gofer/internal/utils"
)

// Config represents the application configuration
type Config struct {
	CacheDir           string         `mapstructure:"cache_dir" yaml:"cache_dir"`
	ArtifactDomain     string         `mapstructure:"artifact_domain" yaml:"artifact_domain"`
	NoFallback         bool           `mapstructure:"no_fallback" yaml:"no_fallback"`
	NoInsecureRedirect bool           `mapstructure:"no_insecure_redirect" yaml:"no_insecure_redirect"`
	Developer          bool           `mapstructure:"developer" yaml:"developer"`
	Quiet              bool           `mapstructure:"quiet" yaml:"quiet"`
	Concurrency        int            `mapstructure:"concurrency" yaml:"concurrency"`
	HTTP               HTTPConfig     `mapstructure:"http" yaml:"http"`
	GitHub             GitHubConfig   `mapstructure:"github" yaml:"github"`
	Registry           RegistryConfig `mapstructure:"registry" yaml:"registry"`
	APICache           APICacheConfig `mapstructure:"api_cache" yaml:"api_cache"`
	Logging            LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// HTTPConfig contains transfer settings shared by all HTTP strategies
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MaxRedirects   int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// GitHubConfig contains GitHub API settings
type GitHubConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
}

// RegistryConfig contains container-registry download settings
type RegistryConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
}

// APICacheConfig controls the metadata cache backing remote API lookups
type APICacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Validate validates the configuration and fills gaps with defaults
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir()
	}
	c.CacheDir = utils.ExpandPath(c.CacheDir)

	if c.ArtifactDomain != "" && !utils.IsHTTPURL(c.ArtifactDomain) {
		return fmt.Errorf("artifact_domain must be an http(s) URL, got %q", c.ArtifactDomain)
	}

	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.HTTP.Timeout < time.Second {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.ConnectTimeout < time.Second {
		c.HTTP.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HTTP.MaxRedirects < 1 {
		c.HTTP.MaxRedirects = DefaultMaxRedirects
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent()
	}
	if c.APICache.Dir == "" {
		c.APICache.Dir = DefaultAPICacheDir(c.CacheDir)
	}
	if c.APICache.TTL < time.Minute {
		c.APICache.TTL = DefaultAPICacheTTL
	}
	return nil
}

// DownloadsDir returns the directory holding content-addressed file downloads.
func (c *Config) DownloadsDir() string {
	return filepath.Join(c.CacheDir, "downloads")
}
