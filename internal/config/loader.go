package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file, environment, and defaults
// Uses the global viper instance to access CLI flag bindings
func Load() (*Config, error) {
	// Use global viper instance to get CLI flag bindings
	v := viper.GetViper()
	return loadFrom(v)
}

// LoadWithViper loads configuration from a fresh viper instance and returns
// it, useful for merging CLI flags later
func LoadWithViper() (*Config, *viper.Viper, error) {
	v := viper.New()
	cfg, err := loadFrom(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func loadFrom(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())
	v.AddConfigPath(".")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Environment variables (GOFER_*)
	v.SetEnvPrefix("GOFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate and apply defaults for invalid values
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_dir", DefaultCacheDir())
	v.SetDefault("artifact_domain", "")
	v.SetDefault("no_fallback", false)
	v.SetDefault("no_insecure_redirect", false)
	v.SetDefault("developer", false)
	v.SetDefault("quiet", false)
	v.SetDefault("concurrency", DefaultConcurrency)

	// HTTP defaults
	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("http.connect_timeout", DefaultConnectTimeout)
	v.SetDefault("http.max_redirects", DefaultMaxRedirects)
	v.SetDefault("http.user_agent", DefaultUserAgent())

	// Token defaults (normally supplied via GOFER_GITHUB_TOKEN etc.)
	v.SetDefault("github.token", "")
	v.SetDefault("registry.token", "")

	// API cache defaults
	v.SetDefault("api_cache.enabled", DefaultAPICacheEnabled)
	v.SetDefault("api_cache.dir", "")
	v.SetDefault("api_cache.ttl", DefaultAPICacheTTL)

	// Logging defaults
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0755)
}

// EnsureCacheDir creates the download cache directory if it doesn't exist
func EnsureCacheDir(cfg *Config) error {
	return os.MkdirAll(cfg.CacheDir, 0755)
}
