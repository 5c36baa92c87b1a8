package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/feedsync/internal/retry"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore: FEEDSYNC_API__BASE_URL sets api.base_url.
const EnvPrefix = "FEEDSYNC_"

// Draft store kinds
const (
	DraftStoreRemote = "remote"
	DraftStoreLocal  = "local"
)

// Config represents the application configuration
type Config struct {
	API struct {
		BaseURL   string        `koanf:"base_url"`
		Token     string        `koanf:"token"`
		Timeout   time.Duration `koanf:"timeout"`
		RateLimit float64       `koanf:"rate_limit"`
		Burst     int           `koanf:"burst"`
	} `koanf:"api"`

	Retry retry.Config `koanf:"retry"`

	Composer struct {
		AutosaveDelay time.Duration `koanf:"autosave_delay"`
	} `koanf:"composer"`

	Drafts struct {
		Store string `koanf:"store"`
	} `koanf:"drafts"`

	State struct {
		Path string `koanf:"path"`
	} `koanf:"state"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	Watch struct {
		Schedule string `koanf:"schedule"`
	} `koanf:"watch"`

	DevServer struct {
		Addr   string `koanf:"addr"`
		Secret string `koanf:"secret"`
	} `koanf:"devserver"`
}

// Defaults are loaded before any file or environment override
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":            "http://localhost:8787",
		"api.timeout":             "10s",
		"api.rate_limit":          10.0,
		"api.burst":               5,
		"retry.max_retries":       2,
		"retry.base_delay":        "250ms",
		"retry.max_delay":         "5s",
		"retry.multiplier":        2.0,
		"retry.jitter":            true,
		"composer.autosave_delay": "1s",
		"drafts.store":            DraftStoreRemote,
		"state.path":              "$HOME/.feedsync/state.db",
		"log.level":               "info",
		"log.format":              "console",
		"watch.schedule":          "@every 1m",
		"devserver.addr":          "127.0.0.1:8787",
	}
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix FEEDSYNC_
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	config.State.Path = os.ExpandEnv(config.State.Path)

	return &config, nil
}

// DefaultPaths lists the files tried when no --config flag is given
func DefaultPaths() []string {
	return []string{"./feedsync.toml", os.ExpandEnv("$HOME/.feedsync.toml")}
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# feedsync configuration

[api]
base_url = "http://localhost:8787"
token = ""
timeout = "10s"
rate_limit = 10.0
burst = 5

[retry]
max_retries = 2
base_delay = "250ms"
max_delay = "5s"

[composer]
autosave_delay = "1s"

[drafts]
# "remote" keeps the draft on the backend, "local" in the state database
store = "remote"

[state]
path = "$HOME/.feedsync/state.db"

[log]
level = "info"
format = "console"

[watch]
schedule = "@every 1m"

[devserver]
addr = "127.0.0.1:8787"
secret = "change-me"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0600)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	u, err := url.Parse(config.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base_url must be an http or https url: %q", config.API.BaseURL)
	}
	if config.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if config.API.RateLimit < 0 {
		return fmt.Errorf("api rate_limit cannot be negative")
	}
	if config.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries cannot be negative")
	}
	if config.Composer.AutosaveDelay <= 0 {
		return fmt.Errorf("composer autosave_delay must be positive")
	}

	switch config.Drafts.Store {
	case DraftStoreRemote:
	case DraftStoreLocal:
		if config.State.Path == "" {
			return fmt.Errorf("state path is required for the local draft store")
		}
	default:
		return fmt.Errorf("unknown drafts store %q (want %s or %s)", config.Drafts.Store, DraftStoreRemote, DraftStoreLocal)
	}

	switch strings.ToLower(config.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Log.Format)
	}

	return nil
}
