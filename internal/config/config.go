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

	"github.com/modpilot/internal/backend"
	"github.com/modpilot/internal/gitlab"
)

// EnvPrefix prefixes every environment override, e.g. MODPILOT_BACKEND_URL
const EnvPrefix = "MODPILOT_"

// DefaultPaths are searched in order when no config file is given
var DefaultPaths = []string{"./modpilot.toml", "$HOME/.modpilot.toml"}

// Config represents the application configuration
type Config struct {
	General struct {
		LogLevel  string `koanf:"log_level"`
		LogPretty bool   `koanf:"log_pretty"`
	} `koanf:"general"`

	Backend struct {
		URL                 string  `koanf:"url"`
		Token               string  `koanf:"token"`
		TimeoutSeconds      int     `koanf:"timeout_seconds"`
		SearchRatePerSecond float64 `koanf:"search_rate_per_second"`
	} `koanf:"backend"`

	GitLab gitlab.Config `koanf:"gitlab"`

	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`
}

// LoadConfig loads the configuration from a file, falling back to the
// default locations when configPath is empty
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"general.log_level":              "info",
		"general.log_pretty":             false,
		"backend.timeout_seconds":        300,
		"backend.search_rate_per_second": 2.0,
		"server.port":                    8686,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// MODPILOT_BACKEND_TIMEOUT_SECONDS -> backend.timeout_seconds
	k.Load(env.Provider(EnvPrefix, ".", envKey), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# modpilot configuration

[general]
log_level = "info"
log_pretty = true

[backend]
url = "https://deps.example.com/api"
token = "your-backend-token"
timeout_seconds = 300
search_rate_per_second = 2.0

# optional, enables branch suggestions
[gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"

[server]
port = 8686

# optional, keeps submission history in Postgres instead of memory
[database]
url = ""
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if _, err := url.ParseRequestURI(config.Backend.URL); err != nil {
		return fmt.Errorf("backend url is invalid: %w", err)
	}
	if config.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend timeout_seconds must not be negative")
	}
	if config.Backend.SearchRatePerSecond < 0 {
		return fmt.Errorf("backend search_rate_per_second must not be negative")
	}

	if config.GitLab.URL != "" && config.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required when gitlab url is set")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}

	return nil
}

// BackendConfig returns the settings for the backend client
func (c *Config) BackendConfig() backend.Config {
	return backend.Config{
		BaseURL:          c.Backend.URL,
		Token:            c.Backend.Token,
		Timeout:          time.Duration(c.Backend.TimeoutSeconds) * time.Second,
		SearchRatePerSec: c.Backend.SearchRatePerSecond,
	}
}

// GitLabEnabled reports whether direct GitLab access is configured
func (c *Config) GitLabEnabled() bool {
	return c.GitLab.Token != ""
}
