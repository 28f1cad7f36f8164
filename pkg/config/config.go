package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultRequestTimeout bounds a single language server request when the
// configuration does not set one.
const DefaultRequestTimeout = 2 * time.Minute

// Config represents the top-level configuration file structure
type Config struct {
	Selected       string               `yaml:"selected" toml:"selected"`
	Locale         string               `yaml:"locale" toml:"locale"`
	// Labels names a TOML file whose labels override the built-in ones.
	Labels string `yaml:"labels" toml:"labels"`
	// AuthorizationToken is sent with every request; env and the token
	// store are consulted when it is empty.
	AuthorizationToken string `yaml:"authorizationToken" toml:"authorizationToken"`
	LanguageServer LanguageServerConfig `yaml:"languageServer" toml:"languageServer"`
	Default        ServerDefaults       `yaml:"default" toml:"default"`
	Servers        []ServerConfig       `yaml:"servers" toml:"servers"`
	Export         ExportConfig         `yaml:"export" toml:"export"`
	Sources        SourcesConfig        `yaml:"sources" toml:"sources"`
}

// LanguageServerConfig describes how to reach the language server that holds
// the remote connection.
type LanguageServerConfig struct {
	Command []string      `yaml:"command" toml:"command"`
	Address string        `yaml:"address" toml:"address"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// ServerDefaults contains default values that can be inherited by servers
type ServerDefaults struct {
	Environment string `yaml:"environment" toml:"environment"`
	Token       string `yaml:"token" toml:"token"`
}

// ServerConfig contains configuration for a single remote server connection
type ServerConfig struct {
	Name string `yaml:"name" toml:"name"`
	// Address is the host:port of the language server holding this
	// connection. It overrides languageServer when set.
	Address     string `yaml:"address" toml:"address"`
	Environment string `yaml:"environment" toml:"environment"`
	Token       string `yaml:"token" toml:"token"`
}

// ExportConfig holds report export preferences.
type ExportConfig struct {
	Directory string `yaml:"directory" toml:"directory"`
}

// SourcesConfig configures where remote patch references are fetched from.
type SourcesConfig struct {
	CacheDir string       `yaml:"cacheDir" toml:"cacheDir"`
	GitHub   SourceConfig `yaml:"github" toml:"github"`
	GitLab   SourceConfig `yaml:"gitlab" toml:"gitlab"`
}

// SourceConfig holds API access for one hosting provider.
type SourceConfig struct {
	BaseURL string `yaml:"baseURL" toml:"baseURL"`
	Token   string `yaml:"token" toml:"token"`
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "patchinspect", "config.yaml")
}

// Load reads filename, or the default location when filename is empty. A
// missing default file yields an empty configuration rather than an error.
func Load(filename string) (*Config, error) {
	if filename != "" {
		return LoadFromFile(filename)
	}
	cfg, err := LoadFromFile(DefaultPath())
	if err != nil && errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		if err := cfg.ApplyDefaults(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFromFile reads a YAML or TOML configuration file (chosen by extension)
// and returns the parsed Config
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return &config, nil
}

// ApplyDefaults applies default values to servers that don't have them set
// and validates the result.
func (c *Config) ApplyDefaults() error {
	if c.LanguageServer.Timeout <= 0 {
		c.LanguageServer.Timeout = DefaultRequestTimeout
	}
	if c.Locale == "" {
		c.Locale = "en"
	}

	seen := make(map[string]struct{}, len(c.Servers))
	for i := range c.Servers {
		srv := &c.Servers[i]
		if srv.Environment == "" {
			srv.Environment = c.Default.Environment
		}
		if srv.Token == "" {
			srv.Token = c.Default.Token
		}

		if srv.Name == "" {
			return fmt.Errorf("server at index %d missing required field 'name'", i)
		}
		if srv.Environment == "" {
			return fmt.Errorf("server %s missing required field 'environment'", srv.Name)
		}
		if _, dup := seen[srv.Name]; dup {
			return fmt.Errorf("duplicate server name %q", srv.Name)
		}
		seen[srv.Name] = struct{}{}
	}

	if c.Selected == "" && len(c.Servers) == 1 {
		c.Selected = c.Servers[0].Name
	}
	if c.Selected != "" {
		if _, ok := c.Server(c.Selected); !ok {
			return fmt.Errorf("selected server %q is not configured", c.Selected)
		}
	}

	return nil
}

// Server returns the server named name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

// Select marks name as the selected server.
func (c *Config) Select(name string) error {
	if _, ok := c.Server(name); !ok {
		return fmt.Errorf("unknown server %q", name)
	}
	c.Selected = name
	return nil
}
