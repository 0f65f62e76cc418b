// Package config loads and validates the lsmcp configuration: which server
// binary to launch per language plus the request timeouts. Defaults come
// from the language registry, so a missing config file still works for
// every supported language with its server on PATH.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"lsmcp/src/internal/common"
	"lsmcp/src/internal/registry"
	"lsmcp/src/internal/types"
)

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	Command               string                 `yaml:"command"`
	Args                  []string               `yaml:"args,omitempty"`
	WorkingDir            string                 `yaml:"working_dir,omitempty"`
	InitializationOptions map[string]interface{} `yaml:"initialization_options,omitempty"`

	// RequestTimeoutSeconds bounds every request except initialize. Zero
	// means the session default.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds,omitempty"`
	// InitializeTimeoutSeconds bounds the initialize handshake. Zero means
	// the session default.
	InitializeTimeoutSeconds int `yaml:"initialize_timeout_seconds,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	Servers map[string]*ServerConfig `yaml:"servers"`
}

// GetDefaultConfig builds a config covering every language the registry
// knows, each pointing at its conventional server binary.
func GetDefaultConfig() *Config {
	cfg := &Config{Servers: make(map[string]*ServerConfig)}
	for _, name := range registry.AllLanguages() {
		lang, _ := registry.GetLanguageByName(name)
		cfg.Servers[name] = &ServerConfig{
			Command:               lang.ServerCommand,
			Args:                  lang.ServerArgs,
			InitializationOptions: lang.InitOptions,
		}
	}
	return cfg
}

// GetDefaultConfigPath returns ~/.lsmcp/config.yaml.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".lsmcp", "config.yaml")
}

// LoadConfig reads the config at path, falling back to defaults when the
// file does not exist. Configured languages replace their defaults wholesale;
// unconfigured languages keep them.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			common.CLILogger.Debug("No config file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for language, server := range fileCfg.Servers {
		cfg.Servers[language] = server
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configs that cannot launch anything.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config has no language servers")
	}
	for language, server := range c.Servers {
		if server == nil || server.Command == "" {
			return fmt.Errorf("server for %s has no command", language)
		}
		if server.RequestTimeoutSeconds < 0 {
			return fmt.Errorf("server for %s has negative request timeout", language)
		}
		if server.InitializeTimeoutSeconds < 0 {
			return fmt.Errorf("server for %s has negative initialize timeout", language)
		}
	}
	return nil
}

// ClientConfigFor resolves the session-layer client config for a language.
func (c *Config) ClientConfigFor(language string) (types.ClientConfig, error) {
	server, ok := c.Servers[language]
	if !ok {
		return types.ClientConfig{}, fmt.Errorf("no language server configured for %s", language)
	}

	clientCfg := types.ClientConfig{
		Command:    server.Command,
		Args:       server.Args,
		WorkingDir: server.WorkingDir,
	}
	if server.InitializationOptions != nil {
		clientCfg.InitializationOptions = server.InitializationOptions
	}
	if server.RequestTimeoutSeconds > 0 {
		clientCfg.RequestTimeout = time.Duration(server.RequestTimeoutSeconds) * time.Second
	}
	if server.InitializeTimeoutSeconds > 0 {
		clientCfg.InitializeTimeout = time.Duration(server.InitializeTimeoutSeconds) * time.Second
	}
	return clientCfg, nil
}
