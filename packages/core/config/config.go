package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/treq/packages/plugin"
	"github.com/abdul-hamid-achik/treq/packages/resolver"
)

// Config is the project configuration loaded from a treq config file.
type Config struct {
	DefaultEnvironment string            `json:"defaultEnvironment,omitempty"`
	Timeout            int               `json:"timeout,omitempty"` // milliseconds
	Retries            int               `json:"retries,omitempty"`
	RetryDelay         int               `json:"retryDelay,omitempty"` // milliseconds
	FollowRedirects    *bool             `json:"followRedirects,omitempty"`
	MaxRedirects       int               `json:"maxRedirects,omitempty"`
	ValidateSSL        *bool             `json:"validateSSL,omitempty"`
	Proxy              string            `json:"proxy,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"` // default headers for all requests
	Rate               float64           `json:"rate,omitempty"`    // requests per second for file runs
	Bail               *bool             `json:"bail,omitempty"`
	Verbose            *bool             `json:"verbose,omitempty"`
	NoColor            *bool             `json:"noColor,omitempty"`
	HistoryPath        string            `json:"historyPath,omitempty"`
	HookTimeout        int               `json:"hookTimeout,omitempty"` // milliseconds, 0 disables

	// Permissions grants plugin capabilities; unlisted plugins fall back
	// to the "default" entry, or to their declared set when absent.
	Permissions *plugin.PermissionPolicy `json:"permissions,omitempty"`

	// Resolvers maps $-prefixed names to external resolver commands.
	Resolvers map[string]resolver.Definition `json:"resolvers,omitempty"`

	// PluginConfig carries per-plugin settings passed through on hook
	// contexts, keyed by plugin name.
	PluginConfig map[string]map[string]any `json:"pluginConfig,omitempty"`

	// Notify posts run outcomes to chat webhooks.
	Notify *NotifyConfig `json:"notify,omitempty"`
}

// NotifyConfig configures webhook notifications sent after a run.
type NotifyConfig struct {
	// On is one of always, failure, success, recovery. Defaults to
	// failure.
	On           string `json:"on,omitempty"`
	Slack        string `json:"slack,omitempty"` // incoming webhook URL
	SlackChannel string `json:"slackChannel,omitempty"`
	Teams        string `json:"teams,omitempty"` // webhook URL
}

// BoolPtr returns a pointer to b, for populating optional flags.
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects defaults to true.
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL defaults to true.
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetBail defaults to false.
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose defaults to false.
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor defaults to false.
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames lists recognized config file names, in search order.
var ConfigFilenames = []string{
	".treq.config.json",
	"treq.config.json",
	".treqrc",
	".treqrc.json",
}

// LoadConfig loads configuration from an explicit path, or searches the
// current directory when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches dir for a config file, returning defaults
// when none exists.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

// Merge merges other into c, with other taking precedence. Neither
// receiver nor argument is mutated.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Retries > 0 {
		result.Retries = other.Retries
	}
	if other.RetryDelay > 0 {
		result.RetryDelay = other.RetryDelay
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}
	if other.HookTimeout > 0 {
		result.HookTimeout = other.HookTimeout
	}
	if other.Permissions != nil {
		result.Permissions = other.Permissions
	}
	if other.Notify != nil {
		result.Notify = other.Notify
	}

	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		merged := make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			merged[k] = v
		}
		for k, v := range other.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}

	if len(other.Resolvers) > 0 {
		merged := make(map[string]resolver.Definition, len(c.Resolvers)+len(other.Resolvers))
		for k, v := range c.Resolvers {
			merged[k] = v
		}
		for k, v := range other.Resolvers {
			merged[k] = v
		}
		result.Resolvers = merged
	}

	if len(other.PluginConfig) > 0 {
		merged := make(map[string]map[string]any, len(c.PluginConfig)+len(other.PluginConfig))
		for k, v := range c.PluginConfig {
			merged[k] = v
		}
		for k, v := range other.PluginConfig {
			merged[k] = v
		}
		result.PluginConfig = merged
	}

	return &result
}

// SaveConfig writes the configuration as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
