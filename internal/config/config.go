// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tenantchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection
	Server ServerConfig `toml:"server" json:"server"`

	// Model registry
	Models ModelsConfig `toml:"models" json:"models"`

	// Local thread cache
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Terminal front-end
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig holds backend connection settings.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. https://chat.example.com/api
	BaseURL string `toml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token
	APIKey string `toml:"api_key" json:"api_key"`

	// TenantID is sent in the X-Tenant-ID header when set
	TenantID string `toml:"tenant_id" json:"tenant_id"`

	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// RatePerSec and Burst configure the client-side request limiter.
	// RatePerSec <= 0 disables limiting.
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst      int     `toml:"burst" json:"burst"`
}

// ModelsConfig holds the model registry.
type ModelsConfig struct {
	// Default is the key selected at start
	Default string `toml:"default" json:"default"`

	// Streaming, when set, names the entry that replies over the stream
	// and overrides the per-entry flags.
	Streaming string `toml:"streaming" json:"streaming"`

	Entries []model.ModelSpec `toml:"entries" json:"entries"`
}

// StorageConfig holds local thread cache settings.
type StorageConfig struct {
	// CachePath is the sqlite file; empty means ~/.tenantchat/threads.db
	CachePath string `toml:"cache_path" json:"cache_path"`

	// MaxThreads caps how many threads are kept on disk
	MaxThreads int `toml:"max_threads" json:"max_threads"`

	// Disabled turns the cache off entirely
	Disabled bool `toml:"disabled" json:"disabled"`
}

// UIConfig holds terminal front-end settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light"
	Theme string `toml:"theme" json:"theme"`

	// Plain forces the line-based REPL instead of the full-screen UI
	Plain bool `toml:"plain" json:"plain"`

	// WordWrap is the markdown render width; 0 follows the terminal
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			BaseURL:     "http://localhost:8080/api",
			TimeoutSecs: 30,
			RatePerSec:  5,
			Burst:       10,
		},
		Models: ModelsConfig{
			Default: "lite",
			Entries: model.DefaultSpecs(),
		},
		Storage: StorageConfig{
			MaxThreads: 100,
		},
		UI: UIConfig{
			Theme: "auto",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the tenantchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tenantchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
// SECURITY: The directory holds the API key and cached conversations.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// CachePath resolves the thread cache path.
func (c *Config) CachePath() (string, error) {
	if c.Storage.CachePath != "" {
		return c.Storage.CachePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads.db"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	return finalize(cfg)
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Files ending in .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	// Start from an empty model list so a file's entries replace the
	// defaults instead of being appended to them.
	cfg := Default()
	cfg.Models.Entries = nil
	cfg.Models.Default = ""

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = defaults.Server.Burst
	}

	if len(c.Models.Entries) == 0 {
		c.Models.Entries = defaults.Models.Entries
		if c.Models.Default == "" {
			c.Models.Default = defaults.Models.Default
		}
	}
	// An empty default selects the streaming model.

	if c.Storage.MaxThreads == 0 {
		c.Storage.MaxThreads = defaults.Storage.MaxThreads
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TENANTCHAT_BASE_URL: overrides server.base_url
//   - TENANTCHAT_API_KEY: overrides server.api_key
//   - TENANTCHAT_TENANT: overrides server.tenant_id
//   - TENANTCHAT_MODEL: overrides models.default
//   - TENANTCHAT_PLAIN: overrides ui.plain ("1" or "true")
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TENANTCHAT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("TENANTCHAT_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("TENANTCHAT_TENANT"); v != "" {
		c.Server.TenantID = v
	}
	if v := os.Getenv("TENANTCHAT_MODEL"); v != "" {
		c.Models.Default = v
	}
	if v := os.Getenv("TENANTCHAT_PLAIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.Plain = b
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Written with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# tenantchat configuration file")
	fmt.Fprintln(&buf, "# Generated by tenantchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Written with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// ==========================================================================
	// Server
	// ==========================================================================

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Server.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	}

	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 600, got %d", c.Server.TimeoutSecs),
		})
	}

	if c.Server.RatePerSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_per_sec",
			Message: "must not be negative",
		})
	}
	if c.Server.Burst < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.burst",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Server.Burst),
		})
	}

	// SECURITY: Header injection
	if strings.ContainsAny(c.Server.TenantID, "\r\n") {
		errs = append(errs, ValidationError{
			Field:   "server.tenant_id",
			Message: "must not contain line breaks",
		})
	}
	if strings.ContainsAny(c.Server.APIKey, "\r\n") {
		errs = append(errs, ValidationError{
			Field:   "server.api_key",
			Message: "must not contain line breaks",
		})
	}

	// ==========================================================================
	// Models
	// ==========================================================================

	if _, err := c.Registry(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "models",
			Message: err.Error(),
		})
	}

	// ==========================================================================
	// Storage & UI
	// ==========================================================================

	if c.Storage.MaxThreads < 1 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_threads",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Storage.MaxThreads),
		})
	}

	validThemes := map[string]bool{"auto": true, "dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}

	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.word_wrap",
			Message: "must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Registry builds the model registry described by the models section.
func (c *Config) Registry() (*model.Registry, error) {
	specs := make([]model.ModelSpec, len(c.Models.Entries))
	copy(specs, c.Models.Entries)

	if key := strings.TrimSpace(c.Models.Streaming); key != "" {
		found := false
		for i := range specs {
			specs[i].Streaming = strings.EqualFold(strings.TrimSpace(specs[i].Key), key)
			found = found || specs[i].Streaming
		}
		if !found {
			return nil, fmt.Errorf("streaming model %q not in entries", key)
		}
	}

	return model.NewRegistry(specs, c.Models.Default)
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Models.Entries != nil {
		clone.Models.Entries = make([]model.ModelSpec, len(c.Models.Entries))
		copy(clone.Models.Entries, c.Models.Entries)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API key so it never ends up in logs.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.APIKey != "" {
		safe.Server.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
