// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// rigtrail.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigtrail/config.toml
//   - ~/.rigtrail/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigtrail/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigtrail configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Store holds the record directory layout.
	Store StoreConfig `toml:"store" json:"store"`

	// Keys holds the key material location.
	Keys KeysConfig `toml:"keys" json:"keys"`

	// Redact configures PII masking and analysis.
	Redact RedactConfig `toml:"redact" json:"redact"`

	// Sink configures the remote log destination.
	Sink SinkConfig `toml:"sink" json:"sink"`

	// Deliver configures the delivery engine.
	Deliver DeliverConfig `toml:"deliver" json:"deliver"`
}

// StoreConfig locates the record store. pending/ and processed/ live under
// this directory, alongside the chain state.
type StoreConfig struct {
	Dir string `toml:"dir" json:"dir"`
}

// KeysConfig locates the signing key pair and the content key.
type KeysConfig struct {
	Dir string `toml:"dir" json:"dir"`
}

// RedactConfig controls the PII masking tiers.
type RedactConfig struct {
	// UseRemote enables the remote classifier tier. The local pattern set
	// runs regardless.
	UseRemote bool `toml:"use_remote" json:"use_remote"`

	// Language is the default text language for masking and analysis.
	Language string `toml:"language" json:"language"`

	// ConfidenceThreshold is the minimum remote finding score kept.
	ConfidenceThreshold float64 `toml:"confidence_threshold" json:"confidence_threshold"`

	// MaxTextBytes bounds how much text is sent to the remote classifier.
	MaxTextBytes int `toml:"max_text_bytes" json:"max_text_bytes"`

	// AnalysisEnabled turns on the auxiliary sentiment/key-phrase/entity
	// analysis embedded into records when the remote tier is available.
	AnalysisEnabled bool `toml:"analysis_enabled" json:"analysis_enabled"`
}

// SinkConfig identifies the remote log group and the AWS client settings.
type SinkConfig struct {
	LogGroup string `toml:"log_group" json:"log_group"`

	// LogStream defaults to the hostname when empty.
	LogStream string `toml:"log_stream" json:"log_stream"`

	Region  string `toml:"region" json:"region"`
	Profile string `toml:"profile" json:"profile"`

	// TimeoutSecs bounds one remote call.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// DeliverConfig tunes the delivery engine.
type DeliverConfig struct {
	// MaxAttempts caps submissions per record under throttling.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	// PaceMs is the delay after each successful delivery.
	PaceMs int `toml:"pace_ms" json:"pace_ms"`

	// RetentionDays is how long processed records are kept locally.
	RetentionDays int `toml:"retention_days" json:"retention_days"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Store: StoreConfig{
			Dir: "~/.rigtrail/records",
		},

		Keys: KeysConfig{
			Dir: "~/.rigtrail/keys",
		},

		Redact: RedactConfig{
			UseRemote:           false,
			Language:            "ja",
			ConfidenceThreshold: 0.7,
			MaxTextBytes:        100000,
			AnalysisEnabled:     true,
		},

		Sink: SinkConfig{
			LogGroup:    "/rigtrail/audit",
			LogStream:   "", // hostname at runtime
			Region:      "ap-northeast-1",
			Profile:     "",
			TimeoutSecs: 10,
		},

		Deliver: DeliverConfig{
			MaxAttempts:   3,
			PaceMs:        500,
			RetentionDays: 7,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigtrail configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigtrail"), nil
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
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only); the sink
// profile name and store layout are not secrets, but the file sits next to
// key material and follows the same discipline.
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

// ExpandPath expands a leading "~/" to the user's home directory. Paths
// without the prefix are returned unchanged.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err = finish(cfg)
	if err != nil {
		return nil, err
	}
	// Defaults, with any load error kept for informational purposes.
	return cfg, loadErr
}

// LoadFromPath loads configuration from an explicit file path (--config).
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// finish applies env overrides, defaults, and validation to a loaded config.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all filesystems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = defaults.Store.Dir
	}
	if cfg.Keys.Dir == "" {
		cfg.Keys.Dir = defaults.Keys.Dir
	}

	if cfg.Redact.Language == "" {
		cfg.Redact.Language = defaults.Redact.Language
	}
	if cfg.Redact.ConfidenceThreshold == 0 {
		cfg.Redact.ConfidenceThreshold = defaults.Redact.ConfidenceThreshold
	}
	if cfg.Redact.MaxTextBytes == 0 {
		cfg.Redact.MaxTextBytes = defaults.Redact.MaxTextBytes
	}

	if cfg.Sink.LogGroup == "" {
		cfg.Sink.LogGroup = defaults.Sink.LogGroup
	}
	if cfg.Sink.Region == "" {
		cfg.Sink.Region = defaults.Sink.Region
	}
	if cfg.Sink.TimeoutSecs == 0 {
		cfg.Sink.TimeoutSecs = defaults.Sink.TimeoutSecs
	}

	if cfg.Deliver.MaxAttempts == 0 {
		cfg.Deliver.MaxAttempts = defaults.Deliver.MaxAttempts
	}
	if cfg.Deliver.RetentionDays == 0 {
		cfg.Deliver.RetentionDays = defaults.Deliver.RetentionDays
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
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Ensure permissions are correct even if the file already existed.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# rigtrail configuration file")
	fmt.Fprintln(file, "# Generated by rigtrail - edit with care")
	fmt.Fprintln(file, "#")
	fmt.Fprintln(file, "# Documentation: https://github.com/jeranaias/rigtrail")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Store.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "store.dir",
			Message: "record store directory must not be empty",
		})
	}
	if c.Keys.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "keys.dir",
			Message: "key directory must not be empty",
		})
	}

	if c.Redact.ConfidenceThreshold < 0 || c.Redact.ConfidenceThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "redact.confidence_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", c.Redact.ConfidenceThreshold),
		})
	}
	if c.Redact.MaxTextBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "redact.max_text_bytes",
			Message: fmt.Sprintf("must be positive, got %d", c.Redact.MaxTextBytes),
		})
	}
	if c.Redact.Language == "" {
		errs = append(errs, ValidationError{
			Field:   "redact.language",
			Message: "language must not be empty",
		})
	}

	if c.Sink.LogGroup == "" {
		errs = append(errs, ValidationError{
			Field:   "sink.log_group",
			Message: "log group must not be empty",
		})
	}
	if c.Sink.Region == "" {
		errs = append(errs, ValidationError{
			Field:   "sink.region",
			Message: "region must not be empty",
		})
	}
	if c.Sink.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sink.timeout_secs",
			Message: fmt.Sprintf("must be positive, got %d", c.Sink.TimeoutSecs),
		})
	}

	if c.Deliver.MaxAttempts < 1 || c.Deliver.MaxAttempts > 10 {
		errs = append(errs, ValidationError{
			Field:   "deliver.max_attempts",
			Message: fmt.Sprintf("must be between 1 and 10, got %d", c.Deliver.MaxAttempts),
		})
	}
	if c.Deliver.PaceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "deliver.pace_ms",
			Message: fmt.Sprintf("must not be negative, got %d", c.Deliver.PaceMs),
		})
	}
	if c.Deliver.RetentionDays < 1 {
		errs = append(errs, ValidationError{
			Field:   "deliver.retention_days",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Deliver.RetentionDays),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGTRAIL_STORE_DIR: overrides store.dir
//   - RIGTRAIL_KEYS_DIR: overrides keys.dir
//   - RIGTRAIL_USE_REMOTE: "1" or "true" enables the remote classifier
//   - RIGTRAIL_LANGUAGE: overrides redact.language
//   - RIGTRAIL_LOG_GROUP: overrides sink.log_group
//   - RIGTRAIL_LOG_STREAM: overrides sink.log_stream
//   - RIGTRAIL_AWS_REGION: overrides sink.region
//   - RIGTRAIL_AWS_PROFILE: overrides sink.profile
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("RIGTRAIL_STORE_DIR"); dir != "" {
		c.Store.Dir = dir
	}
	if dir := os.Getenv("RIGTRAIL_KEYS_DIR"); dir != "" {
		c.Keys.Dir = dir
	}

	if remote := os.Getenv("RIGTRAIL_USE_REMOTE"); remote != "" {
		c.Redact.UseRemote = remote == "1" || strings.EqualFold(remote, "true")
	}
	if lang := os.Getenv("RIGTRAIL_LANGUAGE"); lang != "" {
		c.Redact.Language = lang
	}

	if group := os.Getenv("RIGTRAIL_LOG_GROUP"); group != "" {
		c.Sink.LogGroup = group
	}
	if stream := os.Getenv("RIGTRAIL_LOG_STREAM"); stream != "" {
		c.Sink.LogStream = stream
	}
	if region := os.Getenv("RIGTRAIL_AWS_REGION"); region != "" {
		c.Sink.Region = region
	}
	if profile := os.Getenv("RIGTRAIL_AWS_PROFILE"); profile != "" {
		c.Sink.Profile = profile
	}
}

// =============================================================================
// DERIVED ACCESSORS
// =============================================================================

// StoreDir returns the record store directory with "~" expanded.
func (c *Config) StoreDir() string {
	return ExpandPath(c.Store.Dir)
}

// KeysDir returns the key directory with "~" expanded.
func (c *Config) KeysDir() string {
	return ExpandPath(c.Keys.Dir)
}

// LogStream returns the configured stream name, defaulting to the hostname
// so each machine writes its own stream.
func (c *Config) LogStream() string {
	if c.Sink.LogStream != "" {
		return c.Sink.LogStream
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "rigtrail"
	}
	return host
}

// SinkTimeout returns the remote call timeout as a duration.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Sink.TimeoutSecs) * time.Second
}

// Retention returns the processed-record retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Deliver.RetentionDays) * 24 * time.Hour
}

// Pacing returns the inter-record delivery delay as a duration.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.Deliver.PaceMs) * time.Millisecond
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Fall back to defaults rather than failing; commands that
			// need a valid config surface the error themselves.
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
