// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// rigtrail.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - StoreConfig / KeysConfig: on-disk layout of records and key material
//   - RedactConfig: PII masking tiers and analysis
//   - SinkConfig / DeliverConfig: remote log destination and delivery tuning
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGTRAIL_*)
//   - ~/.rigtrail/config.toml
//   - ~/.rigtrail/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	store := cfg.StoreDir()
//	retention := cfg.Retention()
package config
