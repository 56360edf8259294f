// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tenantchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation, and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Backend URL, credentials, tenant and request limits
//   - ModelsConfig: The model registry (default and streaming model)
//   - StorageConfig: Local thread cache settings
//   - UIConfig: Terminal front-end settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TENANTCHAT_*)
//   - ~/.tenantchat/config.toml
//   - ~/.tenantchat/config.json
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
// Build the model registry:
//
//	reg, err := cfg.Registry()
package config
