// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config holds the gateway configuration surface. Values resolve
// with flag > file > default precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the resolved gateway configuration.
type Config struct {
	// Port is the local listen port. Defaults to Ollama's 11434 so existing
	// Ollama clients connect without changes.
	Port int `yaml:"port"`
	// DefaultModel fills the upstream model field when the inbound request
	// omits it and no model is selected upstream.
	DefaultModel string `yaml:"default_model"`
	// StateDir holds the persisted GitHub token and the pidfile.
	StateDir string `yaml:"state_dir"`

	// Editor identification headers sent on every upstream request. Treated
	// as opaque strings by the gateway.
	EditorVersion        string `yaml:"editor_version"`
	EditorPluginVersion  string `yaml:"editor_plugin_version"`
	CopilotIntegrationID string `yaml:"copilot_integration_id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                 11434,
		DefaultModel:         "gpt-4o-2024-11-20",
		StateDir:             defaultStateDir(),
		EditorVersion:        "vscode/1.98.1",
		EditorPluginVersion:  "copilot-chat/0.26.7",
		CopilotIntegrationID: "vscode-chat",
	}
}

// Load reads the optional YAML config file at path over the defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// TokenFile is the path of the persisted GitHub OAuth token.
func (c *Config) TokenFile() string {
	return filepath.Join(c.StateDir, "github-token.json")
}

// PIDFile is the path of the supervisor pidfile.
func (c *Config) PIDFile() string {
	return filepath.Join(c.StateDir, "ghcp-ollama.pid")
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ghcp-ollama")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ghcp-ollama"
	}
	return filepath.Join(home, ".config", "ghcp-ollama")
}
