//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the service configuration: a YAML file with
// environment overrides for the secrets that never belong on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the councild service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	LogLevel   string           `yaml:"log_level"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// StepTimeout bounds each capability invocation.
	StepTimeout time.Duration `yaml:"step_timeout"`
	// Workers sizes the fan-out goroutine pool.
	Workers int `yaml:"workers"`
}

// StorageConfig configures the checkpoint store.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// OpenAIConfig configures the LLM-backed capabilities.
type OpenAIConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// APIKey is normally supplied via COUNCIL_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// TranscriptConfig configures the transcript source collaborator.
type TranscriptConfig struct {
	Endpoint string `yaml:"endpoint"`
	// APIKey is normally supplied via COUNCIL_TRANSCRIPT_API_KEY.
	APIKey string `yaml:"api_key"`
}

// TelemetryConfig configures OTLP export. Endpoints fall back to the
// standard OTEL_EXPORTER_OTLP_* environment variables when empty.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol selects the trace export protocol, "grpc" (default) or
	// "http".
	Protocol        string `yaml:"protocol"`
	TracesEndpoint  string `yaml:"traces_endpoint"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			StepTimeout: 60 * time.Second,
			Workers:     8,
		},
		Storage: StorageConfig{Path: "council.db"},
		OpenAI:  OpenAIConfig{Model: "gpt-4o-mini"},
		Transcript: TranscriptConfig{
			Endpoint: "https://api.fireflies.ai/graphql",
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COUNCIL_OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("COUNCIL_TRANSCRIPT_API_KEY"); v != "" {
		c.Transcript.APIKey = v
	}
	if v := os.Getenv("COUNCIL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COUNCIL_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("COUNCIL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.StepTimeout <= 0 {
		return fmt.Errorf("server.step_timeout must be positive, got %s", c.Server.StepTimeout)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}
