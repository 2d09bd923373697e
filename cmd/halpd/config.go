// config.go - Configuration management for the credential daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Server settings
	ListenAddr string `json:"listen_addr"`

	// Issuer identity
	IssuerDID string `json:"issuer_did"`

	// File paths
	ParamsPath       string `json:"params_path"`
	IssuerKeyPath    string `json:"issuer_key_path"`
	ProvingKeyPath   string `json:"proving_key_path"`
	VerifyingKeyPath string `json:"verifying_key_path"`
	CredentialStore  string `json:"credential_store"`

	// Protocol settings
	MaxAttributes     int `json:"max_attributes"`
	RecentRootsWindow int `json:"recent_roots_window"`
	ChallengeTTLSec   int `json:"challenge_ttl_seconds"`
	SweepIntervalSec  int `json:"sweep_interval_seconds"`

	// Performance
	MaxConcurrency int `json:"max_concurrency"`
	TimeoutSeconds int `json:"timeout_seconds"`

	// Rate limiting
	RateLimitTokens int `json:"rate_limit_tokens"`
	RateLimitRefill int `json:"rate_limit_refill"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":8443",
		IssuerDID:         "did:halp:issuer:dev",
		ParamsPath:        "params.json",
		IssuerKeyPath:     "issuer_key.json",
		ProvingKeyPath:    "halp_auth.pk",
		VerifyingKeyPath:  "halp_auth.vk",
		CredentialStore:   "credentials.json",
		MaxAttributes:     16,
		RecentRootsWindow: 1,
		ChallengeTTLSec:   300,
		SweepIntervalSec:  60,
		MaxConcurrency:    4,
		TimeoutSeconds:    30,
		RateLimitTokens:   60,
		RateLimitRefill:   1,
		LogLevel:          "info",
		LogFile:           "halpd.log",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.IssuerDID == "" {
		return fmt.Errorf("issuer_did must be set")
	}
	if c.MaxAttributes <= 0 {
		return fmt.Errorf("max_attributes must be positive")
	}
	if c.RecentRootsWindow <= 0 {
		return fmt.Errorf("recent_roots_window must be positive")
	}
	if c.ChallengeTTLSec <= 0 {
		return fmt.Errorf("challenge_ttl_seconds must be positive")
	}
	if c.SweepIntervalSec <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}
