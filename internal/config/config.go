// Package config handles loading and validation of client configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Config holds all client configuration.
// Environment determines whether store credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	Port        string // agentd listen port
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string // Secret Manager secret name holding StoreConfig

	// State file path for the durable session store (CLI mode)
	StatePath string

	// Cart auto-refresh interval while a customer is logged in
	RefreshInterval time.Duration

	// Default TTL for catalog read caching
	CatalogCacheTTL time.Duration

	// Store-specific configuration (loaded from secrets in production)
	Store StoreConfig
}

// StoreConfig contains the commerce API endpoint and service credentials.
// In production this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	BaseURL       string `json:"base_url"` // e.g. https://shop.example.com/rest/V1
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
	StoreName     string `json:"store_name,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:            envOrDefault("PORT", "8080"),
		Environment:     envOrDefault("ENVIRONMENT", "development"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		StoreID:         os.Getenv("STORE_ID"),
		StatePath:       envOrDefault("STATE_PATH", defaultStatePath()),
		RefreshInterval: durationOrDefault("CART_REFRESH_INTERVAL", 5*time.Minute),
		CatalogCacheTTL: durationOrDefault("CATALOG_CACHE_TTL", 10*time.Minute),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port            string      `json:"port"`
		Environment     string      `json:"environment"`
		LogLevel        string      `json:"log_level"`
		StatePath       string      `json:"state_path"`
		RefreshInterval string      `json:"refresh_interval"`
		CatalogCacheTTL string      `json:"catalog_cache_ttl"`
		Store           StoreConfig `json:"store"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:            withDefault(fileConfig.Port, "8080"),
		Environment:     withDefault(fileConfig.Environment, "development"),
		LogLevel:        withDefault(fileConfig.LogLevel, "info"),
		StatePath:       withDefault(fileConfig.StatePath, defaultStatePath()),
		RefreshInterval: parseDurationDefault(fileConfig.RefreshInterval, 5*time.Minute),
		CatalogCacheTTL: parseDurationDefault(fileConfig.CatalogCacheTTL, 10*time.Minute),
		Store:           fileConfig.Store,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromSecretManager fetches store credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads store credentials from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Store = StoreConfig{
		BaseURL:       os.Getenv("STORE_BASE_URL"),
		AdminUsername: os.Getenv("STORE_ADMIN_USERNAME"),
		AdminPassword: os.Getenv("STORE_ADMIN_PASSWORD"),
		StoreName:     os.Getenv("STORE_NAME"),
	}
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store base_url is required")
	}
	if _, err := url.Parse(c.Store.BaseURL); err != nil {
		return fmt.Errorf("invalid store base_url: %w", err)
	}
	if c.Store.AdminUsername == "" {
		return fmt.Errorf("store admin_username is required")
	}
	if c.Store.AdminPassword == "" {
		return fmt.Errorf("store admin_password is required")
	}
	return nil
}

// defaultStatePath places the session state file under the user config dir.
func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".storefront/state.json"
	}
	return dir + "/storefront/state.json"
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// durationOrDefault parses a duration env var, falling back on absence or error.
func durationOrDefault(key string, defaultVal time.Duration) time.Duration {
	return parseDurationDefault(os.Getenv(key), defaultVal)
}

func parseDurationDefault(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
