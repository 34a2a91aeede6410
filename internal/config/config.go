package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the process needs. It is loaded once
// at startup and passed into constructors; nothing reads the
// environment after Load returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Hume     HumeConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	hume, err := loadHumeConfig()
	if err != nil {
		return nil, err
	}

	auth := AuthConfig{Secret: strings.TrimSpace(os.Getenv("JWT_SECRET"))}
	if auth.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	database := DatabaseConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))}

	return &Config{Server: server, Database: database, Auth: auth, Hume: hume}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
	Env  string
}

// IsDevelopment reports whether the process runs in development mode.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env != "production"
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		// Allow both ":8080" and a bare port number.
		addr = ":" + port
	}

	return ServerConfig{
		Addr: addr,
		Env:  getEnvOrDefault("ENV", "development"),
	}, nil
}

// DatabaseConfig describes the Postgres connection. An empty URL keeps
// the server on the in-memory store, which is only useful for local
// development.
type DatabaseConfig struct {
	URL string
}

// AuthConfig carries the JWT signing secret shared with the account
// service that issues tokens.
type AuthConfig struct {
	Secret string
}

// HumeConfig describes the upstream EVI connection.
type HumeConfig struct {
	APIKey           string
	ConfigID         string
	Granularity      string
	BaseURL          string
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

// Enabled reports whether the upstream credential is present.
func (c HumeConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadHumeConfig() (HumeConfig, error) {
	handshake, err := parseOptionalIntEnv("HUME_HANDSHAKE_TIMEOUT_SECONDS")
	if err != nil {
		return HumeConfig{}, err
	}
	handshakeSeconds := 30
	if handshake != nil {
		handshakeSeconds = *handshake
	}

	idle, err := parseOptionalIntEnv("HUME_IDLE_TIMEOUT_SECONDS")
	if err != nil {
		return HumeConfig{}, err
	}
	idleSeconds := 60
	if idle != nil {
		idleSeconds = *idle
	}

	return HumeConfig{
		APIKey:           strings.TrimSpace(os.Getenv("HUME_API_KEY")),
		ConfigID:         strings.TrimSpace(os.Getenv("HUME_CONFIG_ID")),
		Granularity:      getEnvOrDefault("HUME_GRANULARITY", "word"),
		BaseURL:          getEnvOrDefault("HUME_BASE_URL", "wss://api.hume.ai/v0/evi/chat"),
		HandshakeTimeout: time.Duration(handshakeSeconds) * time.Second,
		IdleTimeout:      time.Duration(idleSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
