package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the service configuration.
type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig
	Assistant AssistantConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Gateway:   gateway,
		Assistant: loadAssistantConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" to be passed directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// GatewayConfig describes the remote assistant endpoint.
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadGatewayConfig() (GatewayConfig, error) {
	timeoutSeconds := 15
	if override, err := parseOptionalIntEnv("GATEWAY_TIMEOUT_SECONDS"); err != nil {
		return GatewayConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return GatewayConfig{}, fmt.Errorf("GATEWAY_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		timeoutSeconds = *override
	}

	return GatewayConfig{
		BaseURL: getEnvOrDefault("GATEWAY_BASE_URL", "http://localhost:5001"),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// AssistantConfig carries the user-visible canned strings. Defaults match the
// Hindi strings the product ships with; deployments override them per locale.
type AssistantConfig struct {
	Greeting  string
	Fallback  string
	MicNotice string
}

func loadAssistantConfig() AssistantConfig {
	return AssistantConfig{
		Greeting:  getEnvOrDefault("ASSISTANT_GREETING", "नमस्ते! मैं आपका कृषि सहायक हूँ। मैं आपकी कैसे मदद कर सकता हूँ?"),
		Fallback:  getEnvOrDefault("ASSISTANT_FALLBACK", "माफ़ करें, अभी मैं जवाब नहीं दे पा रहा हूँ। कृपया इंटरनेट कनेक्शन जाँचें।"),
		MicNotice: getEnvOrDefault("ASSISTANT_MIC_NOTICE", "माइक्रोफ़ोन एक्सेस करने में विफल।"),
	}
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
