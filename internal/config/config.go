package config

import (
	"encoding/base64"
	"fmt"
)

// GenAIConfig points the server at the external generation collaborator.
type GenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	// RedisURL enables the token denylist when set; empty disables it.
	RedisURL string
	GenAI    GenAIConfig
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, redisURL string, genAI GenAIConfig) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if genAI.BaseURL == "" {
		return nil, fmt.Errorf("generation base URL cannot be empty")
	}
	if genAI.Model == "" {
		return nil, fmt.Errorf("generation model cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		RedisURL:       redisURL,
		GenAI:          genAI,
	}, nil
}
