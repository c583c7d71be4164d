package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath       = "PAVEBOT_CONFIG"
	envRedisURL         = "REDIS_URL"
	envTwilioAccountSID = "TWILIO_ACCOUNT_SID"
	envTwilioAuthToken  = "TWILIO_AUTH_TOKEN"
	envTwilioFromNumber = "TWILIO_WHATSAPP_NUMBER"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envTelegramAllow    = "TELEGRAM_ALLOW_FROM"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Redis    RedisConfig    `json:"redis"`
	Gateway  GatewayConfig  `json:"gateway"`
	Provider ProviderConfig `json:"provider"`
	Limits   LimitsConfig   `json:"limits"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RedisConfig configures the shared redis connection used by the
// idempotency store, the rate limiter, and the session store.
type RedisConfig struct {
	URL string `json:"url"`
}

// GatewayConfig selects and configures the outbound messaging gateway.
type GatewayConfig struct {
	Driver   string         `json:"driver"`
	Twilio   TwilioConfig   `json:"twilio"`
	Telegram TelegramConfig `json:"telegram"`
}

// TwilioConfig configures the Twilio WhatsApp gateway.
type TwilioConfig struct {
	AccountSID     string `json:"account_sid"`
	AuthToken      string `json:"auth_token"`
	WhatsAppNumber string `json:"whatsapp_number"`
}

// TelegramConfig configures the Telegram gateway.
type TelegramConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// ProviderConfig stores per-provider connection settings.
type ProviderConfig struct {
	Default string       `json:"default"`
	OpenAI  OpenAIConfig `json:"openai"`
}

// OpenAIConfig configures the OpenAI provider client.
type OpenAIConfig struct {
	Model                 string `json:"model"`
	APIKeyEnv             string `json:"api_key_env,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	Organization          string `json:"organization,omitempty"`
	Project               string `json:"project,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// LimitsConfig groups the pipeline budgets: rate limiting, timeouts,
// retry counts and payload caps.
type LimitsConfig struct {
	RatePerMinute         int `json:"rate_per_minute"`
	ProcessTimeoutSeconds int `json:"process_timeout_seconds"`
	ModelTimeoutSeconds   int `json:"model_timeout_seconds"`
	ToolTimeoutSeconds    int `json:"tool_timeout_seconds"`
	RetryAttempts         int `json:"retry_attempts"`
	RetryBaseDelayMs      int `json:"retry_base_delay_ms"`
	DeliveryPacingMs      int `json:"delivery_pacing_ms"`
	SessionTTLHours       int `json:"session_ttl_hours"`
	IdempotencyTTLHours   int `json:"idempotency_ttl_hours"`
	MaxToolPayloadBytes   int `json:"max_tool_payload_bytes"`
}

// LoadConfig resolves config.json, unmarshals it, and applies defaults
// plus environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Defaults returns a configuration with every limit filled in, for
// callers that run without a config file (tests, the chat command).
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gateway.Driver == "" {
		cfg.Gateway.Driver = "twilio"
	}
	if cfg.Provider.Default == "" {
		cfg.Provider.Default = "openai"
	}
	if cfg.Provider.OpenAI.Model == "" {
		cfg.Provider.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Provider.OpenAI.RequestTimeoutSeconds == 0 {
		cfg.Provider.OpenAI.RequestTimeoutSeconds = 30
	}

	limits := &cfg.Limits
	if limits.RatePerMinute == 0 {
		limits.RatePerMinute = 30
	}
	if limits.ProcessTimeoutSeconds == 0 {
		limits.ProcessTimeoutSeconds = 20
	}
	if limits.ModelTimeoutSeconds == 0 {
		limits.ModelTimeoutSeconds = 5
	}
	if limits.ToolTimeoutSeconds == 0 {
		limits.ToolTimeoutSeconds = 4
	}
	if limits.RetryAttempts == 0 {
		limits.RetryAttempts = 3
	}
	if limits.RetryBaseDelayMs == 0 {
		limits.RetryBaseDelayMs = 400
	}
	if limits.DeliveryPacingMs == 0 {
		limits.DeliveryPacingMs = 400
	}
	if limits.SessionTTLHours == 0 {
		limits.SessionTTLHours = 24
	}
	if limits.IdempotencyTTLHours == 0 {
		limits.IdempotencyTTLHours = 24
	}
	if limits.MaxToolPayloadBytes == 0 {
		limits.MaxToolPayloadBytes = 4096
	}
}

// applyEnvOverrides injects secret-bearing env settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if url := strings.TrimSpace(os.Getenv(envRedisURL)); url != "" {
		cfg.Redis.URL = url
	}
	if sid := strings.TrimSpace(os.Getenv(envTwilioAccountSID)); sid != "" {
		cfg.Gateway.Twilio.AccountSID = sid
	}
	if token := strings.TrimSpace(os.Getenv(envTwilioAuthToken)); token != "" {
		cfg.Gateway.Twilio.AuthToken = token
	}
	if number := strings.TrimSpace(os.Getenv(envTwilioFromNumber)); number != "" {
		cfg.Gateway.Twilio.WhatsAppNumber = number
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Gateway.Telegram.Token = token
	}
	if rawAllow := strings.TrimSpace(os.Getenv(envTelegramAllow)); rawAllow != "" {
		cfg.Gateway.Telegram.AllowFrom = parseCSV(rawAllow)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is PAVEBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("PAVEBOT_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
