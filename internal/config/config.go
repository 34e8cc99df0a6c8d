package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultKnowledgeBaseID = "OWMDKF0HOE"
	DefaultBedrockModelID  = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultFallbackMessage = "An error occurred while processing your request."
	DefaultChatTitle       = "GeoComply Client Portal Chatbot"
	DefaultChatSubtitle    = "Chat with the demo AI chatbot, any question or recommendation please contact yuan.liu@geocomply.com"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Knowledge base the chat answers from, and the foundation model that
	// generates the answer.
	KnowledgeBaseID string
	BedrockModelID  string

	ChatTitle          string
	ChatSubtitle       string
	FallbackMessage    string
	FenceLanguageHints bool

	SessionIdleTTL     time.Duration
	CORSAllowedOrigins []string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		KnowledgeBaseID: strings.TrimSpace(getEnv("KNOWLEDGE_BASE_ID", DefaultKnowledgeBaseID)),
		BedrockModelID:  strings.TrimSpace(getEnv("BEDROCK_MODEL_ID", DefaultBedrockModelID)),

		ChatTitle:          getEnv("CHAT_TITLE", DefaultChatTitle),
		ChatSubtitle:       getEnv("CHAT_SUBTITLE", DefaultChatSubtitle),
		FallbackMessage:    getEnv("CHAT_FALLBACK_MESSAGE", DefaultFallbackMessage),
		FenceLanguageHints: getEnvAsBool("CHAT_FENCE_LANGUAGE", false),

		SessionIdleTTL:     getEnvAsDuration("SESSION_IDLE_TTL", 12*time.Hour),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRateLimitRPS:   getEnvAsFloat("CHAT_RATE_LIMIT_RPS", 2),
		ChatRateLimitBurst: getEnvAsInt("CHAT_RATE_LIMIT_BURST", 10),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
