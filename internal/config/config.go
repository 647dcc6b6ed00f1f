// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSystemPrompt is the assistant persona sent with every request.
const DefaultSystemPrompt = "You are AI-Assistant, a smart assistant known for being helpful, friendly and concise. " +
	"Answer directly but with personality. You may use the occasional emoji to keep conversations pleasant. " +
	"Always try to be useful and educational."

type Config struct {
	ServerPort string
	StaticDir  string

	// Backend (LM Studio or any OpenAI-compatible server)
	LMStudioURL    string
	LMStudioAPIKey string
	RequestTimeout time.Duration
	MaxRetries     int
	WarmupOnStart  bool
	VerboseLM      bool
	// Glob patterns of models that never get a chat-shaped request.
	ForceRawModels []string
	SystemPrompt   string

	// Request defaults
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64

	// Chat storage
	ChatStorage    string
	ChatsDir       string
	ChatSQLitePath string

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables or .env file.
func Load() *Config {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := &Config{
		ServerPort:         getEnv("PORT", "3000"),
		StaticDir:          getEnv("STATIC_DIR", "public"),
		LMStudioURL:        strings.TrimRight(getEnv("LMSTUDIO_URL", "http://localhost:1234"), "/"),
		LMStudioAPIKey:     getEnv("LMSTUDIO_API_KEY", ""),
		RequestTimeout:     time.Duration(getEnvAsInt("LM_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxRetries:         getEnvAsInt("LM_MAX_RETRIES", 1),
		WarmupOnStart:      getEnvAsBool("WARMUP_ON_START", false),
		VerboseLM:          getEnvAsBool("VERBOSE_LM", false),
		ForceRawModels:     splitList(getEnv("FORCE_RAW_MODELS", "")),
		SystemPrompt:       getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
		DefaultModel:       getEnv("DEFAULT_MODEL", ""),
		DefaultMaxTokens:   getEnvAsInt("DEFAULT_MAX_TOKENS", 500),
		DefaultTemperature: getEnvAsFloat("DEFAULT_TEMPERATURE", 0.7),
		ChatStorage:        strings.ToLower(getEnv("CHAT_STORAGE", "file")),
		ChatsDir:           getEnv("CHATS_DIR", "chats"),
		ChatSQLitePath:     getEnv("CHAT_SQLITE_PATH", "chats.db"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		Environment:        env,
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Validate checks the values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.LMStudioURL == "" {
		return fmt.Errorf("LMSTUDIO_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("LM_TIMEOUT_MS must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("LM_MAX_RETRIES cannot be negative")
	}
	switch c.ChatStorage {
	case "file", "sqlite":
	default:
		return fmt.Errorf("CHAT_STORAGE must be 'file' or 'sqlite', got %q", c.ChatStorage)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as number. Using default value.", key)
		return defaultValue
	}
	return floatValue
}

// getEnvAsBool only treats "true" (any case) as true.
func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	return strings.ToLower(strings.TrimSpace(strValue)) == "true"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
