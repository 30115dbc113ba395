package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultInstructions is the assistant prompt used when INSTRUCTIONS is not set.
const DefaultInstructions = "You are a helpful AI assistant. Please speak clearly and naturally."

// Config holds all relay server configuration
type Config struct {
	Port           int
	WSPath         string // WebSocket path for voice clients
	StaticDir      string // Directory served at / (web client)
	RedisURL       string
	RedisPassword  string
	MaxSessions    int
	SessionTimeout time.Duration
	AllowedOrigins []string

	// Upstream realtime API
	AzureEndpoint   string
	AzureAPIKey     string
	AzureDeployment string
	APIVersion      string

	// Session configuration injected after session.created
	Instructions string
	Voice        string
	VADSilenceMS int
	Temperature  float64
}

// Load reads configuration from environment variables with defaults.
// The three Azure values are required; without them the process must not start.
func Load() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:           3000,
		WSPath:         "/realtime",
		StaticDir:      "public",
		RedisURL:       "localhost:6379",
		RedisPassword:  "",
		MaxSessions:    100,
		SessionTimeout: 30 * time.Minute,
		AllowedOrigins: []string{"*"},
		APIVersion:     "2025-04-01-preview",
		Instructions:   DefaultInstructions,
		Voice:          "alloy",
		VADSilenceMS:   500,
		Temperature:    0.8,
	}

	// Required: AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY, AZURE_OPENAI_DEPLOYMENT
	config.AzureEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	if config.AzureEndpoint == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT environment variable is required")
	}
	config.AzureAPIKey = os.Getenv("AZURE_OPENAI_API_KEY")
	if config.AzureAPIKey == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_API_KEY environment variable is required")
	}
	config.AzureDeployment = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
	if config.AzureDeployment == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_DEPLOYMENT environment variable is required")
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: WS_PATH
	if path := os.Getenv("WS_PATH"); path != "" {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("invalid WS_PATH: must start with /")
		}
		config.WSPath = path
	}

	// Optional: STATIC_DIR
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		config.StaticDir = dir
	}

	// Optional: API_VERSION
	if v := os.Getenv("API_VERSION"); v != "" {
		config.APIVersion = v
	}

	// Optional: INSTRUCTIONS
	if instructions := os.Getenv("INSTRUCTIONS"); instructions != "" {
		config.Instructions = instructions
	}

	// Optional: VOICE
	if voice := os.Getenv("VOICE"); voice != "" {
		config.Voice = voice
	}

	// Optional: VAD_SILENCE_MS
	if silence := os.Getenv("VAD_SILENCE_MS"); silence != "" {
		s, err := strconv.Atoi(silence)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid VAD_SILENCE_MS: %s", silence)
		}
		config.VADSilenceMS = s
	}

	// Optional: TEMPERATURE
	if temp := os.Getenv("TEMPERATURE"); temp != "" {
		f, err := strconv.ParseFloat(temp, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TEMPERATURE: %w", err)
		}
		config.Temperature = f
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	return config, nil
}
