package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Doctor presence heartbeats
	PresenceTTL           time.Duration
	PresenceSweepInterval time.Duration

	// Emergency contact notifier (Twilio WhatsApp)
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	EmergencyCountryPfx string

	// External risk analyzer; keyword fallback is used when unset or down.
	RiskAnalyzerURL     string
	RiskAnalyzerTimeout time.Duration

	CORSAllowedOrigins []string

	// WebSocket gateway
	WSWriteTimeout  time.Duration
	WSSendBuffer    int
	WSMaxMessageLen int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PresenceTTL:           getEnvAsDuration("PRESENCE_TTL", 90*time.Second),
		PresenceSweepInterval: getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", 30*time.Second),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom:  getEnv("TWILIO_WHATSAPP_FROM", ""),
		EmergencyCountryPfx: getEnv("EMERGENCY_COUNTRY_PREFIX", "+91"),

		RiskAnalyzerURL:     getEnv("RISK_ANALYZER_URL", ""),
		RiskAnalyzerTimeout: getEnvAsDuration("RISK_ANALYZER_TIMEOUT", 5*time.Second),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),

		WSWriteTimeout:  getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		WSSendBuffer:    getEnvAsInt("WS_SEND_BUFFER", 32),
		WSMaxMessageLen: int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 1<<16)),
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

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
