package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	OCR          OCRConfig
	LLM          LLMConfig
	Auth         AuthConfig
	Conversation ConversationConfig
	Pipeline     PipelineConfig
	LogLevel     slog.Level
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCHealthAddr string
	CORSOrigins    []string
	UploadDir      string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// CookieSecure marks the session cookie Secure; enable behind HTTPS.
	CookieSecure bool
	// HealthInterval is how often the gRPC health status re-checks the database.
	HealthInterval time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Backend         string // tesseract | remote
	TessdataDir     string
	Lang            string
	DPI             int
	MaxPages        int
	MinDigitalChars int
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	OCRModel    string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// AuthConfig holds identity token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// ConversationConfig holds chat transcript settings
type ConversationConfig struct {
	Store       string // memory | redis
	RedisURL    string
	TTL         time.Duration
	MaxMessages int
}

// PipelineConfig holds ingestion settings
type PipelineConfig struct {
	DefaultLanguage string
	ExtractTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables. A .env file in the
// working directory, if present, is applied first without overriding the
// process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       httpAddr(),
			GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
			CORSOrigins:    getEnvAsList("CORS_ORIGIN", []string{"http://localhost:5173"}),
			UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),
			CookieSecure:   getEnvAsBool("COOKIE_SECURE", false),
			HealthInterval: getEnvAsDuration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		},
		OCR: OCRConfig{
			Backend:         strings.ToLower(getEnv("OCR_BACKEND", "tesseract")),
			TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
			Lang:            getEnv("OCR_LANG", "eng"),
			DPI:             getEnvAsInt("OCR_DPI", 300),
			MaxPages:        getEnvAsInt("OCR_MAX_PAGES", 0),
			MinDigitalChars: getEnvAsInt("OCR_MIN_DIGITAL_CHARS", 30),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.together.xyz/v1"),
			Model:       getEnv("LLM_MODEL", "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"),
			OCRModel:    getEnv("LLM_OCR_MODEL", "meta-llama/Llama-Vision-Free"),
			APIKey:      getEnv("LLM_API_KEY", getEnv("TOGETHER_API_KEY", getEnv("OPENAI_API_KEY", ""))),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Conversation: ConversationConfig{
			Store:       strings.ToLower(getEnv("CONVERSATION_STORE", "memory")),
			RedisURL:    getEnv("REDIS_URL", ""),
			TTL:         getEnvAsDuration("CHAT_TRANSCRIPT_TTL", 24*time.Hour),
			MaxMessages: getEnvAsInt("CHAT_MAX_MESSAGES", 0),
		},
		Pipeline: PipelineConfig{
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "English"),
			ExtractTimeout:  getEnvAsDuration("EXTRACT_TIMEOUT", 2*time.Minute),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func httpAddr() string {
	if addr := getEnv("HTTP_ADDR", ""); addr != "" {
		return addr
	}
	return ":" + getEnv("PORT", "5000")
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		return defaultValue
	}
	return lvl
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q is not supported", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.OCR.MinDigitalChars <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_MIN_DIGITAL_CHARS must be positive", ErrInvalidInput)
	}
	if c.Conversation.Store == "redis" && c.Conversation.RedisURL == "" {
		return NewAppError("CONFIG_ERROR", "REDIS_URL is required when CONVERSATION_STORE=redis", ErrInvalidInput)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", ErrInvalidInput)
	}
	if c.Auth.JWTSecret == "" {
		return NewAppError("CONFIG_ERROR", "JWT_SECRET is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
