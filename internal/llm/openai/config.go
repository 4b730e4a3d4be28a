package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for an OpenAI-compatible chat/completions endpoint (OpenAI, Together, ...).
type Config struct {
	APIKey      string        // if empty, falls back to env LLM_API_KEY, TOGETHER_API_KEY, OPENAI_API_KEY
	BaseURL     string        // default https://api.together.xyz/v1
	Model       string        // text model
	VisionModel string        // model used for image transcription
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	MaxTokens   int
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		for _, k := range []string{"LLM_API_KEY", "TOGETHER_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(k); v != "" {
				cfg.APIKey = v
				break
			}
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.together.xyz/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "meta-llama/Llama-Vision-Free"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
