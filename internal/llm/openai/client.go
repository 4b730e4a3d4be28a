package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/llm"
)

const visionPrompt = "Transcribe all text visible in this image as Markdown. " +
	"Keep tables as Markdown tables and keep the original reading order. " +
	"Return only the transcription with no commentary."

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements llm.ChatModel. Every failure mode (transport, non-2xx,
// malformed envelope, empty content) is reported as ErrModelInvocationFailed.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	start := time.Now()
	c.logger.Info("llm.complete.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"messages", len(messages),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}

	content, err := c.chat(ctx, body)
	if err != nil {
		c.logger.Error("llm.complete.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	out := llm.CleanResponse(content)
	if out == "" {
		c.logger.Error("llm.complete.empty", "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: empty completion", common.ErrModelInvocationFailed)
	}

	c.logger.Info("llm.complete.ok",
		"chars", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// TranscribeImage sends an image (as a data URL) to the vision model and
// returns its text transcription.
func (c *Client) TranscribeImage(ctx context.Context, dataURL string) (string, error) {
	start := time.Now()
	body := map[string]any{
		"model":       c.cfg.VisionModel,
		"temperature": 0,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": visionPrompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}
	content, err := c.chat(ctx, body)
	if err != nil {
		c.logger.Error("llm.vision.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	c.logger.Info("llm.vision.ok", "chars", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(content), nil
}

func (c *Client) chat(ctx context.Context, body map[string]any) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("%w: status %d", common.ErrModelInvocationFailed, se.Status)
		}
		return "", fmt.Errorf("%w: %v", common.ErrModelInvocationFailed, err)
	}

	if err := llm.ValidateJSONAgainstSchema(llm.ChatCompletionSchema(), raw); err != nil {
		c.logger.Error("llm.response.schema_validation_failed", "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("%w: malformed response: %v", common.ErrModelInvocationFailed, err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", common.ErrModelInvocationFailed, err)
	}
	return cc.Choices[0].Message.Content, nil
}
