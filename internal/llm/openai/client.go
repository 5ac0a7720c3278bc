// Package openai implements the llm.Gateway against the OpenAI
// chat/completions and embeddings APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/llm"
)

// Config for the OpenAI client.
type Config struct {
	APIKey              string
	BaseURL             string // default https://api.openai.com/v1
	ClassificationModel string
	ExtractionModel     string
	EmbeddingModel      string
	Temperature         float32
	Timeout             time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.ClassificationModel == "" {
		cfg.ClassificationModel = "gpt-4o-mini"
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = cfg.ClassificationModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
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

func (c *Client) Name() string { return "openai" }

// Classify sends the classification prompt and returns the model's raw
// answer, trimmed. The caller maps it onto the catalog.
func (c *Client) Classify(ctx context.Context, prompt string) (llm.TextResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.classify.start",
		"req_id", rid, "model", c.cfg.ClassificationModel, "prompt_len", len(prompt))

	body := map[string]any{
		"model":       c.cfg.ClassificationModel,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	content, usage, err := c.chat(ctx, body)
	if err != nil {
		c.logger.Error("llm.classify.error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.TextResult{}, err
	}

	c.logger.Info("llm.classify.ok",
		"req_id", rid, "answer", content, "elapsed_ms", time.Since(start).Milliseconds())
	return llm.TextResult{
		Answer: strings.TrimSpace(content),
		Model:  c.cfg.ClassificationModel,
		Usage:  usage,
	}, nil
}

// Extract sends the extraction prompt with the JSON schema appended as an
// output constraint and validates the answer before returning it.
func (c *Client) Extract(ctx context.Context, prompt string, schemaMap map[string]any) (llm.ExtractResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"req_id", rid, "model", c.cfg.ExtractionModel, "prompt_len", len(prompt))

	body := map[string]any{
		"model":           c.cfg.ExtractionModel,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schemaMap)},
		},
	}
	content, usage, err := c.chat(ctx, body)
	if err != nil {
		c.logger.Error("llm.extract.error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.ExtractResult{}, err
	}

	res, err := llm.FinishExtraction(content, schemaMap, c.cfg.ExtractionModel, usage, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.malformed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.ExtractResult{}, err
	}
	c.logger.Info("llm.extract.ok",
		"req_id", rid, "fields", len(res.Fields), "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) (llm.EmbedResult, error) {
	body := map[string]any{
		"model": c.cfg.EmbeddingModel,
		"input": text,
	}
	raw, err := c.post(ctx, c.endpoint("/embeddings"), body)
	if err != nil {
		return llm.EmbedResult{}, err
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return llm.EmbedResult{}, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(resp.Data) == 0 {
		return llm.EmbedResult{}, fmt.Errorf("no embedding in response: %w", common.ErrProviderRejected)
	}
	return llm.EmbedResult{
		Vector: resp.Data[0].Embedding,
		Model:  c.cfg.EmbeddingModel,
		Usage:  llm.Usage{TokensIn: resp.Usage.PromptTokens},
	}, nil
}

// chat posts one chat/completions call and returns the first choice's content
// plus usage.
func (c *Client) chat(ctx context.Context, body map[string]any) (string, llm.Usage, error) {
	raw, err := c.post(ctx, c.endpoint("/chat/completions"), body)
	if err != nil {
		return "", llm.Usage{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", llm.Usage{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", llm.Usage{}, fmt.Errorf("no choices in openai response: %w", common.ErrProviderRejected)
	}
	usage := llm.Usage{TokensIn: cc.Usage.PromptTokens, TokensOut: cc.Usage.CompletionTokens}
	return cc.Choices[0].Message.Content, usage, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("openai call: %v: %w", ctxErr, common.ErrProviderUnavailable)
		}
		return nil, fmt.Errorf("openai call: %v: %w", err, common.ErrProviderUnavailable)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("openai status %d: %w", resp.StatusCode, common.ErrProviderUnavailable)
	default:
		return nil, fmt.Errorf("openai status %d: %s: %w",
			resp.StatusCode, truncate(string(raw), 200), common.ErrProviderRejected)
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
