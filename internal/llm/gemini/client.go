// Package gemini implements the llm.Gateway against the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/llm"
)

// Config for the Gemini client.
type Config struct {
	APIKey              string
	ClassificationModel string
	ExtractionModel     string
	EmbeddingModel      string
	Temperature         float32
}

type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ClassificationModel == "" {
		cfg.ClassificationModel = "gemini-1.5-flash"
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = cfg.ClassificationModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: cl, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Classify(ctx context.Context, prompt string) (llm.TextResult, error) {
	m := c.client.GenerativeModel(c.cfg.ClassificationModel)
	m.SetTemperature(c.cfg.Temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return llm.TextResult{}, fmt.Errorf("gemini generate: %v: %w", err, common.ErrProviderUnavailable)
	}
	answer, usage := collect(resp)
	if answer == "" {
		return llm.TextResult{}, fmt.Errorf("empty gemini response: %w", common.ErrProviderRejected)
	}
	return llm.TextResult{
		Answer: strings.TrimSpace(answer),
		Model:  c.cfg.ClassificationModel,
		Usage:  usage,
	}, nil
}

func (c *Client) Extract(ctx context.Context, prompt string, schemaMap map[string]any) (llm.ExtractResult, error) {
	m := c.client.GenerativeModel(c.cfg.ExtractionModel)
	m.SetTemperature(c.cfg.Temperature)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return llm.ExtractResult{}, fmt.Errorf("gemini generate: %v: %w", err, common.ErrProviderUnavailable)
	}
	content, usage := collect(resp)
	if content == "" {
		return llm.ExtractResult{}, fmt.Errorf("empty gemini response: %w", common.ErrProviderRejected)
	}
	return llm.FinishExtraction(content, schemaMap, c.cfg.ExtractionModel, usage, c.logger)
}

func (c *Client) Embed(ctx context.Context, text string) (llm.EmbedResult, error) {
	em := c.client.EmbeddingModel(c.cfg.EmbeddingModel)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return llm.EmbedResult{}, fmt.Errorf("gemini embed: %v: %w", err, common.ErrProviderUnavailable)
	}
	if resp.Embedding == nil {
		return llm.EmbedResult{}, fmt.Errorf("no embedding in response: %w", common.ErrProviderRejected)
	}
	return llm.EmbedResult{Vector: resp.Embedding.Values, Model: c.cfg.EmbeddingModel}, nil
}

// collect joins the text parts of the first candidate and reads usage
// metadata when present.
func collect(resp *genai.GenerateContentResponse) (string, llm.Usage) {
	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		usage.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", usage
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), usage
}
