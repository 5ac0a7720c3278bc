// Package registry constructs the configured llm.Gateway backend.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/llm"
	"github.com/mvbarbosa/docetl/internal/llm/gemini"
	"github.com/mvbarbosa/docetl/internal/llm/openai"
)

// New returns the gateway named by cfg.Backend plus a close function.
// Unknown backend names fail here, at startup.
func New(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Gateway, func() error, error) {
	switch cfg.Backend {
	case "openai":
		c := openai.NewClient(openai.Config{
			APIKey:              cfg.APIKey,
			BaseURL:             cfg.BaseURL,
			ClassificationModel: cfg.ClassificationModel,
			ExtractionModel:     cfg.ExtractionModel,
			EmbeddingModel:      cfg.EmbeddingModel,
			Temperature:         cfg.Temperature,
			Timeout:             cfg.Timeout,
		}, logger)
		return c, func() error { return nil }, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:              cfg.APIKey,
			ClassificationModel: cfg.ClassificationModel,
			ExtractionModel:     cfg.ExtractionModel,
			EmbeddingModel:      cfg.EmbeddingModel,
			Temperature:         cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, common.NewAppError("LLM_CONFIG",
			fmt.Sprintf("unknown LLM backend %q", cfg.Backend), common.ErrInvalidInput)
	}
}
