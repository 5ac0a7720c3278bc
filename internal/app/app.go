// Package app wires configuration into a ready pipeline. Both binaries share
// this assembly; only their run loops differ.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/chunk"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/convert"
	"github.com/mvbarbosa/docetl/internal/cost"
	"github.com/mvbarbosa/docetl/internal/llm/registry"
	"github.com/mvbarbosa/docetl/internal/pipeline"
	"github.com/mvbarbosa/docetl/internal/prompt"
	"github.com/mvbarbosa/docetl/internal/quality"
	"github.com/mvbarbosa/docetl/internal/similarity"
	"github.com/mvbarbosa/docetl/internal/store"
)

// App bundles the assembled components.
type App struct {
	Cfg          *common.Config
	Logger       *slog.Logger
	Store        store.Store
	Ledger       *cost.Ledger
	Catalog      *catalog.Catalog
	Orchestrator *pipeline.Orchestrator

	closers []func()
}

// Build assembles everything from configuration. Fails fast on any
// authoring or configuration defect.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, Logger: logger}

	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog = cat

	prompts, err := prompt.Load(cfg.Paths.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if err := validatePrompts(prompts); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Ledger = cost.NewLedger(cost.RateTable{
		ModelRates: cfg.LLM.ModelRates,
		PageRate:   cfg.Convert.RemotePageRate,
	}, st, logger)

	gateway, closeGW, err := registry.New(ctx, cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := closeGW(); err != nil {
			logger.Warn("closing llm gateway", "error", err)
		}
	})

	reg, err := buildRegistry(cfg.Convert, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var chunker *chunk.Chunker
	if cfg.Chunking.Enabled {
		chunker, err = chunk.New(cfg.Chunking)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var sim similarity.Store = similarity.Noop{}
	if cfg.Similarity.Enabled {
		dsn := cfg.Similarity.DSN
		if dsn == "" {
			dsn = cfg.Database.DSN
		}
		pv, err := similarity.NewPgVector(ctx, dsn, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open similarity store: %w", err)
		}
		sim = pv
		a.closers = append(a.closers, pv.Close)
	}

	orch, err := pipeline.New(pipeline.Deps{
		Convert:    cfg.Convert,
		Quality:    cfg.Quality,
		Similarity: cfg.Similarity,
		Registry:   reg,
		Scorer:     quality.NewScorer(),
		Gateway:    gateway,
		Catalog:    cat,
		Prompts:    prompts,
		Chunker:    chunker,
		Sim:        sim,
		Ledger:     a.Ledger,
		Store:      st,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Orchestrator = orch
	return a, nil
}

// Close releases resources in reverse assembly order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildRegistry constructs the provider chain. Providers whose configuration
// is absent are dropped from the order with a warning rather than failing
// startup.
func buildRegistry(cfg common.ConvertConfig, logger *slog.Logger) (*convert.Registry, error) {
	available := map[string]convert.Provider{
		"local": convert.NewLocal(convert.LocalConfig{
			Pdftotext:     cfg.Pdftotext,
			Pdftoppm:      cfg.Pdftoppm,
			Tesseract:     cfg.Tesseract,
			TesseractLang: cfg.TesseractLang,
			DPI:           cfg.DPI,
		}, logger),
	}
	if cfg.RemoteEndpoint != "" {
		available["remote"] = convert.NewRemote(convert.RemoteConfig{
			Endpoint: cfg.RemoteEndpoint,
			APIKey:   cfg.RemoteAPIKey,
			Timeout:  cfg.CallTimeout,
		}, logger)
	}

	order := make([]string, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		if _, ok := available[name]; !ok && name == "remote" {
			logger.Warn("remote provider not configured, dropping from chain")
			continue
		}
		order = append(order, name)
	}
	return convert.NewRegistry(order, available)
}

// validatePrompts checks every template against the variables the pipeline
// supplies, so authoring defects surface at startup.
func validatePrompts(p *prompt.Resolver) error {
	checks := map[string][]string{
		prompt.ClassificationBase:     {"tipos_documentos", "descricoes_tipos", "texto_documento"},
		prompt.ClassificationAdaptive: {"tipos_documentos", "descricoes_tipos", "exemplos", "texto_documento"},
		prompt.ExtractionBase:         {"tipo_documento", "campos", "texto_documento"},
		prompt.ExtractionAdaptive:     {"tipo_documento", "campos", "exemplos", "texto_documento"},
	}
	for name, vars := range checks {
		if err := p.Validate(name, vars...); err != nil {
			return fmt.Errorf("prompt template %q: %w", name, err)
		}
	}
	return nil
}
