package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/convert"
	"github.com/mvbarbosa/docetl/internal/entity"
	"github.com/mvbarbosa/docetl/internal/llm"
	"github.com/mvbarbosa/docetl/internal/prompt"
	"github.com/mvbarbosa/docetl/internal/quality"
	"github.com/mvbarbosa/docetl/internal/similarity"
)

// scoreEpsilon is the margin within which two provider scores are considered
// equal; ties go to the higher-priority provider.
const scoreEpsilon = 0.01

// adaptiveBoost is added to the resolved confidence when an adaptive prompt
// classified the document, capped at 0.95.
const adaptiveBoost = 0.10

// strictRetryInstruction is appended to the prompt on the single retry after
// a malformed extraction response.
const strictRetryInstruction = "\n\nIMPORTANTE: responda APENAS com um objeto JSON válido contendo os campos solicitados, sem nenhum texto adicional."

// convertStage runs the provider chain and returns the accepted conversion.
// Every attempt is appended to job.Conversions, accepted or not.
func (o *Orchestrator) convertStage(ctx context.Context, job *entity.DocumentJob) (*entity.ConversionResult, error) {
	format := constants.MapExtToFormat(job.Document.Ext())
	chain := o.eligible(format)
	if len(chain) == 0 {
		return nil, common.NewAppError("CONVERSION_FAILED",
			fmt.Sprintf("no provider supports format %s", format), common.ErrUnsupportedFormat)
	}

	if o.cfg.Concurrent {
		return o.convertConcurrent(ctx, job, chain)
	}
	return o.convertSequential(ctx, job, chain)
}

// eligible filters the chain to providers that support the format, keeping
// priority order.
func (o *Orchestrator) eligible(format string) []convert.Provider {
	var out []convert.Provider
	for _, p := range o.registry.Chain() {
		if p.Supports(format) {
			out = append(out, p)
		}
	}
	return out
}

// convertSequential walks the chain and stops at the first result meeting the
// acceptance threshold. When no result does, the best one wins and the job is
// flagged low-confidence.
func (o *Orchestrator) convertSequential(ctx context.Context, job *entity.DocumentJob, chain []convert.Provider) (*entity.ConversionResult, error) {
	var lastErr error
	for _, p := range chain {
		res, err := o.tryProvider(ctx, job, p)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		job.Conversions = append(job.Conversions, *res)
		if res.Quality >= o.cfg.AcceptThreshold {
			o.logger.Info("conversion accepted",
				"job_id", job.ID, "provider", res.Provider, "quality", res.Quality)
			return res, nil
		}
		o.logger.Warn("conversion below threshold, trying next provider",
			"job_id", job.ID, "provider", res.Provider,
			"quality", res.Quality, "threshold", o.cfg.AcceptThreshold)
	}
	return o.settleBest(job, lastErr)
}

// convertConcurrent fans out to the whole chain at once and settles after all
// complete: the highest-priority result over the threshold wins, otherwise
// the best score with a priority tie-break.
func (o *Orchestrator) convertConcurrent(ctx context.Context, job *entity.DocumentJob, chain []convert.Provider) (*entity.ConversionResult, error) {
	results := make([]*entity.ConversionResult, len(chain))
	errs := make([]error, len(chain))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range chain {
		i, p := i, p
		g.Go(func() error {
			res, err := o.tryProvider(gctx, job, p)
			results[i], errs[i] = res, err
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lastErr error
	for i, res := range results {
		if res != nil {
			job.Conversions = append(job.Conversions, *res)
		} else if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	// priority order: first acceptable wins
	for _, res := range results {
		if res != nil && res.Quality >= o.cfg.AcceptThreshold {
			return res, nil
		}
	}
	// none acceptable: best score, priority breaking near-ties
	var best *entity.ConversionResult
	for _, res := range results {
		if res == nil {
			continue
		}
		if best == nil || res.Quality > best.Quality+scoreEpsilon {
			best = res
		}
	}
	if best == nil {
		return o.settleBest(job, lastErr)
	}
	job.AddFlag(constants.FlagLowConfidenceConversion)
	return best, nil
}

// tryProvider runs one provider under the per-call timeout and scores its
// output.
func (o *Orchestrator) tryProvider(ctx context.Context, job *entity.DocumentJob, p convert.Provider) (*entity.ConversionResult, error) {
	callCtx := ctx
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := p.Convert(callCtx, job.Document)
	if err != nil {
		o.logger.Warn("provider failed",
			"job_id", job.ID, "provider", p.Name(), "error", err)
		return nil, err
	}

	scored := o.scorer.Score(out.Text, quality.Meta{NativeConfidence: out.NativeConfidence})
	res := &entity.ConversionResult{
		Provider: p.Name(),
		Text:     out.Text,
		Quality:  scored.Score,
		Pages:    out.Pages,
		Duration: time.Since(start),
		Warnings: append(out.Warnings, scored.Warnings...),
	}
	if out.Pages > 0 && p.Name() != "local" {
		o.ledger.AppendConversion(ctx, job.ID, p.Name(), out.Pages)
	}
	return res, nil
}

// settleBest resolves the end of an unaccepted chain: usable text wins with a
// low-confidence flag, nothing usable fails the stage.
func (o *Orchestrator) settleBest(job *entity.DocumentJob, lastErr error) (*entity.ConversionResult, error) {
	best := job.BestConversion()
	if best == nil || strings.TrimSpace(best.Text) == "" {
		if lastErr != nil {
			return nil, fmt.Errorf("all providers failed: %w", lastErr)
		}
		return nil, common.NewAppError("CONVERSION_FAILED",
			"no provider produced usable text", common.ErrProviderUnavailable)
	}
	job.AddFlag(constants.FlagLowConfidenceConversion)
	o.logger.Warn("no conversion met threshold, using best",
		"job_id", job.ID, "provider", best.Provider, "quality", best.Quality)
	return best, nil
}

// classifyStage builds the classification prompt (adaptive when enough
// similar documents exist), calls the gateway and resolves the answer.
// The returned examples are reused by the extraction stage.
func (o *Orchestrator) classifyStage(ctx context.Context, job *entity.DocumentJob, text string) (*entity.ClassificationResult, []similarity.Example, error) {
	clipped := o.classificationText(text)

	examples := o.similarExamples(ctx, job, clipped)
	adaptive := len(examples) >= o.quality.MinSimilarDocuments

	vars := map[string]string{
		"tipos_documentos": renderTypeList(o.catalog.TypeNames()),
		"descricoes_tipos": renderDescriptions(o.catalog),
		"texto_documento":  clipped,
	}
	name := prompt.ClassificationBase
	if adaptive {
		name = prompt.ClassificationAdaptive
		vars["exemplos"] = prompt.RenderExamples(classificationExamples(examples), o.quality.MaxSimilarDocuments)
	}
	p, err := o.prompts.Render(name, vars)
	if err != nil {
		return nil, nil, err
	}

	res, err := o.gateway.Classify(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("classification call: %w", err)
	}
	o.ledger.AppendLLM(ctx, job.ID, o.gateway.Name(), res.Model, res.Usage.TokensIn, res.Usage.TokensOut)

	dt, conf := llm.ResolveAnswer(res.Answer)
	if adaptive && dt != constants.Unclassified {
		conf += adaptiveBoost
		if conf > 0.95 {
			conf = 0.95
		}
	}
	o.logger.Info("document classified",
		"job_id", job.ID, "type", dt, "confidence", conf, "adaptive", adaptive)
	return &entity.ClassificationResult{
		Type:       dt,
		Confidence: conf,
		Model:      res.Model,
		Adaptive:   adaptive,
	}, examples, nil
}

// extractStage runs schema-constrained extraction, chunking extensive
// documents and merging the per-chunk results.
func (o *Orchestrator) extractStage(ctx context.Context, job *entity.DocumentJob, text string, dt constants.DocType, examples []similarity.Example) (*entity.ExtractionRecord, error) {
	desc := o.catalog.Lookup(dt)
	if desc == nil {
		return nil, common.NewAppError("EXTRACTION_FAILED",
			fmt.Sprintf("no schema for type %q", dt), common.ErrNotFound)
	}
	schemaMap := llm.BuildExtractionJSONSchema(desc.Schema)

	parts := []string{text}
	if o.chunker != nil && o.chunker.Extensive(text) {
		parts = o.chunker.Split(text)
		o.logger.Info("document chunked", "job_id", job.ID, "chunks", len(parts))
	}

	vars := map[string]string{
		"tipo_documento": string(dt),
		"campos":         prompt.FieldGuidance(desc.Schema),
	}
	name := prompt.ExtractionBase
	if len(examples) >= o.quality.MinSimilarDocuments {
		name = prompt.ExtractionAdaptive
		vars["exemplos"] = prompt.RenderExamples(typedExamples(examples, dt), o.quality.MaxSimilarDocuments)
	}

	merged := make(map[string]string, len(desc.Schema.Fields))
	var model string
	for i, part := range parts {
		vars["texto_documento"] = part
		p, err := o.prompts.Render(name, vars)
		if err != nil {
			return nil, err
		}
		res, err := o.extractOnce(ctx, job, p, schemaMap)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(parts), err)
		}
		model = res.Model
		mergeFields(merged, res.Fields)
	}

	// fields no chunk located carry the sentinel
	for _, f := range desc.Schema.FieldNames() {
		if v, ok := merged[f]; !ok || v == "" {
			merged[f] = constants.FieldNotFound
		}
	}

	var missing []string
	for _, f := range desc.Schema.MandatoryFields() {
		if merged[f] == constants.FieldNotFound {
			missing = append(missing, f)
		}
	}
	return &entity.ExtractionRecord{
		Type:             dt,
		Fields:           merged,
		MissingMandatory: missing,
		Model:            model,
	}, nil
}

// extractOnce calls the gateway, retrying exactly once when the response is
// malformed. Transport failures are not retried here; the provider already
// distinguishes transient from fatal.
func (o *Orchestrator) extractOnce(ctx context.Context, job *entity.DocumentJob, p string, schemaMap map[string]any) (llm.ExtractResult, error) {
	res, err := o.gateway.Extract(ctx, p, schemaMap)
	if err == nil {
		o.ledger.AppendLLM(ctx, job.ID, o.gateway.Name(), res.Model, res.Usage.TokensIn, res.Usage.TokensOut)
		return res, nil
	}
	if !errors.Is(err, common.ErrExtractionMalformed) {
		return llm.ExtractResult{}, err
	}

	o.logger.Warn("malformed extraction, retrying once", "job_id", job.ID, "error", err)
	res, err = o.gateway.Extract(ctx, p+strictRetryInstruction, schemaMap)
	if err != nil {
		return llm.ExtractResult{}, err
	}
	o.ledger.AppendLLM(ctx, job.ID, o.gateway.Name(), res.Model, res.Usage.TokensIn, res.Usage.TokensOut)
	return res, nil
}

// similarExamples embeds the text and queries the store. Any failure returns
// no examples: adaptive prompting degrades, never blocks.
func (o *Orchestrator) similarExamples(ctx context.Context, job *entity.DocumentJob, text string) []similarity.Example {
	if !o.simCfg.Enabled {
		return nil
	}
	emb, err := o.gateway.Embed(ctx, text)
	if err != nil {
		o.logger.Warn("embedding failed, using base prompt", "job_id", job.ID, "error", err)
		return nil
	}
	o.ledger.AppendEmbedding(ctx, job.ID, o.gateway.Name(), emb.Model, emb.Usage.TokensIn)
	sims, err := o.sim.Similar(ctx, emb.Vector, "", o.quality.MaxSimilarDocuments)
	if err != nil {
		o.logger.Warn("similarity lookup failed, using base prompt", "job_id", job.ID, "error", err)
		return nil
	}
	return sims
}

// classificationText bounds the text sent to the classifier: the head of an
// extensive document identifies its type as well as the whole does.
func (o *Orchestrator) classificationText(text string) string {
	if o.chunker != nil && o.chunker.Extensive(text) {
		return o.chunker.Split(text)[0]
	}
	return text
}

func (o *Orchestrator) embedLimit() int {
	return 8000
}

// mergeFields folds one chunk's fields into the merged record: the first
// non-sentinel value for a field wins.
func mergeFields(merged, fields map[string]string) {
	for k, v := range fields {
		cur, ok := merged[k]
		if !ok || cur == constants.FieldNotFound || cur == "" {
			merged[k] = v
		}
	}
}

func renderTypeList(names []string) string {
	var b strings.Builder
	for _, n := range names {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	return b.String()
}

func renderDescriptions(c *catalog.Catalog) string {
	var b strings.Builder
	for _, dt := range c.Types() {
		fmt.Fprintf(&b, "%s: %s\n", dt, c.Lookup(dt).Description)
	}
	return b.String()
}

func classificationExamples(sims []similarity.Example) []prompt.Example {
	out := make([]prompt.Example, 0, len(sims))
	for _, s := range sims {
		out = append(out, prompt.Example{Type: string(s.Type), Text: s.Text})
	}
	return out
}

func typedExamples(sims []similarity.Example, dt constants.DocType) []prompt.Example {
	var out []prompt.Example
	for _, s := range sims {
		if s.Type != dt {
			continue
		}
		out = append(out, prompt.Example{
			Type:   string(s.Type),
			Text:   s.Text,
			Result: string(s.Extraction),
		})
	}
	return out
}

func extractionJSON(rec *entity.ExtractionRecord) ([]byte, error) {
	return json.Marshal(rec.Fields)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
