// Package pipeline drives a document job through conversion, classification
// and extraction. The orchestrator owns the job state machine; every other
// component is a collaborator it calls through an interface.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/chunk"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/convert"
	"github.com/mvbarbosa/docetl/internal/cost"
	"github.com/mvbarbosa/docetl/internal/entity"
	"github.com/mvbarbosa/docetl/internal/llm"
	"github.com/mvbarbosa/docetl/internal/prompt"
	"github.com/mvbarbosa/docetl/internal/quality"
	"github.com/mvbarbosa/docetl/internal/similarity"
	"github.com/mvbarbosa/docetl/internal/store"
)

// Deps bundles the orchestrator's collaborators. Registry, Gateway, Catalog,
// Prompts and Ledger are required; the rest default to inert implementations.
type Deps struct {
	Convert    common.ConvertConfig
	Quality    common.QualityConfig
	Similarity common.SimilarityConfig

	Registry *convert.Registry
	Scorer   *quality.Scorer
	Gateway  llm.Gateway
	Catalog  *catalog.Catalog
	Prompts  *prompt.Resolver
	Chunker  *chunk.Chunker // nil disables chunking
	Sim      similarity.Store
	Ledger   *cost.Ledger
	Store    store.Store
	Logger   *slog.Logger
}

type Orchestrator struct {
	cfg     common.ConvertConfig
	quality common.QualityConfig
	simCfg  common.SimilarityConfig

	registry *convert.Registry
	scorer   *quality.Scorer
	gateway  llm.Gateway
	catalog  *catalog.Catalog
	prompts  *prompt.Resolver
	chunker  *chunk.Chunker
	sim      similarity.Store
	ledger   *cost.Ledger
	store    store.Store
	logger   *slog.Logger
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "conversion registry is required", common.ErrInvalidInput)
	}
	if deps.Gateway == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "llm gateway is required", common.ErrInvalidInput)
	}
	if deps.Catalog == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "catalog is required", common.ErrInvalidInput)
	}
	if deps.Prompts == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "prompt resolver is required", common.ErrInvalidInput)
	}
	if deps.Ledger == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "cost ledger is required", common.ErrInvalidInput)
	}
	if deps.Scorer == nil {
		deps.Scorer = quality.NewScorer()
	}
	if deps.Sim == nil {
		deps.Sim = similarity.Noop{}
	}
	if deps.Store == nil {
		deps.Store = store.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Convert.MaxFileSize <= 0 {
		deps.Convert.MaxFileSize = constants.MaxFileSize
	}
	return &Orchestrator{
		cfg:      deps.Convert,
		quality:  deps.Quality,
		simCfg:   deps.Similarity,
		registry: deps.Registry,
		scorer:   deps.Scorer,
		gateway:  deps.Gateway,
		catalog:  deps.Catalog,
		prompts:  deps.Prompts,
		chunker:  deps.Chunker,
		sim:      deps.Sim,
		ledger:   deps.Ledger,
		store:    deps.Store,
		logger:   deps.Logger,
	}, nil
}

// Process runs one document through the full pipeline. The returned record is
// always populated once a job exists; err is non-nil on every branch that did
// not reach COMPLETED, wrapping the taxonomy sentinel that caused it.
func (o *Orchestrator) Process(ctx context.Context, doc entity.Document) (*entity.FinalRecord, error) {
	now := time.Now().UTC()
	job := &entity.DocumentJob{
		ID:        uuid.New(),
		CallerID:  common.CallerIDFromContext(ctx),
		Document:  doc,
		State:     constants.StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.transition(ctx, job, constants.StateReceived)

	if err := o.validateIntake(doc); err != nil {
		return o.fail(ctx, job, constants.StateConversionFailed, err)
	}
	if err := o.checkCancelled(ctx, job); err != nil {
		return o.finalRecord(job), err
	}

	// conversion
	o.transition(ctx, job, constants.StateConverting)
	best, err := o.convertStage(ctx, job)
	if err != nil {
		return o.fail(ctx, job, constants.StateConversionFailed, err)
	}
	job.Winner = best.Provider
	o.transition(ctx, job, constants.StateConverted)
	if err := o.checkCancelled(ctx, job); err != nil {
		return o.finalRecord(job), err
	}

	// classification
	o.transition(ctx, job, constants.StateClassifying)
	cls, examples, err := o.classifyStage(ctx, job, best.Text)
	if err != nil {
		return o.fail(ctx, job, constants.StateClassificationFailed, err)
	}
	job.Classification = cls
	if cls.Unclassified() {
		job.AddFlag(constants.FlagManualReview)
		return o.fail(ctx, job, constants.StateClassificationFailed,
			common.NewAppError("CLASSIFICATION_REJECTED",
				"document matched no catalog type", common.ErrInvalidInput))
	}
	if cls.Confidence < o.quality.ClassificationConfidence {
		// still extract: a weak but in-catalog answer is reviewable, not fatal
		job.AddFlag(constants.FlagManualReview)
		o.logger.Warn("classification confidence below threshold",
			"job_id", job.ID, "type", cls.Type,
			"confidence", cls.Confidence, "threshold", o.quality.ClassificationConfidence)
	}
	o.transition(ctx, job, constants.StateClassified)
	if err := o.checkCancelled(ctx, job); err != nil {
		return o.finalRecord(job), err
	}

	// extraction
	o.transition(ctx, job, constants.StateExtracting)
	extraction, err := o.extractStage(ctx, job, best.Text, cls.Type, examples)
	if err != nil {
		return o.fail(ctx, job, constants.StateExtractionFailed, err)
	}
	job.Extraction = extraction
	if len(extraction.MissingMandatory) > 0 {
		job.AddFlag(constants.FlagPartialExtraction)
		job.AddFlag(constants.FlagManualReview)
	}
	o.transition(ctx, job, constants.StateExtracted)
	if err := o.checkCancelled(ctx, job); err != nil {
		return o.finalRecord(job), err
	}

	o.recordExample(ctx, job, best.Text)
	o.transition(ctx, job, constants.StateCompleted)
	return o.finalRecord(job), nil
}

func (o *Orchestrator) validateIntake(doc entity.Document) error {
	ext := doc.Ext()
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return common.NewAppError("INTAKE_REJECTED",
			fmt.Sprintf("extension %q not accepted", ext), common.ErrUnsupportedFormat)
	}
	if size := int64(len(doc.Bytes)); size > o.cfg.MaxFileSize {
		return common.NewAppError("INTAKE_REJECTED",
			fmt.Sprintf("file size %d exceeds limit %d", size, o.cfg.MaxFileSize), common.ErrInvalidInput)
	}
	return nil
}

// checkCancelled moves the job to CANCELLED when the context is done. Only
// called between stages: an in-flight stage finishes or aborts on its own.
func (o *Orchestrator) checkCancelled(ctx context.Context, job *entity.DocumentJob) error {
	if err := ctx.Err(); err != nil {
		job.FailureReason = err.Error()
		// snapshot with a background context, the job's own is dead
		o.transition(context.Background(), job, constants.StateCancelled)
		return err
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, job *entity.DocumentJob, state constants.JobState) {
	job.State = state
	job.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Warn("job snapshot persist failed", "job_id", job.ID, "state", state, "error", err)
	}
	o.logger.Info("job.state", "job_id", job.ID, "state", state)
}

func (o *Orchestrator) fail(ctx context.Context, job *entity.DocumentJob, state constants.JobState, err error) (*entity.FinalRecord, error) {
	job.FailureReason = err.Error()
	o.transition(ctx, job, state)
	o.logger.Error("job failed", "job_id", job.ID, "state", state, "error", err)
	return o.finalRecord(job), err
}

func (o *Orchestrator) finalRecord(job *entity.DocumentJob) *entity.FinalRecord {
	rec := &entity.FinalRecord{
		JobID:          job.ID,
		State:          job.State,
		Flags:          job.Flags,
		FailureReason:  job.FailureReason,
		Classification: job.Classification,
		Extraction:     job.Extraction,
	}
	for _, c := range job.Conversions {
		rec.Scores = append(rec.Scores, entity.ProviderScore{Provider: c.Provider, Quality: c.Quality})
		if c.Provider == job.Winner {
			rec.Conversion = &entity.ProviderScore{Provider: c.Provider, Quality: c.Quality}
		}
	}
	return rec
}

// recordExample stores the processed document in the similarity store.
// Best-effort: a failure here never fails the job.
func (o *Orchestrator) recordExample(ctx context.Context, job *entity.DocumentJob, text string) {
	if !o.simCfg.Enabled || job.Extraction == nil || len(job.Extraction.MissingMandatory) > 0 {
		return
	}
	emb, err := o.gateway.Embed(ctx, clip(text, o.embedLimit()))
	if err != nil {
		o.logger.Warn("example embedding failed", "job_id", job.ID, "error", err)
		return
	}
	o.ledger.AppendEmbedding(ctx, job.ID, o.gateway.Name(), emb.Model, emb.Usage.TokensIn)
	raw, err := extractionJSON(job.Extraction)
	if err != nil {
		o.logger.Warn("example encoding failed", "job_id", job.ID, "error", err)
		return
	}
	ex := similarity.Example{
		JobID:      job.ID,
		Type:       job.Extraction.Type,
		Text:       clip(text, o.embedLimit()),
		Extraction: raw,
		Confidence: job.Classification.Confidence,
	}
	if err := o.sim.Add(ctx, ex, emb.Vector); err != nil {
		o.logger.Warn("example store failed", "job_id", job.ID, "error", err)
	}
}
