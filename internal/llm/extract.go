package llm

import (
	"fmt"
	"log/slog"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
)

// FinishExtraction turns raw model content into a validated ExtractResult.
// Shared by every backend: strict validation first, one lenient sanitize pass
// when that fails, and ErrExtractionMalformed when the output still does not
// conform. The caller owns any retry.
func FinishExtraction(content string, schemaMap map[string]any, model string, usage Usage, logger *slog.Logger) (ExtractResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := StripToJSON(content)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%v: %w", err, common.ErrExtractionMalformed)
	}

	var actions []string
	if err := ValidateJSONAgainstSchema(schemaMap, raw); err != nil {
		cleaned, acts, sErr := SanitizeFields(raw, declaredFields(schemaMap))
		if sErr != nil {
			return ExtractResult{}, fmt.Errorf("%v: %w", sErr, common.ErrExtractionMalformed)
		}
		if vErr := ValidateJSONAgainstSchema(schemaMap, cleaned); vErr != nil {
			logger.Warn("llm.extract.schema_validation_failed", "model", model, "error", vErr)
			return ExtractResult{}, fmt.Errorf("%v: %w", vErr, common.ErrExtractionMalformed)
		}
		logger.Warn("llm.extract.lenient_sanitize_applied", "model", model, "actions", acts)
		raw, actions = cleaned, acts
	}

	fields, err := DecodeFields(raw)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%v: %w", err, common.ErrExtractionMalformed)
	}
	// fields the model left out carry the not-found sentinel
	for f := range declaredFields(schemaMap) {
		if _, ok := fields[f]; !ok {
			fields[f] = constants.FieldNotFound
			actions = append(actions, f+"(absent)")
		}
	}
	return ExtractResult{
		Fields:    fields,
		Raw:       raw,
		Model:     model,
		Usage:     usage,
		Sanitized: actions,
	}, nil
}

// declaredFields lists the property names of a built extraction schema.
func declaredFields(schemaMap map[string]any) map[string]bool {
	out := make(map[string]bool)
	props, _ := schemaMap["properties"].(map[string]any)
	for k := range props {
		out[k] = true
	}
	return out
}
