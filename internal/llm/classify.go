package llm

import (
	"strings"

	"github.com/mvbarbosa/docetl/constants"
)

// Confidence levels assigned to a resolved classification answer. The model
// answers with a label, not a probability; confidence reflects how directly
// the answer matched the catalog.
const (
	ConfidenceExact  = 0.85 // answer is a canonical type name
	ConfidenceFuzzy  = 0.70 // answer matched after folding or via synonym
	ConfidenceWeak   = 0.50 // canonical name found inside a verbose answer
	ConfidenceAbsent = 0.0
)

// ResolveAnswer maps a raw classification answer onto the catalog. Answers
// that match nothing, or that are the unclassified sentinel, come back as
// Unclassified with zero confidence.
func ResolveAnswer(answer string) (constants.DocType, float32) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"'.`))
	if s == "" || s == string(constants.Unclassified) {
		return constants.Unclassified, ConfidenceAbsent
	}

	for _, name := range constants.AsStringSlice() {
		if s == name {
			return constants.DocType(name), ConfidenceExact
		}
	}
	if dt, ok := constants.Canonicalize(s); ok && dt != constants.Unclassified {
		return dt, ConfidenceFuzzy
	}

	// verbose answer: accept it only when exactly one catalog name appears
	var found constants.DocType
	count := 0
	for _, name := range constants.AsStringSlice() {
		if strings.Contains(s, name) {
			found = constants.DocType(name)
			count++
		}
	}
	if count == 1 {
		return found, ConfidenceWeak
	}
	return constants.Unclassified, ConfidenceAbsent
}
