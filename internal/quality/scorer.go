// Package quality computes a normalized [0,1] confidence score for a
// conversion result. Scoring is deterministic and never fails: unscorable
// input yields 0.0 plus a warning, not an error.
package quality

import (
	"regexp"
	"strings"
)

// Meta carries provider-native signals into scoring.
type Meta struct {
	// NativeConfidence is the provider's own confidence, when it reports
	// one. Negative means absent.
	NativeConfidence float32
	// ExpectedDensity is chars-per-line considered "full" text. Zero uses
	// the default.
	ExpectedDensity float64
}

// Result is a scored conversion.
type Result struct {
	Score    float32
	Warnings []string
}

var (
	reWord  = regexp.MustCompile(`\pL{2,}`)
	reValid = regexp.MustCompile(`[\pL\pN\s.,;:!?\-()\[\]{}#*|_=+@$%&<>"'/\\]`)
)

const defaultDensity = 60.0

// Scorer combines text-shape signals and the provider-native confidence into
// one scalar.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Score blends character density, valid-character ratio, real-word ratio and
// the provider-native confidence. Identical input always yields an identical
// score.
func (s *Scorer) Score(text string, meta Meta) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Score: 0, Warnings: []string{"empty conversion text"}}
	}

	var warnings []string

	native := meta.NativeConfidence
	if native > 1 {
		warnings = append(warnings, "provider confidence above 1 clamped")
		native = 1
	}
	if native < 0 && native != -1 {
		// anything negative other than the explicit "absent" marker is a
		// provider defect
		warnings = append(warnings, "provider confidence below 0 clamped")
	}

	density := meta.ExpectedDensity
	if density <= 0 {
		density = defaultDensity
	}

	lines := nonEmptyLines(trimmed)
	totalChars := float64(len(trimmed))
	charsPerLine := totalChars / float64(len(lines))

	validChars := float64(len(reValid.FindAllString(trimmed, -1)))
	validRatio := validChars / totalChars

	words := float64(len(reWord.FindAllString(trimmed, -1)))
	wordRatio := words / float64(len(lines))

	score := 0.30*clamp01(charsPerLine/density) +
		0.40*clamp01(validRatio) +
		0.30*clamp01(wordRatio/5)

	if len(trimmed) < 10 {
		warnings = append(warnings, "conversion text too short to score reliably")
		return Result{Score: min32(float32(score), 0.1), Warnings: warnings}
	}

	// blend in the provider's own signal when present
	if native >= 0 {
		score = 0.6*score + 0.4*float64(native)
	}

	final := float32(score)
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}
	return Result{Score: final, Warnings: warnings}
}

// NoNative marks the provider-native confidence as absent.
const NoNative = float32(-1)

func nonEmptyLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	if len(out) == 0 {
		out = append(out, s)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
