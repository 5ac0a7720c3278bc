// Package prompt renders the classification and extraction prompt templates.
// Templates are named, versioned text blocks with {placeholder} tokens, loaded
// once at startup and immutable thereafter; the resolver itself is stateless.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/common"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Template family names. Each task has a base variant and an adaptive variant
// that injects similar prior documents.
const (
	ClassificationBase     = "classificacao_base"
	ClassificationAdaptive = "classificacao_adaptiva"
	ExtractionBase         = "extracao_base"
	ExtractionAdaptive     = "extracao_adaptiva"
)

var rePlaceholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Resolver holds the immutable template table.
type Resolver struct {
	version   int
	templates map[string]string
}

type promptsFile struct {
	Version   int               `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
}

// Load reads templates from path, or the embedded defaults when path is
// empty. All four family templates must be present.
func Load(path string) (*Resolver, error) {
	data := defaultPromptsYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
		data = b
	}

	var f promptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	for _, name := range []string{ClassificationBase, ClassificationAdaptive, ExtractionBase, ExtractionAdaptive} {
		if strings.TrimSpace(f.Templates[name]) == "" {
			return nil, common.NewAppError("PROMPT_CONFIG",
				fmt.Sprintf("template %q missing", name), common.ErrInvalidInput)
		}
	}
	return &Resolver{version: f.Version, templates: f.Templates}, nil
}

// Version returns the template table version.
func (r *Resolver) Version() int { return r.version }

// Render substitutes every placeholder in the named template. A placeholder
// with no supplied variable fails with ErrMissingVariable; there is no
// silent partial substitution.
func (r *Resolver) Render(name string, vars map[string]string) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", common.NewAppError("PROMPT_UNKNOWN",
			fmt.Sprintf("no template named %q", name), common.ErrInvalidInput)
	}

	var missing []string
	out := rePlaceholder.ReplaceAllStringFunc(tpl, func(tok string) string {
		key := tok[1 : len(tok)-1]
		v, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return tok
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("template %q: variables %v: %w", name, missing, common.ErrMissingVariable)
	}
	return out, nil
}

// Placeholders lists the variables a template references, for startup
// validation.
func (r *Resolver) Placeholders(name string) []string {
	tpl, ok := r.templates[name]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range rePlaceholder.FindAllStringSubmatch(tpl, -1) {
		if _, dup := seen[m[1]]; !dup {
			seen[m[1]] = struct{}{}
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks eagerly that the named template references no variable
// outside the supplied set. Run at startup so template authoring defects
// never surface mid-pipeline.
func (r *Resolver) Validate(name string, supplied ...string) error {
	set := make(map[string]struct{}, len(supplied))
	for _, s := range supplied {
		set[s] = struct{}{}
	}
	for _, ph := range r.Placeholders(name) {
		if _, ok := set[ph]; !ok {
			return fmt.Errorf("template %q references %q: %w", name, ph, common.ErrMissingVariable)
		}
	}
	return nil
}

// Example is one prior document injected into an adaptive prompt.
type Example struct {
	Type string
	Text string
	// Result is the stored extraction JSON for extraction examples; empty
	// for classification examples.
	Result string
}

// RenderExamples formats up to max examples as a prompt block. Pure function
// of its inputs.
func RenderExamples(examples []Example, max int) string {
	if max > 0 && len(examples) > max {
		examples = examples[:max]
	}
	var b strings.Builder
	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "Exemplo %d (tipo: %s):\n%s\n", i+1, ex.Type, snippet(ex.Text, 800))
		if ex.Result != "" {
			fmt.Fprintf(&b, "Resultado extraído:\n%s\n", snippet(ex.Result, 800))
		}
	}
	return b.String()
}

// FieldGuidance renders the schema's field list with labels and hints, the
// block the extraction templates substitute for {campos}.
func FieldGuidance(schema catalog.Schema) string {
	var b strings.Builder
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "- %s (chave JSON: %q)", f.Label, f.Name)
		if f.Mandatory {
			b.WriteString(" [obrigatório]")
		}
		if f.Hint != "" {
			b.WriteString(": ")
			b.WriteString(f.Hint)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
