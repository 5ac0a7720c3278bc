package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/common"
)

func loadDefault(t *testing.T) *Resolver {
	t.Helper()
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	r := loadDefault(t)
	out, err := r.Render(ClassificationBase, map[string]string{
		"tipos_documentos": "- CNH\n- Comprovante Bancário",
		"descricoes_tipos": "CNH: habilitação",
		"texto_documento":  "CARTEIRA NACIONAL DE HABILITAÇÃO",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "{") && rePlaceholder.MatchString(out) {
		t.Fatalf("unresolved placeholder in output:\n%s", out)
	}
	if !strings.Contains(out, "CARTEIRA NACIONAL DE HABILITAÇÃO") {
		t.Fatal("document text not substituted")
	}
}

func TestRenderFailsOnMissingVariable(t *testing.T) {
	r := loadDefault(t)
	_, err := r.Render(ClassificationBase, map[string]string{
		"tipos_documentos": "- CNH",
		// descricoes_tipos and texto_documento intentionally absent
	})
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	if !errors.Is(err, common.ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := loadDefault(t)
	if _, err := r.Render("nao_existe", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestValidateCatchesAuthoringDefects(t *testing.T) {
	r := loadDefault(t)
	if err := r.Validate(ExtractionAdaptive, "tipo_documento", "campos", "exemplos", "texto_documento"); err != nil {
		t.Fatalf("adaptive extraction template should validate: %v", err)
	}
	err := r.Validate(ExtractionAdaptive, "tipo_documento", "campos", "texto_documento")
	if !errors.Is(err, common.ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable for undeclared {exemplos}, got %v", err)
	}
}

func TestPlaceholdersAreStable(t *testing.T) {
	r := loadDefault(t)
	got := r.Placeholders(ClassificationAdaptive)
	want := []string{"descricoes_tipos", "exemplos", "texto_documento", "tipos_documentos"}
	if len(got) != len(want) {
		t.Fatalf("placeholders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("placeholders = %v, want %v", got, want)
		}
	}
}

func TestRenderExamplesCapsAtMax(t *testing.T) {
	examples := []Example{
		{Type: "CNH", Text: "doc um"},
		{Type: "CNH", Text: "doc dois"},
		{Type: "CNH", Text: "doc três"},
	}
	out := RenderExamples(examples, 2)
	if strings.Contains(out, "doc três") {
		t.Fatal("third example should have been dropped")
	}
	if !strings.Contains(out, "Exemplo 2") {
		t.Fatal("second example missing")
	}
}

func TestFieldGuidanceMarksMandatory(t *testing.T) {
	schema := catalog.Schema{Fields: []catalog.Field{
		{Name: "valor", Label: "Valor", Mandatory: true, Hint: "quantia da transação"},
		{Name: "conta", Label: "Conta"},
	}}
	out := FieldGuidance(schema)
	if !strings.Contains(out, `"valor"`) || !strings.Contains(out, "[obrigatório]") {
		t.Fatalf("mandatory marker missing:\n%s", out)
	}
	if strings.Contains(strings.Split(out, "\n")[1], "[obrigatório]") {
		t.Fatal("optional field marked mandatory")
	}
}
