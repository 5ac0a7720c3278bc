package llm

import (
	"errors"
	"testing"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/common"
)

func bankSchema() catalog.Schema {
	return catalog.Schema{Fields: []catalog.Field{
		{Name: "razao_social", Label: "Razão Social", Mandatory: true},
		{Name: "valor", Label: "Valor", Mandatory: true},
		{Name: "data_transacao", Label: "Data da Transação", Mandatory: true},
	}}
}

func TestBuildExtractionJSONSchemaShape(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	props := m["properties"].(map[string]any)
	if len(props) != 3 {
		t.Fatalf("got %d properties, want 3", len(props))
	}
	// absent fields are backfilled with the sentinel, never rejected
	if _, ok := m["required"]; ok {
		t.Fatal("schema must not require fields")
	}
	if m["additionalProperties"] != false {
		t.Fatal("additionalProperties must be false")
	}
}

func TestFinishExtractionAcceptsCleanOutput(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	content := `{"razao_social":"ACME LTDA","valor":"R$ 1.200,00","data_transacao":"12/03/2024"}`
	res, err := FinishExtraction(content, m, "gpt-4o-mini", Usage{TokensIn: 100, TokensOut: 40}, nil)
	if err != nil {
		t.Fatalf("FinishExtraction: %v", err)
	}
	if res.Fields["razao_social"] != "ACME LTDA" {
		t.Fatalf("wrong field value: %q", res.Fields["razao_social"])
	}
	if len(res.Sanitized) != 0 {
		t.Fatalf("clean output should need no sanitization, got %v", res.Sanitized)
	}
}

func TestFinishExtractionStripsMarkdownFence(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	content := "```json\n{\"razao_social\":\"ACME\",\"valor\":\"100\",\"data_transacao\":\"12/03/2024\"}\n```"
	res, err := FinishExtraction(content, m, "gpt-4o-mini", Usage{}, nil)
	if err != nil {
		t.Fatalf("FinishExtraction: %v", err)
	}
	if res.Fields["valor"] != "100" {
		t.Fatalf("valor = %q", res.Fields["valor"])
	}
}

func TestFinishExtractionSanitizesNearMissOutput(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	// numeric value, null field, unknown key
	content := `{"razao_social":" ACME ","valor":1200.5,"data_transacao":null,"banco":"X"}`
	res, err := FinishExtraction(content, m, "gpt-4o-mini", Usage{}, nil)
	if err != nil {
		t.Fatalf("FinishExtraction: %v", err)
	}
	if res.Fields["razao_social"] != "ACME" {
		t.Fatalf("razao_social not trimmed: %q", res.Fields["razao_social"])
	}
	if res.Fields["valor"] != "1200.5" {
		t.Fatalf("valor not coerced: %q", res.Fields["valor"])
	}
	if res.Fields["data_transacao"] != constants.FieldNotFound {
		t.Fatalf("null field should carry the sentinel, got %q", res.Fields["data_transacao"])
	}
	if _, ok := res.Fields["banco"]; ok {
		t.Fatal("unknown key survived sanitization")
	}
	if len(res.Sanitized) == 0 {
		t.Fatal("sanitization actions not reported")
	}
}

func TestFinishExtractionBackfillsMissingKeyWithSentinel(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	content := `{"razao_social":"ACME","valor":"100"}`
	res, err := FinishExtraction(content, m, "gpt-4o-mini", Usage{}, nil)
	if err != nil {
		t.Fatalf("FinishExtraction: %v", err)
	}
	if res.Fields["data_transacao"] != constants.FieldNotFound {
		t.Fatalf("absent field should carry the sentinel, got %q", res.Fields["data_transacao"])
	}
	if res.Fields["razao_social"] != "ACME" {
		t.Fatalf("present field altered: %q", res.Fields["razao_social"])
	}
}

func TestFinishExtractionMalformedOnNonJSON(t *testing.T) {
	m := BuildExtractionJSONSchema(bankSchema())
	_, err := FinishExtraction("desculpe, não consegui processar", m, "gpt-4o-mini", Usage{}, nil)
	if !errors.Is(err, common.ErrExtractionMalformed) {
		t.Fatalf("expected ErrExtractionMalformed, got %v", err)
	}
}
