package catalog

import (
	"testing"

	"github.com/mvbarbosa/docetl/constants"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(c.Types()); got != 10 {
		t.Fatalf("expected 10 catalog types, got %d", got)
	}

	d := c.Lookup(constants.ComprovanteBancario)
	if d == nil {
		t.Fatal("Comprovante Bancário missing from catalog")
	}
	for _, want := range []string{"razao_social", "valor", "data_transacao", "nome_banco"} {
		if !d.Schema.Declares(want) {
			t.Fatalf("bank receipt schema missing %q", want)
		}
	}

	cnh := c.Lookup(constants.CNH)
	if cnh == nil {
		t.Fatal("CNH missing from catalog")
	}
	mandatory := cnh.Schema.MandatoryFields()
	found := false
	for _, m := range mandatory {
		if m == "numero_cnh" {
			found = true
		}
	}
	if !found {
		t.Fatalf("numero_cnh not mandatory for CNH, got %v", mandatory)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "version: 1\ntypes: []\n"},
		{"unknown type", "types:\n  - name: Passaporte\n    fields:\n      - name: numero\n"},
		{"no fields", "types:\n  - name: CNH\n    fields: []\n"},
		{"duplicate field", "types:\n  - name: CNH\n    fields:\n      - name: cpf\n      - name: cpf\n"},
		{"duplicate type", "types:\n  - name: CNH\n    fields:\n      - name: cpf\n  - name: CNH\n    fields:\n      - name: cpf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLookupUnknownType(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d := c.Lookup(constants.Unclassified); d != nil {
		t.Fatal("unclassified sentinel must not resolve to a descriptor")
	}
}
