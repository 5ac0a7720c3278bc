package constants

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  DocType
		ok    bool
	}{
		{"exact", "CNH", CNH, true},
		{"case drift", "cnh", CNH, true},
		{"accent stripped", "comprovante bancario", ComprovanteBancario, true},
		{"synonym", "nfs-e", NotaFiscalServico, true},
		{"verbose not resolved", "Acredito que seja uma CNH do condutor.", Unclassified, false},
		{"empty", "", Unclassified, false},
		{"garbage", "recibo de padaria", Unclassified, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt, ok := Canonicalize(tt.input)
			if dt != tt.want || ok != tt.ok {
				t.Fatalf("Canonicalize(%q) = (%v, %v), want (%v, %v)",
					tt.input, dt, ok, tt.want, tt.ok)
			}
		})
	}
}
