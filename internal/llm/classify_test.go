package llm

import (
	"testing"

	"github.com/mvbarbosa/docetl/constants"
)

func TestResolveAnswer(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		wantType   constants.DocType
		wantConf   float32
	}{
		{"exact", "CNH", constants.CNH, ConfidenceExact},
		{"exact accented", "Comprovante Bancário", constants.ComprovanteBancario, ConfidenceExact},
		{"quoted", `"Contrato Social"`, constants.ContratoSocial, ConfidenceExact},
		{"folded", "comprovante bancario", constants.ComprovanteBancario, ConfidenceFuzzy},
		{"verbose single", "O documento é uma Fatura Telefônica da operadora.", constants.FaturaTelefonica, ConfidenceWeak},
		{"sentinel", "Documento Não Classificado", constants.Unclassified, ConfidenceAbsent},
		{"garbage", "não sei dizer", constants.Unclassified, ConfidenceAbsent},
		{"empty", "", constants.Unclassified, ConfidenceAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt, conf := ResolveAnswer(tt.answer)
			if dt != tt.wantType || conf != tt.wantConf {
				t.Fatalf("ResolveAnswer(%q) = (%v, %v), want (%v, %v)",
					tt.answer, dt, conf, tt.wantType, tt.wantConf)
			}
		})
	}
}
