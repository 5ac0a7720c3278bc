package quality

import (
	"strings"
	"testing"
)

func TestScoreAlwaysInRange(t *testing.T) {
	s := NewScorer()
	inputs := []struct {
		name string
		text string
		meta Meta
	}{
		{"empty", "", Meta{NativeConfidence: NoNative}},
		{"whitespace", "   \n\t  ", Meta{NativeConfidence: NoNative}},
		{"tiny", "ok", Meta{NativeConfidence: NoNative}},
		{"binary-ish", strings.Repeat("\x00\x01\x02", 200), Meta{NativeConfidence: NoNative}},
		{"clean text", "COMPROVANTE DE TRANSFERÊNCIA\nValor: R$ 1.234,56\nData: 02/03/2024\nBanco do Brasil", Meta{NativeConfidence: NoNative}},
		{"native above one", "algum texto razoável aqui com várias palavras", Meta{NativeConfidence: 7.5}},
		{"native below zero", "algum texto razoável aqui com várias palavras", Meta{NativeConfidence: -3}},
	}
	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(tt.text, tt.meta)
			if res.Score < 0 || res.Score > 1 {
				t.Fatalf("score %v outside [0,1]", res.Score)
			}
		})
	}
}

func TestScoreEmptyIsZeroWithWarning(t *testing.T) {
	res := NewScorer().Score("", Meta{NativeConfidence: NoNative})
	if res.Score != 0 {
		t.Fatalf("empty text scored %v, want 0", res.Score)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning for empty input")
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer()
	text := "PIX enviado\nValor: R$ 350,00\nFavorecido: Oficina Mecânica Silva LTDA"
	meta := Meta{NativeConfidence: 0.82}
	first := s.Score(text, meta)
	for i := 0; i < 5; i++ {
		if got := s.Score(text, meta); got.Score != first.Score {
			t.Fatalf("score changed between runs: %v vs %v", got.Score, first.Score)
		}
	}
}

func TestScoreOutOfRangeNativeClamped(t *testing.T) {
	s := NewScorer()
	res := s.Score("texto suficientemente longo para ser pontuado com palavras reais", Meta{NativeConfidence: 42})
	if res.Score > 1 {
		t.Fatalf("clamping failed, score %v", res.Score)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a data-quality warning for out-of-range native confidence")
	}
}

func TestScoreCapsShortText(t *testing.T) {
	s := NewScorer()
	res := s.Score("ok", Meta{NativeConfidence: 0.99})
	if res.Score > 0.1 {
		t.Fatalf("short text scored %v, want <= 0.1", res.Score)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning for unreliably short text")
	}
}

func TestScorePrefersCleanText(t *testing.T) {
	s := NewScorer()
	clean := s.Score("COMPROVANTE DE PAGAMENTO\nBeneficiário: Construtora Alfa LTDA\nValor total pago: R$ 10.500,00\nData da operação: 15/01/2024\nBanco Itaú Unibanco agência 0744", Meta{NativeConfidence: NoNative})
	noisy := s.Score("\x7f\x7f@@##%%^^&&**((~~``??>><<\n\x01\x02\x03\x04 zz\n%%$$##@@!!", Meta{NativeConfidence: NoNative})
	if clean.Score <= noisy.Score {
		t.Fatalf("clean text (%v) should outscore garbage (%v)", clean.Score, noisy.Score)
	}
}
