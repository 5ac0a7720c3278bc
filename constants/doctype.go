package constants

import (
	"strings"
)

// DocType is the canonical name of a supported document type.
// Values are the exact labels the classifier must answer with.
type DocType string

const (
	ComprovanteBancario   DocType = "Comprovante Bancário"
	CNH                   DocType = "CNH"
	CartaoCNPJ            DocType = "Cartão CNPJ"
	CEIObra               DocType = "CEI da Obra"
	InscricaoMunicipal    DocType = "Inscrição Municipal"
	TermoResponsabilidade DocType = "Termo de Responsabilidade"
	AlvaraMunicipal       DocType = "Alvará Municipal"
	ContratoSocial        DocType = "Contrato Social"
	FaturaTelefonica      DocType = "Fatura Telefônica"
	NotaFiscalServico     DocType = "Nota Fiscal de Serviços Eletrônica"

	// Unclassified is the sentinel returned when no catalog type matches.
	Unclassified DocType = "Documento Não Classificado"
)

// FieldNotFound is the sentinel value extraction carries for a declared field
// the model could not locate in the document text.
const FieldNotFound = "Não foi possível localizar este campo"

var allDocTypes = []DocType{
	ComprovanteBancario,
	CNH,
	CartaoCNPJ,
	CEIObra,
	InscricaoMunicipal,
	TermoResponsabilidade,
	AlvaraMunicipal,
	ContratoSocial,
	FaturaTelefonica,
	NotaFiscalServico,
}

// DocTypeIDs maps canonical names to stable internal identifiers
// (template names, schema keys, DB columns).
var DocTypeIDs = map[DocType]string{
	ComprovanteBancario:   "comprovante_bancario",
	CNH:                   "cnh",
	CartaoCNPJ:            "cartao_cnpj",
	CEIObra:               "cei_obra",
	InscricaoMunicipal:    "inscricao_municipal",
	TermoResponsabilidade: "termo_responsabilidade",
	AlvaraMunicipal:       "alvara_municipal",
	ContratoSocial:        "contrato_social",
	FaturaTelefonica:      "fatura_telefonica",
	NotaFiscalServico:     "nota_fiscal_servico",
}

func AsStringSlice() []string {
	result := make([]string, len(allDocTypes))
	for i, dt := range allDocTypes {
		result[i] = string(dt)
	}
	return result
}

// Canonicalize resolves a model-produced label to a catalog type, tolerating
// case and accent drift. Returns Unclassified and false when nothing matches.
func Canonicalize(input string) (DocType, bool) {
	if input == "" {
		return Unclassified, false
	}

	normalized := fold(input)

	// common accent-stripped / abbreviated variants
	synonyms := map[string]DocType{
		"comprovante bancario": ComprovanteBancario,
		"cei":                  CEIObra,
		"cei da obra":          CEIObra,
		"inscricao municipal":  InscricaoMunicipal,
		"alvara municipal":     AlvaraMunicipal,
		"cartao cnpj":          CartaoCNPJ,
		"fatura telefonica":    FaturaTelefonica,
		"nfs-e":                NotaFiscalServico,
		"nota fiscal de servicos eletronica": NotaFiscalServico,
	}

	if dt, ok := synonyms[normalized]; ok {
		return dt, true
	}

	for _, dt := range allDocTypes {
		if normalized == fold(string(dt)) {
			return dt, true
		}
	}

	// verbose labels ("acho que é uma CNH") are NOT resolved here; the
	// classifier treats those separately, with lower confidence
	return Unclassified, false
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u",
	"ç", "c",
)

func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}
