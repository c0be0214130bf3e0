package ingestion

import (
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/ingestion/validator"
)

// Ingestor applies the per-field analysis policy. It holds no state and may
// be shared by any number of workers.
type Ingestor struct{}

func NewIngestor() *Ingestor {
	return &Ingestor{}
}

// Ingest validates p and analyses its fields. Rejected records return a
// *validator.ValidationError.
func (in *Ingestor) Ingest(p catalog.Product) (Document, error) {
	if err := validator.ValidateProduct(p); err != nil {
		return Document{}, err
	}
	fields := make(index.FieldTokens, len(index.Fields))
	for _, f := range index.SourceFields {
		fields[f] = index.AnalyzerFor(f).Analyze(fieldText(p, f))
	}
	fields[index.FieldCatchAll] = catchAll(p)
	return Document{Product: p, Fields: fields}, nil
}

// catchAll concatenates the catch-all analysis of title, description and
// merchant, leaving FieldPositionGap empty positions between fields.
func catchAll(p catalog.Product) []tokenizer.Token {
	analyzer := index.AnalyzerFor(index.FieldCatchAll)
	var out []tokenizer.Token
	base := 0
	for _, f := range index.SourceFields {
		tokens := analyzer.Analyze(fieldText(p, f))
		if len(tokens) == 0 {
			continue
		}
		for _, tok := range tokens {
			out = append(out, tokenizer.Token{Term: tok.Term, Position: base + tok.Position})
		}
		base += tokens[len(tokens)-1].Position + 1 + index.FieldPositionGap
	}
	return out
}

func fieldText(p catalog.Product, f index.Field) string {
	switch f {
	case index.FieldTitle:
		return p.Title
	case index.FieldDescription:
		return p.Description
	case index.FieldMerchant:
		return p.Merchant
	default:
		return ""
	}
}
