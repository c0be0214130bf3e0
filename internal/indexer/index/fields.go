package index

import "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"

// Field names an indexed field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldMerchant    Field = "merchant"
	// FieldCatchAll holds the tokens of title, description and merchant and
	// is the target of unqualified query terms.
	FieldCatchAll Field = "catch_all"
)

// FieldPositionGap separates the source fields inside the catch-all field so
// that phrases never match across a field boundary.
const FieldPositionGap = 100

// Fields lists every indexed field in a fixed order.
var Fields = []Field{FieldTitle, FieldDescription, FieldMerchant, FieldCatchAll}

// SourceFields lists the product fields that feed the catch-all field, in
// concatenation order.
var SourceFields = []Field{FieldTitle, FieldDescription, FieldMerchant}

// FieldTokens holds the analysed token sequence of each field of a document.
type FieldTokens map[Field][]tokenizer.Token

func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// AnalyzerFor returns the analyzer applied to f at index and query time.
// Descriptions are analysed as English prose; every other field, including
// the catch-all, uses the standard analyzer.
func AnalyzerFor(f Field) tokenizer.Analyzer {
	if f == FieldDescription {
		return tokenizer.English{}
	}
	return tokenizer.Standard{}
}
