package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardAnalyze(t *testing.T) {
	tokens := Standard{}.Analyze("Red Running-Shoe, size 10!")
	assert.Equal(t, []string{"red", "running", "shoe", "size", "10"}, Terms(tokens))
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
}

func TestStandardNormalizesCompatibilityForms(t *testing.T) {
	assert.Equal(t, []string{"abc", "fine"}, Terms(Standard{}.Analyze("ＡＢＣ ﬁne")))
}

func TestStandardEmpty(t *testing.T) {
	assert.Empty(t, Standard{}.Analyze(""))
	assert.Empty(t, Standard{}.Analyze("  -- !! "))
}

func TestEnglishStemsAndDropsStopWords(t *testing.T) {
	tokens := English{}.Analyze("The running shoes and boots")
	assert.Equal(t, []string{"run", "shoe", "boot"}, Terms(tokens))
	// positions keep the gaps left by removed stop-words
	assert.Equal(t, []int{1, 2, 4}, []int{tokens[0].Position, tokens[1].Position, tokens[2].Position})
}

func TestEnglishStripsPossessive(t *testing.T) {
	assert.Equal(t, []string{"merchant", "shoe"}, Terms(English{}.Analyze("Merchant's shoes")))
}

func TestAnalyzerNames(t *testing.T) {
	var a Analyzer = Standard{}
	assert.Equal(t, "standard", a.Name())
	a = English{}
	assert.Equal(t, "english", a.Name())
}
