package tokenizer

import (
	"strings"
	"testing"
)

var benchTexts = map[string]string{
	"title":       "Men's Waterproof Hiking Boots, Leather Upper",
	"description": "Lightweight trail runner with a breathable mesh upper, cushioned midsole and a grippy rubber outsole for wet rocks and mud.",
	"long": strings.Repeat(`Wireless over-ear headphones with active noise cancelling,
		30-hour battery life and fast USB-C charging. Foldable design ships with
		a hard case; works with phones, laptops and tablets. `, 20),
}

func BenchmarkAnalyze(b *testing.B) {
	for _, a := range []Analyzer{Standard{}, English{}} {
		for name, text := range benchTexts {
			b.Run(a.Name()+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = a.Analyze(text)
				}
			})
		}
	}
}

func BenchmarkNormalize(b *testing.B) {
	text := benchTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
