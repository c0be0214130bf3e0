package parser

import "testing"

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "running shoe"},
		{"boolean", "red AND shoe OR boot NOT leather"},
		{"phrase", `"hiking boot" waterproof`},
		{"fields", `title:(jacket OR coat) merchant:"north face"`},
		{"nested", "((a OR b) AND (c OR (d AND NOT e)))"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Parse(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
