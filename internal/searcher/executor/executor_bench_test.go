package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
)

var (
	benchAdjectives = []string{"red", "blue", "waterproof", "wireless", "leather", "lightweight", "organic", "vintage"}
	benchNouns      = []string{"shoe", "boot", "jacket", "headphones", "backpack", "watch", "lamp", "kettle"}
	benchMerchants  = []string{"Acme", "TrailCo", "Northwind", "Globex"}
)

func benchProducts(n int) []catalog.Product {
	products := make([]catalog.Product, n)
	for i := range products {
		adj := benchAdjectives[i%len(benchAdjectives)]
		noun := benchNouns[(i/len(benchAdjectives))%len(benchNouns)]
		products[i] = catalog.Product{
			Title:       fmt.Sprintf("%s %s %d", adj, noun, i),
			Description: fmt.Sprintf("a %s %s for everyday use, model %d", adj, noun, i%97),
			Merchant:    benchMerchants[i%len(benchMerchants)],
		}
	}
	return products
}

func newBenchExecutor(b *testing.B, docs int) *Executor {
	b.Helper()
	cfg := config.Default()
	store := segment.NewStore()
	engine := indexer.NewEngine(cfg.Indexer, cfg.Suggest, store, nil)
	if _, err := engine.Rebuild(context.Background(), benchProducts(docs)); err != nil {
		b.Fatal(err)
	}
	return New(store, cfg.Search)
}

func BenchmarkRebuild(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			cfg := config.Default()
			products := benchProducts(n)
			engine := indexer.NewEngine(cfg.Indexer, cfg.Suggest, segment.NewStore(), nil)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Rebuild(context.Background(), products); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	exec := newBenchExecutor(b, 10000)
	queries := []struct {
		name  string
		query string
	}{
		{"single", "boot"},
		{"and", "waterproof AND boot"},
		{"or", "jacket OR backpack OR lamp"},
		{"not", "shoe NOT red"},
		{"phrase", `"wireless headphones"`},
		{"field", "merchant:acme AND title:kettle"},
		{"miss", "bootz"},
	}
	ctx := context.Background()
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Search(ctx, q.query, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	exec := newBenchExecutor(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Search(ctx, "waterproof boot", 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
