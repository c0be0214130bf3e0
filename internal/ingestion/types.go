// Package ingestion turns product records into analysed documents and
// defines the request, response and Kafka event schemas of the indexing
// pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
)

// Document is a product with the token sequence of every indexed field.
type Document struct {
	Product catalog.Product
	Fields  index.FieldTokens
}

// IndexRequest asks for a rebuild from the product file at FileURL. It is the
// payload of the index-requests Kafka topic.
type IndexRequest struct {
	FileURL   string    `json:"file_url"`
	RequestID string    `json:"request_id,omitempty"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

// IndexResponse is returned after a successful rebuild.
type IndexResponse struct {
	Source       string `json:"source"`
	BuildID      string `json:"build_id"`
	GenerationID uint64 `json:"generation_id"`
	Indexed      int    `json:"indexed"`
	Skipped      int    `json:"skipped"`
	Terms        int    `json:"terms"`
	DurationMs   int64  `json:"duration_ms"`
}

// IndexCompleteEvent is published to Kafka after a generation goes live.
type IndexCompleteEvent struct {
	BuildID      string    `json:"build_id"`
	GenerationID uint64    `json:"generation_id"`
	Source       string    `json:"source"`
	Indexed      int       `json:"indexed"`
	Skipped      int       `json:"skipped"`
	PublishedAt  time.Time `json:"published_at"`
}
