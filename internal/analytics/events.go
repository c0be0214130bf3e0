// Package analytics collects search and index-build events, forwards them to
// Kafka and keeps in-process aggregates for the analytics endpoint.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventIndexBuild EventType = "index_build"
)

type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Limit        int       `json:"limit"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	Suggestion   string    `json:"suggestion,omitempty"`
	GenerationID uint64    `json:"generation_id"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type         EventType `json:"type"`
	BuildID      string    `json:"build_id"`
	GenerationID uint64    `json:"generation_id,omitempty"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	Indexed      int       `json:"indexed"`
	Skipped      int       `json:"skipped"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Tracker accepts events for asynchronous delivery. Track never blocks.
type Tracker interface {
	Track(event any)
}

// Discard is a Tracker that drops every event.
var Discard Tracker = discard{}

type discard struct{}

func (discard) Track(any) {}
