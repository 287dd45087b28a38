// Package search answers natural-language queries: the query is embedded,
// matched against the vector index and hydrated from the metadata store.
package search

import (
	"errors"
	"time"

	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("required dependency is nil")

// Options configures a query.
type Options struct {
	// Limit is the maximum number of results. Zero selects the default;
	// values above the maximum are clamped.
	Limit int
}

// Result is one ranked chunk.
type Result struct {
	// Rank is 1-based and follows the index's score ordering.
	Rank     int
	Score    float32
	Position int
	Chunk    *store.ChunkRecord
}

// Response is the outcome of a query.
type Response struct {
	Query   string
	Results []*Result
	// Stale counts index hits dropped because their chunk no longer
	// resolves.
	Stale   int
	Latency time.Duration
}

// EngineConfig contains configuration for the Engine.
type EngineConfig struct {
	DefaultLimit int
	MaxLimit     int
	// LogQueries records every query in the metadata store.
	LogQueries bool
	// Metrics, if set, aggregates every answered query.
	Metrics *telemetry.QueryMetrics
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit: 5,
		MaxLimit:     100,
		LogQueries:   true,
	}
}
