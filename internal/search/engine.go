package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// Engine is the retrieval engine.
type Engine struct {
	embedder embed.Embedder
	catalog  *index.Catalog
	metadata store.MetadataStore
	config   EngineConfig
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder embed.Embedder, catalog *index.Catalog, metadata store.MetadataStore, config EngineConfig) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = DefaultConfig().MaxLimit
	}
	return &Engine{
		embedder: embedder,
		catalog:  catalog,
		metadata: metadata,
		config:   config,
	}, nil
}

// Search runs a query. An empty index or a query with no matches yields an
// empty response, not an error. Hits whose chunk no longer resolves are
// dropped; the remaining results keep the index's order.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	opts = e.applyDefaults(opts)
	resp := &Response{Query: query, Results: []*Result{}}

	if e.catalog.Size() == 0 {
		resp.Latency = time.Since(start)
		e.logQuery(ctx, resp)
		return resp, nil
	}

	raw, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(raw) != e.catalog.Dimension() {
		return nil, dierrors.New(dierrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query embedding has dimension %d, index expects %d", len(raw), e.catalog.Dimension()), nil)
	}
	vec, err := store.Normalize(raw)
	if err != nil {
		// A query with no embeddable content matches nothing.
		slog.Debug("query_not_embeddable", slog.String("query", query))
		resp.Latency = time.Since(start)
		e.logQuery(ctx, resp)
		return resp, nil
	}

	matches, err := e.catalog.Search(vec, opts.Limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	records, err := e.metadata.HydrateChunks(ctx, ids)
	if err != nil {
		return nil, dierrors.StorageFailure("hydrating results", err)
	}

	for _, m := range matches {
		rec, ok := records[m.ChunkID]
		if !ok {
			resp.Stale++
			slog.Debug("stale_reference_dropped",
				slog.Int("position", m.Position),
				slog.Int64("chunk_id", m.ChunkID))
			continue
		}
		resp.Results = append(resp.Results, &Result{
			Rank:     len(resp.Results) + 1,
			Score:    m.Score,
			Position: m.Position,
			Chunk:    rec,
		})
	}

	resp.Latency = time.Since(start)
	e.logQuery(ctx, resp)
	slog.Debug("query_complete",
		slog.Int("results", len(resp.Results)),
		slog.Int("stale", resp.Stale),
		slog.Duration("latency", resp.Latency))
	return resp, nil
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts
}

// logQuery records the query. Failures are logged and never fail the query.
func (e *Engine) logQuery(ctx context.Context, resp *Response) {
	if e.config.Metrics != nil {
		ev := telemetry.QueryEvent{
			Query:       resp.Query,
			ResultCount: len(resp.Results),
			Latency:     resp.Latency,
		}
		if len(resp.Results) > 0 {
			ev.TopScore = resp.Results[0].Score
		}
		e.config.Metrics.Record(ev)
	}
	if !e.config.LogQueries {
		return
	}
	entry := store.QueryLog{
		Text:        resp.Query,
		ResultCount: len(resp.Results),
		Latency:     resp.Latency,
	}
	if len(resp.Results) > 0 {
		entry.TopScore = resp.Results[0].Score
	}
	if err := e.metadata.LogQuery(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("query_log_failed", slog.String("error", err.Error()))
	}
}
