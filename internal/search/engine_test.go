package search

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// countingEmbedder counts calls and can be switched to fail.
type countingEmbedder struct {
	*embed.StaticEmbedder
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("provider down")
	}
	return c.StaticEmbedder.Embed(ctx, text)
}

type testEngine struct {
	engine   *Engine
	meta     *store.SQLiteStore
	pipeline *index.Pipeline
	embedder *countingEmbedder
}

func newTestEngine(t *testing.T, cfg EngineConfig) *testEngine {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.NewSQLiteStore(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	emb := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(256)}
	catalog, err := index.NewCatalog(meta, store.IndexOptions{Kind: store.IndexFlat, Dimensions: 256},
		filepath.Join(dir, "vectors.flat"))
	require.NoError(t, err)
	seg, err := chunk.NewSegmenter(chunk.DefaultOptions())
	require.NoError(t, err)

	engine, err := NewEngine(emb, catalog, meta, cfg)
	require.NoError(t, err)
	return &testEngine{
		engine:   engine,
		meta:     meta,
		pipeline: index.NewPipeline(seg, emb, meta, catalog),
		embedder: emb,
	}
}

func (te *testEngine) ingest(t *testing.T, name, text string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := te.meta.CreateDocument(ctx, &store.Document{Filename: name, Team: "support", Project: "helpdesk"})
	require.NoError(t, err)
	out, err := te.pipeline.Ingest(ctx, id, text)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, out.Status)
	return id
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_PrinterQueryRanksPrinterChunkFirst(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.ingest(t, "printer.txt", "the printer is offline")
	te.ingest(t, "router.txt", "reset the router")

	resp, err := te.engine.Search(context.Background(), "printer not working", Options{Limit: 5})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "the printer is offline", resp.Results[0].Chunk.Text)
	assert.Equal(t, "printer.txt", resp.Results[0].Chunk.Filename)
	assert.Equal(t, "support", resp.Results[0].Chunk.Team)
	assert.Equal(t, 1, resp.Results[0].Rank)
	if len(resp.Results) > 1 {
		assert.Equal(t, "reset the router", resp.Results[1].Chunk.Text)
		assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
	}
}

func TestEngine_EmptyIndexReturnsEmptyWithoutEmbedding(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())

	resp, err := te.engine.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.EqualValues(t, 0, te.embedder.calls.Load())
}

func TestEngine_DropsStaleReferencesKeepingOrder(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	te.ingest(t, "a.txt", "printer offline on floor two")
	gone := te.ingest(t, "b.txt", "printer jammed with paper")
	te.ingest(t, "c.txt", "printer toner is low")

	// Given: a document removed without reconciling the index
	require.NoError(t, te.meta.DeleteDocument(ctx, gone))

	// When: querying for all three
	resp, err := te.engine.Search(ctx, "printer", Options{Limit: 10})
	require.NoError(t, err)

	// Then: the stale hit is dropped and the rest keep descending order
	assert.Equal(t, 1, resp.Stale)
	require.Len(t, resp.Results, 2)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.NotEqual(t, "b.txt", r.Chunk.Filename)
	}
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestEngine_LimitDefaultsAndClamp(t *testing.T) {
	te := newTestEngine(t, EngineConfig{DefaultLimit: 2, MaxLimit: 3})
	for _, text := range []string{"printer one", "printer two", "printer three", "printer four", "printer five"} {
		te.ingest(t, text+".txt", text)
	}
	ctx := context.Background()

	resp, err := te.engine.Search(ctx, "printer", Options{})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = te.engine.Search(ctx, "printer", Options{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
}

func TestEngine_LogsQueries(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.ingest(t, "a.txt", "the printer is offline")
	ctx := context.Background()

	_, err := te.engine.Search(ctx, "printer", Options{})
	require.NoError(t, err)
	_, err = te.engine.Search(ctx, "router", Options{})
	require.NoError(t, err)

	st, err := te.meta.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Queries)
}

func TestEngine_QueryLoggingDisabled(t *testing.T) {
	te := newTestEngine(t, EngineConfig{LogQueries: false})
	_, err := te.engine.Search(context.Background(), "printer", Options{})
	require.NoError(t, err)

	st, err := te.meta.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Queries)
}

func TestEngine_RecordsMetrics(t *testing.T) {
	// Given: an engine with a metrics collector
	metrics := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	cfg := DefaultConfig()
	cfg.Metrics = metrics
	te := newTestEngine(t, cfg)
	te.ingest(t, "a.txt", "the printer is offline")
	ctx := context.Background()

	// When: running two identical queries
	_, err := te.engine.Search(ctx, "printer", Options{})
	require.NoError(t, err)
	_, err = te.engine.Search(ctx, "printer", Options{})
	require.NoError(t, err)

	// Then: both are aggregated
	snap := metrics.Snapshot(5)
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Zero(t, snap.ZeroResultCount)
}

func TestEngine_EmbeddingFailureIsError(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.ingest(t, "a.txt", "the printer is offline")
	te.embedder.fail.Store(true)

	_, err := te.engine.Search(context.Background(), "printer", Options{})
	assert.Error(t, err)
}

func TestEngine_UnembeddableQueryMatchesNothing(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.ingest(t, "a.txt", "the printer is offline")

	resp, err := te.engine.Search(context.Background(), "???", Options{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}
