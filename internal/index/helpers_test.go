package index

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/store"
)

const testDims = 64

// fakeEmbedder delegates to the static embedder and fails or stalls on
// chosen calls (1-based).
type fakeEmbedder struct {
	inner *embed.StaticEmbedder

	mu       sync.Mutex
	calls    int
	failOn   map[int]bool
	failText map[string]bool
	slowOn   map[int]time.Duration
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		inner:    embed.NewStaticEmbedder(testDims),
		failOn:   map[int]bool{},
		failText: map[string]bool{},
		slowOn:   map[int]time.Duration{},
	}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fail := f.failOn[call] || f.failText[text]
	delay := f.slowOn[call]
	f.mu.Unlock()

	if delay > 0 {
		// Ignores ctx, like a provider that never returns.
		time.Sleep(delay)
	}
	if fail {
		return nil, errors.New("provider unavailable")
	}
	return f.inner.Embed(ctx, text)
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) Dimensions() int   { return testDims }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

type testEnv struct {
	meta       *store.SQLiteStore
	catalog    *Catalog
	pipeline   *Pipeline
	maintainer *Maintainer
	embedder   *fakeEmbedder
	snapshot   string
}

// newTestEnv wires a pipeline whose segmenter hard-cuts every 20 characters
// with no overlap, so unbroken(20*n) yields exactly n segments.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, newFakeEmbedder(), store.IndexFlat)
}

func newTestEnvWith(t *testing.T, e embed.Embedder, kind string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.NewSQLiteStore(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	snapshot := filepath.Join(dir, "vectors."+kind)
	catalog, err := NewCatalog(meta, store.IndexOptions{Kind: kind, Dimensions: testDims}, snapshot)
	require.NoError(t, err)

	seg, err := chunk.NewSegmenter(chunk.Options{Size: 20, Overlap: 0})
	require.NoError(t, err)

	env := &testEnv{
		meta:       meta,
		catalog:    catalog,
		pipeline:   NewPipeline(seg, e, meta, catalog),
		maintainer: NewMaintainer(meta, catalog, e),
		snapshot:   snapshot,
	}
	if f, ok := e.(*fakeEmbedder); ok {
		env.embedder = f
	}
	return env
}

func (env *testEnv) newDocument(t *testing.T, name string) int64 {
	t.Helper()
	id, err := env.meta.CreateDocument(context.Background(), &store.Document{Filename: name, Team: "support"})
	require.NoError(t, err)
	return id
}

// ingest creates a document and ingests text into it.
func (env *testEnv) ingest(t *testing.T, name, text string) *Outcome {
	t.Helper()
	id := env.newDocument(t, name)
	out, err := env.pipeline.Ingest(context.Background(), id, text)
	require.NoError(t, err)
	return out
}

// unbroken returns n characters with no sentence, paragraph or word
// breaks, starting at letter offset.
func unbroken(n, offset int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[(i+offset)%len(alphabet)])
	}
	return b.String()
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func indexableChunks(t *testing.T, meta store.MetadataStore) []*store.Chunk {
	t.Helper()
	var out []*store.Chunk
	require.NoError(t, meta.ForEachIndexableChunk(context.Background(), 100, func(c *store.Chunk) error {
		out = append(out, c)
		return nil
	}))
	return out
}
