package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

func TestPipeline_IngestsAllSegments(t *testing.T) {
	env := newTestEnv(t)

	out := env.ingest(t, "doc.txt", unbroken(60, 0))

	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Segments)
	assert.Equal(t, 3, out.ChunkCount)
	assert.Equal(t, 3, env.catalog.Size())
	assert.False(t, out.NeedsReconcile)

	doc, err := env.meta.GetDocument(context.Background(), out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
}

func TestPipeline_SecondEmbeddingFailsChunkSkipped(t *testing.T) {
	env := newTestEnv(t)
	// Given: the 2nd embedding call fails
	env.embedder.failOn[2] = true
	text := unbroken(60, 0)

	// When: a three-segment document is ingested
	out := env.ingest(t, "doc.txt", text)

	// Then: the document completes with the two surviving chunks
	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.ChunkCount)
	assert.Equal(t, 1, out.EmbeddingFailures)
	assert.Equal(t, 2, env.catalog.Size())

	doc, err := env.meta.GetDocument(context.Background(), out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)

	// And: ordinals stay contiguous and skip the failed segment's text
	chunks := indexableChunks(t, env.meta)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, text[0:20], chunks[0].Text)
	assert.Equal(t, text[40:60], chunks[1].Text)
}

func TestPipeline_EmptyTextIsSegmentationError(t *testing.T) {
	env := newTestEnv(t)

	out := env.ingest(t, "blank.txt", "  \n\t ")

	assert.Equal(t, store.StatusError, out.Status)
	assert.ErrorIs(t, out.Err, dierrors.ErrSegmentationEmpty)
	assert.Equal(t, 0, out.ChunkCount)
	assert.Equal(t, 0, env.catalog.Size())
	assert.Equal(t, 0, env.embedder.Calls())

	doc, err := env.meta.GetDocument(context.Background(), out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, doc.Status)
	assert.NotEmpty(t, doc.ErrorMessage)
}

func TestPipeline_AllEmbeddingsFailIsError(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.failOn[1] = true
	env.embedder.failOn[2] = true

	out := env.ingest(t, "doc.txt", unbroken(40, 0))

	assert.Equal(t, store.StatusError, out.Status)
	assert.True(t, dierrors.IsEmbeddingFailure(out.Err))
	assert.Equal(t, 2, out.EmbeddingFailures)
	assert.Equal(t, 0, env.catalog.Size())
}

func TestPipeline_TimeoutSkipsChunk(t *testing.T) {
	// Given: a guarded embedder whose first call stalls past the timeout
	fake := newFakeEmbedder()
	fake.slowOn[1] = 300 * time.Millisecond
	guarded := embed.NewGuard(fake, embed.GuardConfig{
		Timeout: 30 * time.Millisecond,
		Retry:   dierrors.RetryConfig{MaxRetries: 0},
	})
	env := newTestEnvWith(t, guarded, store.IndexFlat)

	// When: ingesting three segments
	out := env.ingest(t, "doc.txt", unbroken(60, 0))

	// Then: the timed-out segment is skipped like any embedding failure
	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.ChunkCount)
	assert.Equal(t, 1, out.EmbeddingFailures)
	assert.Equal(t, 2, env.catalog.Size())
}

func TestPipeline_StoredAndIndexedVectorsAreUnitLength(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "a.txt", unbroken(60, 0))
	env.ingest(t, "b.txt", "the printer is offline. reset the router.")

	for _, c := range indexableChunks(t, env.meta) {
		assert.InDelta(t, 1.0, norm(c.Embedding), 1e-5, "chunk %d", c.ID)
	}

	flat := env.catalog.index.(*store.FlatIndex)
	for pos := 0; pos < flat.Size(); pos++ {
		v, ok := flat.Vector(pos)
		require.True(t, ok)
		assert.InDelta(t, 1.0, norm(v), 1e-5, "position %d", pos)
	}
}

func TestPipeline_ZeroVectorIsEmbeddingFailure(t *testing.T) {
	env := newTestEnv(t)

	// Punctuation-only text embeds to a zero vector, which has no direction
	out := env.ingest(t, "dots.txt", "....")

	assert.Equal(t, store.StatusError, out.Status)
	assert.Equal(t, 1, out.EmbeddingFailures)
	assert.Equal(t, 0, env.catalog.Size())
}

func TestPipeline_PositionTableTracksIndex(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "a.txt", unbroken(60, 0))
	env.ingest(t, "b.txt", unbroken(40, 1))

	positions, err := env.meta.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.catalog.Positions(), positions)
	assert.Len(t, positions, env.catalog.Size())

	ids, err := env.meta.IndexableChunkIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids, positions, "appended in ingestion order")
}

func TestPipeline_SnapshotWrittenAfterDocument(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "a.txt", unbroken(60, 0))

	restored, err := NewCatalog(env.meta, env.catalog.Options(), env.snapshot)
	require.NoError(t, err)
	require.NoError(t, restored.Load(context.Background()))
	assert.Equal(t, 3, restored.Size())
}

func TestPipeline_ReingestionReplacesChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.ingest(t, "doc.txt", unbroken(60, 0))

	// When: the same document is ingested again with new content
	out, err := env.pipeline.Ingest(ctx, first.DocumentID, unbroken(40, 5))
	require.NoError(t, err)

	// Then: old chunks are replaced and the stale entries flagged
	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Replaced)
	assert.Equal(t, 2, out.ChunkCount)
	assert.True(t, out.NeedsReconcile)
	assert.Equal(t, 5, env.catalog.Size())

	// And: reconciliation drops the stale entries
	res, err := env.maintainer.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 3, res.Check.Count(InconsistencyStale))
	assert.Equal(t, 2, env.catalog.Size())
}

func TestPipeline_UnknownDocument(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pipeline.Ingest(context.Background(), 404, "text")
	assert.ErrorIs(t, err, dierrors.ErrDocumentNotFound)
}

func TestPipeline_CancelledContextStillFinishes(t *testing.T) {
	env := newTestEnv(t)
	id := env.newDocument(t, "doc.txt")

	// Cancel as soon as the first embedding is requested
	ctx, cancel := context.WithCancel(context.Background())
	env.embedder.slowOn[1] = 50 * time.Millisecond
	go func() {
		for env.embedder.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	out, err := env.pipeline.Ingest(ctx, id, unbroken(200, 0))
	require.NoError(t, err)
	assert.Contains(t, []store.Status{store.StatusCompleted, store.StatusError}, out.Status)
	assert.Less(t, out.ChunkCount, 10)

	doc, err := env.meta.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, out.Status, doc.Status, "never left in processing")
}

func TestPipeline_ConcurrentDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const docs = 6
	ids := make([]int64, docs)
	for i := range ids {
		ids[i] = env.newDocument(t, "doc")
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			out, err := env.pipeline.Ingest(ctx, id, unbroken(60, i))
			if assert.NoError(t, err) {
				assert.Equal(t, store.StatusCompleted, out.Status)
			}
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, docs*3, env.catalog.Size())
	check, err := env.maintainer.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.Consistent(), "%v", check.Inconsistencies)
}
