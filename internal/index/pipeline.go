package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Outcome reports how an ingestion ended. Status is always completed or
// error once Ingest returns without an error.
type Outcome struct {
	DocumentID int64
	Status     store.Status
	// Segments is how many segments the text produced.
	Segments int
	// ChunkCount is how many chunks were stored and indexed.
	ChunkCount int
	// EmbeddingFailures counts segments skipped because the embedding
	// failed or timed out.
	EmbeddingFailures int
	// StorageFailures counts segments skipped because a chunk row or its
	// index entry could not be written.
	StorageFailures int
	// Replaced is the number of chunks deleted from a previous ingestion.
	Replaced int
	// NeedsReconcile is set when the index may hold entries that no longer
	// match the store: chunks were replaced, or a metadata-only chunk was
	// left behind.
	NeedsReconcile bool
	// Err is the reason for an error status.
	Err      error
	Duration time.Duration
}

// Pipeline turns document text into stored chunks and index entries.
type Pipeline struct {
	segmenter *chunk.Segmenter
	embedder  embed.Embedder
	meta      store.MetadataStore
	catalog   *Catalog
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(segmenter *chunk.Segmenter, embedder embed.Embedder, meta store.MetadataStore, catalog *Catalog) *Pipeline {
	return &Pipeline{
		segmenter: segmenter,
		embedder:  embedder,
		meta:      meta,
		catalog:   catalog,
	}
}

// Ingest indexes text as the content of an existing document. Chunk-level
// faults are absorbed: a failed embedding or write skips that segment. The
// returned error is non-nil only when the document itself cannot be read
// or moved through its status transitions.
func (p *Pipeline) Ingest(ctx context.Context, documentID int64, text string) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{DocumentID: documentID}

	doc, err := p.meta.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// A fresh ingestion restarts at pending and drops earlier chunks.
	if doc.Status != store.StatusPending {
		if err := p.meta.TransitionStatus(ctx, documentID, store.StatusPending, 0, ""); err != nil {
			return nil, err
		}
	}
	replaced, err := p.meta.DeleteChunks(ctx, documentID)
	if err != nil {
		return nil, dierrors.StorageFailure("failed to clear previous chunks", err)
	}
	out.Replaced = replaced
	out.NeedsReconcile = replaced > 0

	if err := p.meta.TransitionStatus(ctx, documentID, store.StatusProcessing, 0, ""); err != nil {
		return nil, err
	}

	log := slog.With(slog.Int64("document_id", documentID))

	segments := p.segmenter.Split(text)
	out.Segments = len(segments)
	if len(segments) == 0 {
		return p.finish(ctx, out, start, dierrors.SegmentationEmpty(documentID))
	}

	for _, seg := range segments {
		if ctx.Err() != nil {
			out.EmbeddingFailures += len(segments) - seg.Index
			log.Warn("ingestion_cancelled",
				slog.Int("remaining", len(segments)-seg.Index),
				slog.String("error", ctx.Err().Error()))
			break
		}
		p.ingestSegment(ctx, log, out, seg)
	}

	if out.ChunkCount == 0 {
		cause := dierrors.EmbeddingFailure(
			fmt.Sprintf("none of %d segments could be indexed", len(segments)), nil)
		return p.finish(ctx, out, start, cause)
	}

	if err := p.catalog.Snapshot(); err != nil {
		// The next startup sees a snapshot shorter than the position table
		// and rebuilds.
		log.Warn("snapshot_failed", slog.String("error", err.Error()))
	}
	return p.finish(ctx, out, start, nil)
}

// ingestSegment embeds, stores and indexes one segment. The chunk ordinal
// is the number of chunks stored so far, keeping ordinals contiguous when
// segments are skipped.
func (p *Pipeline) ingestSegment(ctx context.Context, log *slog.Logger, out *Outcome, seg chunk.Segment) {
	vec, err := p.embed(ctx, seg.Text)
	if err != nil {
		out.EmbeddingFailures++
		log.Warn("chunk_embedding_failed",
			slog.Int("segment", seg.Index),
			slog.String("code", dierrors.GetCode(err)),
			slog.String("error", err.Error()))
		return
	}

	c := &store.Chunk{
		DocumentID: out.DocumentID,
		Index:      out.ChunkCount,
		Text:       seg.Text,
		Page:       seg.Page,
		Embedding:  vec,
	}
	chunkID, err := p.meta.InsertChunk(ctx, c)
	if err != nil {
		out.StorageFailures++
		log.Warn("chunk_write_failed",
			slog.Int("segment", seg.Index),
			slog.String("error", dierrors.StorageFailure("chunk row not written", err).Error()))
		return
	}

	if _, err := p.catalog.Insert(ctx, chunkID, vec); err != nil {
		log.Warn("chunk_index_failed",
			slog.Int64("chunk_id", chunkID),
			slog.String("error", err.Error()))
		if derr := p.meta.DeleteChunk(context.WithoutCancel(ctx), chunkID); derr != nil {
			// The row stays behind without an index entry. It counts toward
			// the document and reconciliation indexes it.
			log.Error("chunk_metadata_only",
				slog.Int64("chunk_id", chunkID),
				slog.String("error", derr.Error()))
			out.ChunkCount++
			out.NeedsReconcile = true
			return
		}
		out.StorageFailures++
		return
	}
	out.ChunkCount++
}

// embed requests a vector and checks that it can be indexed.
func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		if dierrors.IsEmbeddingFailure(err) {
			return nil, err
		}
		return nil, dierrors.EmbeddingFailure("embedding request failed", err)
	}
	if len(vec) != p.catalog.Dimension() {
		return nil, dierrors.EmbeddingFailure(
			fmt.Sprintf("embedding has dimension %d, index expects %d", len(vec), p.catalog.Dimension()), nil)
	}
	unit, err := store.Normalize(vec)
	if err != nil {
		return nil, dierrors.EmbeddingFailure("embedding cannot be normalized", err)
	}
	return unit, nil
}

// finish records the terminal status. Status writes ignore cancellation so
// that a document is never left in processing by a cancelled caller.
func (p *Pipeline) finish(ctx context.Context, out *Outcome, start time.Time, cause error) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	out.Duration = time.Since(start)

	if cause != nil {
		out.Status = store.StatusError
		out.Err = cause
		if err := p.meta.TransitionStatus(ctx, out.DocumentID, store.StatusError, out.ChunkCount, cause.Error()); err != nil {
			return out, err
		}
		slog.Warn("document_failed",
			slog.Int64("document_id", out.DocumentID),
			slog.Int("segments", out.Segments),
			slog.String("error", cause.Error()))
		return out, nil
	}

	out.Status = store.StatusCompleted
	if err := p.meta.TransitionStatus(ctx, out.DocumentID, store.StatusCompleted, out.ChunkCount, ""); err != nil {
		return out, err
	}
	slog.Info("document_indexed",
		slog.Int64("document_id", out.DocumentID),
		slog.Int("segments", out.Segments),
		slog.Int("chunks", out.ChunkCount),
		slog.Int("embedding_failures", out.EmbeddingFailures),
		slog.Int("storage_failures", out.StorageFailures),
		slog.Duration("duration", out.Duration))
	return out, nil
}
