package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

// InconsistencyType categorizes a divergence between the position table and
// the metadata store.
type InconsistencyType int

const (
	// InconsistencyStale is a position whose chunk is gone or no longer
	// under a completed document.
	InconsistencyStale InconsistencyType = iota
	// InconsistencyMissing is an indexable chunk with no position.
	InconsistencyMissing
	// InconsistencyDuplicate is a chunk referenced by more than one position.
	InconsistencyDuplicate
	// InconsistencyCount is an index whose size differs from the position
	// table length.
	InconsistencyCount
)

// String returns a human-readable name.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyStale:
		return "stale_position"
	case InconsistencyMissing:
		return "missing_position"
	case InconsistencyDuplicate:
		return "duplicate_position"
	case InconsistencyCount:
		return "count_mismatch"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected divergence.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID int64
	Details string
}

// CheckResult is the outcome of comparing the catalog with the store.
type CheckResult struct {
	// Checked is the number of indexable chunks in the store.
	Checked         int
	Entries         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no inconsistency was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns how many inconsistencies of type t were found.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, inc := range r.Inconsistencies {
		if inc.Type == t {
			n++
		}
	}
	return n
}

// RebuildOptions controls a full rebuild.
type RebuildOptions struct {
	// Reembed ignores stored vectors and embeds every chunk again.
	Reembed bool
	// PageSize is how many chunks are read from the store at a time.
	PageSize int
	// Progress, if set, is called after each chunk with the running count.
	Progress func(done int)
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	Entries    int
	Reused     int
	Reembedded int
	// Skipped chunks had no usable vector and could not be embedded. They
	// stay in the store without an index entry.
	Skipped  int
	Duration time.Duration
}

// ReconcileResult summarizes a reconciliation.
type ReconcileResult struct {
	// OrphanChunks is the number of chunk rows removed because their
	// document no longer exists.
	OrphanChunks int
	Check        *CheckResult
	Rebuilt      bool
	Rebuild      *RebuildResult
	Duration     time.Duration
}

// Maintainer rebuilds the catalog from the metadata store and detects
// divergence between the two.
type Maintainer struct {
	meta     store.MetadataStore
	catalog  *Catalog
	embedder embed.Embedder
}

// NewMaintainer creates a Maintainer.
func NewMaintainer(meta store.MetadataStore, catalog *Catalog, embedder embed.Embedder) *Maintainer {
	return &Maintainer{meta: meta, catalog: catalog, embedder: embedder}
}

// Check compares the position table with the chunk ids under completed
// documents.
func (m *Maintainer) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	indexable, err := m.meta.IndexableChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	positions := m.catalog.Positions()
	entries := m.catalog.Size()

	var issues []Inconsistency
	if entries != len(positions) {
		issues = append(issues, Inconsistency{
			Type:    InconsistencyCount,
			Details: fmt.Sprintf("index has %d entries, position table has %d", entries, len(positions)),
		})
	}

	live := make(map[int64]bool, len(indexable))
	for _, id := range indexable {
		live[id] = true
	}
	referenced := make(map[int64]bool, len(positions))
	for pos, id := range positions {
		if referenced[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyDuplicate,
				ChunkID: id,
				Details: fmt.Sprintf("position %d repeats chunk", pos),
			})
			continue
		}
		referenced[id] = true
		if !live[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyStale,
				ChunkID: id,
				Details: fmt.Sprintf("position %d references a chunk that is not indexable", pos),
			})
		}
	}
	for _, id := range indexable {
		if !referenced[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissing,
				ChunkID: id,
				Details: "indexable chunk has no index entry",
			})
		}
	}

	return &CheckResult{
		Checked:         len(indexable),
		Entries:         entries,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Reconcile removes orphan chunk rows, checks the catalog against the store
// and rebuilds when they differ. The index cannot delete entries, so any
// divergence is repaired by a full rebuild.
func (m *Maintainer) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	start := time.Now()
	res := &ReconcileResult{}

	orphans, err := m.meta.DeleteOrphanChunks(ctx)
	if err != nil {
		return nil, err
	}
	res.OrphanChunks = orphans

	check, err := m.Check(ctx)
	if err != nil {
		return nil, err
	}
	res.Check = check

	if !check.Consistent() {
		slog.Warn("index_inconsistent",
			slog.Int("stale", check.Count(InconsistencyStale)),
			slog.Int("missing", check.Count(InconsistencyMissing)),
			slog.Int("duplicate", check.Count(InconsistencyDuplicate)),
			slog.Int("count_mismatch", check.Count(InconsistencyCount)))
		rebuild, err := m.Rebuild(ctx, RebuildOptions{})
		if err != nil {
			return nil, err
		}
		res.Rebuilt = true
		res.Rebuild = rebuild
	}

	res.Duration = time.Since(start)
	slog.Info("index_reconciled",
		slog.Int("checked", check.Checked),
		slog.Int("orphan_chunks", orphans),
		slog.Bool("rebuilt", res.Rebuilt),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// Rebuild discards the catalog and rebuilds it from every chunk of every
// completed document, in (document_id, chunk_index) order. Stored vectors
// of the right dimension are reused unless opts.Reembed is set; other
// chunks are embedded again and their stored vector is updated. The new
// index replaces the old one only once it is complete.
func (m *Maintainer) Rebuild(ctx context.Context, opts RebuildOptions) (*RebuildResult, error) {
	start := time.Now()
	catalogOpts := m.catalog.Options()
	idx, err := store.NewVectorIndex(catalogOpts)
	if err != nil {
		return nil, err
	}

	res := &RebuildResult{}
	var ids []int64
	done := 0
	err = m.meta.ForEachIndexableChunk(ctx, opts.PageSize, func(c *store.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, reembedded, err := m.vectorFor(ctx, c, catalogOpts.Dimensions, opts.Reembed)
		done++
		if err != nil {
			res.Skipped++
			slog.Warn("rebuild_chunk_skipped",
				slog.Int64("chunk_id", c.ID),
				slog.String("error", err.Error()))
			m.progress(opts, done)
			return nil
		}
		if _, err := idx.Insert(vec); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
		if reembedded {
			res.Reembedded++
		} else {
			res.Reused++
		}
		m.progress(opts, done)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild aborted: %w", err)
	}

	if err := m.catalog.Swap(ctx, idx, ids); err != nil {
		return nil, err
	}

	res.Entries = len(ids)
	res.Duration = time.Since(start)
	slog.Info("index_rebuilt",
		slog.Int("entries", res.Entries),
		slog.Int("reused", res.Reused),
		slog.Int("reembedded", res.Reembedded),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (m *Maintainer) progress(opts RebuildOptions, done int) {
	if opts.Progress != nil {
		opts.Progress(done)
	}
}

// vectorFor returns a unit vector for c, reporting whether it had to be
// embedded again.
func (m *Maintainer) vectorFor(ctx context.Context, c *store.Chunk, dim int, reembed bool) ([]float32, bool, error) {
	if !reembed && len(c.Embedding) == dim {
		if vec, err := store.Normalize(c.Embedding); err == nil {
			return vec, false, nil
		}
	}

	raw, err := m.embedder.Embed(ctx, c.Text)
	if err != nil {
		return nil, false, err
	}
	if len(raw) != dim {
		return nil, false, dierrors.EmbeddingFailure(
			fmt.Sprintf("embedding has dimension %d, index expects %d", len(raw), dim), nil)
	}
	vec, err := store.Normalize(raw)
	if err != nil {
		return nil, false, dierrors.EmbeddingFailure("embedding cannot be normalized", err)
	}
	if err := m.meta.UpdateChunkEmbedding(ctx, c.ID, vec); err != nil {
		// The vector is still usable for this rebuild.
		slog.Warn("chunk_embedding_not_saved",
			slog.Int64("chunk_id", c.ID),
			slog.String("error", err.Error()))
	}
	return vec, true, nil
}
