// Package index keeps the vector index consistent with the metadata store:
// the Catalog couples index slots to chunk ids, the Pipeline ingests
// documents, and the Maintainer rebuilds and reconciles.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Match is a search hit resolved to a chunk id.
type Match struct {
	Position int
	ChunkID  int64
	Score    float32
}

// Catalog owns the live vector index and the in-memory mirror of the
// position table. Searches share the read lock; inserts and swaps take the
// write lock.
type Catalog struct {
	meta         store.MetadataStore
	opts         store.IndexOptions
	snapshotPath string

	mu        sync.RWMutex
	index     store.VectorIndex
	positions []int64

	// saveMu serializes snapshot writes, which share a temp file.
	saveMu sync.Mutex
}

// NewCatalog creates a catalog with an empty index. Call Load to restore
// persisted state.
func NewCatalog(meta store.MetadataStore, opts store.IndexOptions, snapshotPath string) (*Catalog, error) {
	idx, err := store.NewVectorIndex(opts)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		meta:         meta,
		opts:         opts,
		snapshotPath: snapshotPath,
		index:        idx,
	}, nil
}

// Load restores the snapshot and the position table. It returns an
// IndexCorruption error when they cannot be read, disagree in length or
// belong to different generations; the catalog is then left empty and
// must be rebuilt.
func (c *Catalog) Load(ctx context.Context) error {
	positions, err := c.meta.Positions(ctx)
	if err != nil {
		if errors.Is(err, dierrors.ErrIndexCorruption) {
			return err
		}
		return fmt.Errorf("loading position table: %w", err)
	}
	gen, err := c.meta.IndexGeneration(ctx)
	if err != nil {
		if errors.Is(err, dierrors.ErrIndexCorruption) {
			return err
		}
		return fmt.Errorf("loading index generation: %w", err)
	}

	idx, err := store.NewVectorIndex(c.opts)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(c.snapshotPath)
	switch {
	case os.IsNotExist(statErr):
		if len(positions) > 0 {
			return dierrors.IndexCorruption(fmt.Sprintf("snapshot missing but position table has %d entries", len(positions)))
		}
		idx.SetGeneration(gen)
	case statErr != nil:
		return dierrors.IndexCorruption(fmt.Sprintf("snapshot unreadable: %v", statErr))
	default:
		if err := idx.Load(c.snapshotPath); err != nil {
			return dierrors.New(dierrors.ErrCodeIndexCorruption, "snapshot could not be loaded", err)
		}
		if idx.Generation() != gen {
			return dierrors.IndexCorruption(fmt.Sprintf("snapshot generation %d, position table generation %d", idx.Generation(), gen)).
				WithDetail("snapshot", c.snapshotPath)
		}
	}

	if idx.Size() != len(positions) {
		return dierrors.IndexCorruption(fmt.Sprintf("index has %d entries, position table has %d", idx.Size(), len(positions))).
			WithDetail("snapshot", c.snapshotPath)
	}

	c.mu.Lock()
	c.index = idx
	c.positions = positions
	c.mu.Unlock()

	slog.Debug("index_loaded",
		slog.Int("entries", len(positions)),
		slog.String("kind", c.opts.Kind))
	return nil
}

// Insert appends vec to the index and chunkID to the position table as one
// unit. If the index rejects the vector the position row is removed again.
func (c *Catalog) Insert(ctx context.Context, chunkID int64, vec []float32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.index.Size()
	if pos != len(c.positions) {
		return 0, dierrors.IndexCorruption(fmt.Sprintf("index has %d entries, position table has %d", pos, len(c.positions)))
	}
	if err := c.meta.AppendPosition(ctx, pos, chunkID); err != nil {
		return 0, err
	}
	got, err := c.index.Insert(vec)
	if err != nil {
		c.rollbackPosition(ctx, pos)
		return 0, err
	}
	if got != pos {
		c.rollbackPosition(ctx, pos)
		return 0, dierrors.IndexCorruption(fmt.Sprintf("index assigned position %d, expected %d", got, pos))
	}
	c.positions = append(c.positions, chunkID)
	return pos, nil
}

// rollbackPosition removes the row AppendPosition wrote for pos.
func (c *Catalog) rollbackPosition(ctx context.Context, pos int) {
	if err := c.meta.TruncatePositions(context.WithoutCancel(ctx), pos); err != nil {
		slog.Error("position_rollback_failed",
			slog.Int("position", pos),
			slog.String("error", err.Error()))
	}
}

// Search runs a top-k query and resolves positions to chunk ids.
func (c *Catalog) Search(query []float32, k int) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, err := c.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(c.positions) {
			slog.Debug("position_out_of_range", slog.Int("position", h.Position))
			continue
		}
		matches = append(matches, Match{Position: h.Position, ChunkID: c.positions[h.Position], Score: h.Score})
	}
	return matches, nil
}

// Size returns the number of index entries.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Size()
}

// Dimension returns the vector dimension.
func (c *Catalog) Dimension() int {
	return c.opts.Dimensions
}

// Options returns the index options the catalog was created with.
func (c *Catalog) Options() store.IndexOptions {
	return c.opts
}

// Positions returns a copy of the position table.
func (c *Catalog) Positions() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, len(c.positions))
	copy(out, c.positions)
	return out
}

// Snapshot writes the index to disk.
func (c *Catalog) Snapshot() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.index.Save(c.snapshotPath); err != nil {
		return dierrors.New(dierrors.ErrCodeSnapshotFailed, "failed to write index snapshot", err).
			WithDetail("path", c.snapshotPath)
	}
	return nil
}

// Swap replaces the index and position table with a fully built pair and
// persists both. Readers see either the old pair or the new one.
//
// The position table is committed first under a new generation, which the
// snapshot then records. A crash between the two leaves a snapshot of an
// older generation, which Load rejects.
func (c *Catalog) Swap(ctx context.Context, idx store.VectorIndex, chunkIDs []int64) error {
	if idx.Size() != len(chunkIDs) {
		return dierrors.IndexCorruption(fmt.Sprintf("rebuilt index has %d entries for %d chunk ids", idx.Size(), len(chunkIDs)))
	}

	c.mu.Lock()
	gen, err := c.meta.ReplacePositions(ctx, chunkIDs)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	idx.SetGeneration(gen)
	c.index = idx
	c.positions = append([]int64(nil), chunkIDs...)
	c.mu.Unlock()

	return c.Snapshot()
}
