// Package service assembles the indexing engine behind one facade used by
// every adapter (CLI, MCP, HTTP, watcher).
//
// A Service owns the data directory while it is open. Ingestions and
// queries run concurrently; rebuild and reconcile wait for in-flight
// ingestions and block new ones until they finish, so no insert can land
// in an index that is about to be replaced. Queries never wait: they are
// served from the current index until a rebuilt one is swapped in.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/extract"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// Option configures Open.
type Option func(*options)

type options struct {
	embedder embed.Embedder
}

// WithEmbedder replaces the embedder built from configuration.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// Service is the docindex engine.
type Service struct {
	cfg        *config.Config
	lock       *index.DataLock
	meta       *store.SQLiteStore
	embedder   embed.Embedder
	catalog    *index.Catalog
	pipeline   *index.Pipeline
	maintainer *index.Maintainer
	engine     *search.Engine
	extractor  *extract.Extractor
	metrics    *telemetry.QueryMetrics

	// session is held shared by ingestions and exclusively by rebuild and
	// reconcile.
	session sync.RWMutex

	// busy holds documents with an ingestion in flight.
	busyMu sync.Mutex
	busy   map[int64]bool

	closeOnce sync.Once
	closeErr  error
}

// Open locks the data directory, opens the stores and brings the index to
// a state consistent with the metadata store: a corrupt or missing
// snapshot is rebuilt, otherwise the index is reconciled.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, dierrors.New(dierrors.ErrCodeConfigInvalid, err.Error(), err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := index.NewDataLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, lock: lock, busy: make(map[int64]bool)}
	if err := s.init(ctx, o); err != nil {
		_ = s.release()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context, o options) error {
	meta, err := store.NewSQLiteStore(s.cfg.DatabasePath())
	if err != nil {
		return err
	}
	s.meta = meta

	s.embedder = o.embedder
	if s.embedder == nil {
		if s.embedder, err = embed.NewFromConfig(s.cfg); err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	catalog, err := index.NewCatalog(meta, store.IndexOptions{
		Kind:       s.cfg.Index.Kind,
		Dimensions: s.embedder.Dimensions(),
		M:          s.cfg.Index.M,
		EfSearch:   s.cfg.Index.EfSearch,
	}, s.cfg.SnapshotPath())
	if err != nil {
		return err
	}
	s.catalog = catalog

	segmenter, err := chunk.NewSegmenter(chunk.Options{
		Size:    s.cfg.Chunking.Size,
		Overlap: s.cfg.Chunking.Overlap,
	})
	if err != nil {
		return dierrors.New(dierrors.ErrCodeConfigInvalid, err.Error(), err)
	}

	s.pipeline = index.NewPipeline(segmenter, s.embedder, meta, catalog)
	s.maintainer = index.NewMaintainer(meta, catalog, s.embedder)
	s.metrics = telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	s.engine, err = search.NewEngine(s.embedder, catalog, meta, search.EngineConfig{
		DefaultLimit: s.cfg.Search.DefaultLimit,
		MaxLimit:     s.cfg.Search.MaxLimit,
		LogQueries:   true,
		Metrics:      s.metrics,
	})
	if err != nil {
		return err
	}
	s.extractor = extract.New(s.cfg.Ingest.MaxFileSizeMB)

	return s.recover(ctx)
}

// recover runs at startup. Documents left in processing by a crash are
// failed, then the index is restored from its snapshot and reconciled, or
// rebuilt when the snapshot cannot be trusted.
func (s *Service) recover(ctx context.Context) error {
	if err := s.failInterrupted(ctx); err != nil {
		return err
	}

	err := s.catalog.Load(ctx)
	switch {
	case err == nil:
		_, err = s.maintainer.Reconcile(ctx)
		return err
	case errors.Is(err, dierrors.ErrIndexCorruption):
		slog.Warn("index_corruption_detected",
			slog.String("error", err.Error()),
			slog.String("snapshot", s.cfg.SnapshotPath()))
		_, err = s.maintainer.Rebuild(ctx, index.RebuildOptions{})
		return err
	default:
		return err
	}
}

func (s *Service) failInterrupted(ctx context.Context) error {
	docs, err := s.meta.ListDocuments(ctx, store.ListOptions{Status: store.StatusProcessing})
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.meta.TransitionStatus(ctx, d.ID, store.StatusError, 0, "ingestion interrupted"); err != nil {
			return err
		}
		slog.Warn("ingestion_interrupted", slog.Int64("document_id", d.ID))
	}
	return nil
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Close writes a final snapshot and releases the data directory. It is
// safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.session.Lock()
		defer s.session.Unlock()
		if err := s.catalog.Snapshot(); err != nil {
			slog.Warn("final_snapshot_failed", slog.String("error", err.Error()))
		}
		s.closeErr = s.release()
	})
	return s.closeErr
}

func (s *Service) release() error {
	var errs []error
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.meta != nil {
		errs = append(errs, s.meta.Close())
	}
	errs = append(errs, s.lock.Unlock())
	return errors.Join(errs...)
}
