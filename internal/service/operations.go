package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/extract"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// DocumentMeta is the descriptive metadata supplied with an upload.
type DocumentMeta struct {
	Team        string
	Project     string
	UploadedBy  string
	Description string
}

// FileResult is the outcome of one file in IngestFiles.
type FileResult struct {
	Path    string
	Outcome *index.Outcome
	Err     error
}

// Stats is the index summary exposed to callers.
type Stats struct {
	// EntryCount is the number of vector index entries.
	EntryCount int `json:"entry_count"`
	// ChunkCount is the number of chunks under completed documents.
	ChunkCount int `json:"chunk_count"`
	Dimension  int `json:"dimension"`
}

// DetailedStats extends Stats with metadata store counts.
type DetailedStats struct {
	Stats
	IndexKind   string         `json:"index_kind"`
	Model       string         `json:"model"`
	Documents   int            `json:"documents"`
	ByStatus    map[string]int `json:"by_status"`
	ByTeam      map[string]int `json:"by_team"`
	TotalChunks int            `json:"total_chunks"`
	Queries     int            `json:"queries"`

	// QueryMetrics covers queries answered since the service opened.
	QueryMetrics *telemetry.Snapshot `json:"query_metrics,omitempty"`
}

func (s *Service) claim(id int64) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[id] {
		return false
	}
	s.busy[id] = true
	return true
}

func (s *Service) unclaim(id int64) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, id)
}

// CreateDocument registers a document in pending state and returns its id.
func (s *Service) CreateDocument(ctx context.Context, doc *store.Document) (int64, error) {
	return s.meta.CreateDocument(ctx, doc)
}

// GetDocument returns one document.
func (s *Service) GetDocument(ctx context.Context, id int64) (*store.Document, error) {
	return s.meta.GetDocument(ctx, id)
}

// ListDocuments lists documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, opts store.ListOptions) ([]*store.Document, error) {
	return s.meta.ListDocuments(ctx, opts)
}

// Ingest indexes text as the content of document id. The outcome always
// carries a final status of completed or error. When the ingestion
// replaced earlier chunks, the index is reconciled before returning.
func (s *Service) Ingest(ctx context.Context, id int64, text string) (*index.Outcome, error) {
	if !s.claim(id) {
		return nil, dierrors.New(dierrors.ErrCodeInvalidStatus,
			fmt.Sprintf("document %d is already being ingested", id), nil)
	}
	defer s.unclaim(id)

	s.session.RLock()
	out, err := s.pipeline.Ingest(ctx, id, text)
	s.session.RUnlock()
	if err != nil {
		return nil, err
	}

	slog.Info("document_ingested",
		slog.Int64("document_id", id),
		slog.String("status", string(out.Status)),
		slog.Int("chunks", out.ChunkCount),
		slog.Int("embedding_failures", out.EmbeddingFailures),
		slog.Duration("duration", out.Duration))

	if out.NeedsReconcile {
		if _, err := s.Reconcile(context.WithoutCancel(ctx)); err != nil {
			// The next startup reconciles again.
			slog.Warn("post_ingest_reconcile_failed",
				slog.Int64("document_id", id),
				slog.String("error", err.Error()))
		}
	}
	return out, nil
}

// IngestText creates a document for text and ingests it.
func (s *Service) IngestText(ctx context.Context, name, text string, meta DocumentMeta) (*index.Outcome, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "document name is required", nil)
	}
	id, err := s.meta.CreateDocument(ctx, &store.Document{
		Filename:         name,
		OriginalFilename: name,
		Team:             meta.Team,
		Project:          meta.Project,
		FileType:         extract.TypeText,
		FileSize:         int64(len(text)),
		UploadedBy:       meta.UploadedBy,
		Description:      meta.Description,
	})
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, id, text)
}

// IngestFile creates a document for the file at path, extracts its text
// and ingests it. A file that yields no text ends in error status like
// any other document without segments.
func (s *Service) IngestFile(ctx context.Context, path string, meta DocumentMeta) (*index.Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "file not readable", err).
			WithDetail("path", abs)
	}
	if info.IsDir() {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "path is a directory", nil).
			WithDetail("path", abs)
	}

	name := filepath.Base(abs)
	id, err := s.meta.CreateDocument(ctx, &store.Document{
		Filename:         name,
		OriginalFilename: name,
		Team:             meta.Team,
		Project:          meta.Project,
		FileType:         extract.FileType(abs),
		FileSize:         info.Size(),
		FilePath:         abs,
		UploadedBy:       meta.UploadedBy,
		Description:      meta.Description,
	})
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, id, s.extractor.Extract(abs))
}

// IngestFiles ingests paths with at most ingest.workers files in flight.
// Per-file errors are reported in the results, never as the returned
// error; progress, when set, is called once per file as it finishes.
func (s *Service) IngestFiles(ctx context.Context, paths []string, meta DocumentMeta, progress func(FileResult)) []FileResult {
	results := make([]FileResult, len(paths))
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.Ingest.Workers))
	for i, path := range paths {
		g.Go(func() error {
			res := FileResult{Path: path}
			if err := gctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Outcome, res.Err = s.IngestFile(gctx, path, meta)
			}
			results[i] = res
			if progress != nil {
				progressMu.Lock()
				progress(res)
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Query returns the chunks most similar to text. An empty index or no
// matches give an empty result list.
func (s *Service) Query(ctx context.Context, text string, limit int) (*search.Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "query text is required", nil)
	}
	return s.engine.Search(ctx, text, search.Options{Limit: limit})
}

// Rebuild replaces the index with one built from every chunk of every
// completed document.
func (s *Service) Rebuild(ctx context.Context, opts index.RebuildOptions) (*index.RebuildResult, error) {
	s.session.Lock()
	defer s.session.Unlock()
	return s.maintainer.Rebuild(ctx, opts)
}

// Reconcile drops orphan chunks and rebuilds the index if it no longer
// matches the metadata store.
func (s *Service) Reconcile(ctx context.Context) (*index.ReconcileResult, error) {
	s.session.Lock()
	defer s.session.Unlock()
	return s.maintainer.Reconcile(ctx)
}

// Check compares the index with the metadata store without repairing it.
func (s *Service) Check(ctx context.Context) (*index.CheckResult, error) {
	s.session.RLock()
	defer s.session.RUnlock()
	return s.maintainer.Check(ctx)
}

// DeleteDocument removes a document and its chunks, then reconciles so
// its index entries are dropped.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	s.session.RLock()
	err := s.meta.DeleteDocument(ctx, id)
	s.session.RUnlock()
	if err != nil {
		return err
	}
	slog.Info("document_deleted", slog.Int64("document_id", id))

	if _, err := s.Reconcile(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("document deleted but reconcile failed: %w", err)
	}
	return nil
}

// Stats returns the index summary.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.meta.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		EntryCount: s.catalog.Size(),
		ChunkCount: st.IndexableChunks,
		Dimension:  s.catalog.Dimension(),
	}, nil
}

// DetailedStats returns the index summary with document, chunk and query
// counts from the metadata store.
func (s *Service) DetailedStats(ctx context.Context) (*DetailedStats, error) {
	st, err := s.meta.Stats(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int, len(store.Statuses))
	for _, status := range store.Statuses {
		byStatus[string(status)] = st.ByStatus[status]
	}
	return &DetailedStats{
		Stats: Stats{
			EntryCount: s.catalog.Size(),
			ChunkCount: st.IndexableChunks,
			Dimension:  s.catalog.Dimension(),
		},
		IndexKind:    s.catalog.Options().Kind,
		Model:        s.embedder.ModelName(),
		Documents:    st.Documents,
		ByStatus:     byStatus,
		ByTeam:       st.ByTeam,
		TotalChunks:  st.TotalChunks,
		Queries:      st.Queries,
		QueryMetrics: s.metrics.Snapshot(10),
	}, nil
}
