package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/store"
)

// SyncResult is the outcome of SyncFile.
type SyncResult struct {
	DocumentID int64
	// Outcome is nil when the file was unchanged and not ingested.
	Outcome   *index.Outcome
	Unchanged bool
}

// SyncFile brings the document registered for path up to date. A new path
// is ingested as a new document; a known path is ingested again into its
// existing document, unless it completed after the file was last modified
// and the size still matches.
func (s *Service) SyncFile(ctx context.Context, path string, meta DocumentMeta) (*SyncResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	docs, err := s.meta.ListDocuments(ctx, store.ListOptions{FilePath: abs, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		out, err := s.IngestFile(ctx, abs, meta)
		if err != nil {
			return nil, err
		}
		return &SyncResult{DocumentID: out.DocumentID, Outcome: out}, nil
	}

	doc := docs[0]
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if doc.Status == store.StatusCompleted && doc.FileSize == info.Size() &&
		doc.ProcessedDate.After(info.ModTime()) {
		slog.Debug("file_unchanged", slog.String("path", abs), slog.Int64("document_id", doc.ID))
		return &SyncResult{DocumentID: doc.ID, Unchanged: true}, nil
	}

	if err := s.meta.UpdateFileSize(ctx, doc.ID, info.Size()); err != nil {
		return nil, err
	}
	out, err := s.Ingest(ctx, doc.ID, s.extractor.Extract(abs))
	if err != nil {
		return nil, err
	}
	return &SyncResult{DocumentID: doc.ID, Outcome: out}, nil
}

// RemoveFile deletes every document registered for path and returns how
// many were removed.
func (s *Service) RemoveFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	docs, err := s.meta.ListDocuments(ctx, store.ListOptions{FilePath: abs})
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		if err := s.DeleteDocument(ctx, d.ID); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}
