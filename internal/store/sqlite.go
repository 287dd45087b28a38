package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store/migrations"
)

// SQLiteStore implements MetadataStore on SQLite.
//
// The pool holds a single connection. Every method finishes reading its
// rows before issuing another statement, and multi-statement work runs
// inside one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the metadata database at path
// and applies pending migrations. An empty path opens an in-memory
// database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: pragmas stick, and an in-memory database survives.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		slog.Debug("migration_applied", slog.String("name", name))
	}
	return nil
}

// ==================== Documents ====================

const documentColumns = `id, filename, original_filename, team, project, file_type, file_size,
	file_path, uploaded_by, description, status, chunk_count, error_message,
	upload_date, processed_date`

// CreateDocument inserts doc with status pending and returns its id.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) (int64, error) {
	if doc.Filename == "" {
		return 0, dierrors.New(dierrors.ErrCodeInvalidInput, "document filename is required", nil)
	}
	uploaded := doc.UploadDate
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	original := doc.OriginalFilename
	if original == "" {
		original = doc.Filename
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (filename, original_filename, team, project, file_type, file_size,
			file_path, uploaded_by, description, status, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Filename, original, doc.Team, doc.Project, doc.FileType, doc.FileSize,
		doc.FilePath, doc.UploadedBy, doc.Description, string(StatusPending), uploaded)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading document id: %w", err)
	}
	doc.ID = id
	doc.OriginalFilename = original
	doc.Status = StatusPending
	doc.UploadDate = uploaded
	return id, nil
}

// GetDocument returns the document with id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents matching opts, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error) {
	var (
		where []string
		args  []any
	)
	if opts.Team != "" {
		where = append(where, "team = ?")
		args = append(args, opts.Team)
	}
	if opts.Project != "" {
		where = append(where, "project = ?")
		args = append(args, opts.Project)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.FilePath != "" {
		where = append(where, "file_path = ?")
		args = append(args, opts.FilePath)
	}

	query := "SELECT " + documentColumns + " FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY upload_date DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateFileSize records a new source file size.
func (s *SQLiteStore) UpdateFileSize(ctx context.Context, id int64, size int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE documents SET file_size = ? WHERE id = ?", size, id)
	if err != nil {
		return fmt.Errorf("updating file size: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return documentNotFound(id)
	}
	return nil
}

// DeleteDocument removes a document. Its chunks cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return documentNotFound(id)
	}
	return nil
}

// TransitionStatus applies a status change after checking it against the
// document's current status.
func (s *SQLiteStore) TransitionStatus(ctx context.Context, id int64, to Status, chunkCount int, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT status FROM documents WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return documentNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	from, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	if !from.CanTransition(to) {
		return dierrors.New(dierrors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot move document %d from %s to %s", id, from, to), nil).
			WithDetail("document_id", fmt.Sprint(id))
	}

	switch to {
	case StatusPending:
		_, err = tx.ExecContext(ctx, `UPDATE documents SET status = ?, chunk_count = 0,
			error_message = '', processed_date = NULL WHERE id = ?`, string(to), id)
	case StatusProcessing:
		_, err = tx.ExecContext(ctx, "UPDATE documents SET status = ? WHERE id = ?", string(to), id)
	case StatusCompleted, StatusError:
		_, err = tx.ExecContext(ctx, `UPDATE documents SET status = ?, chunk_count = ?,
			error_message = ?, processed_date = ? WHERE id = ?`,
			string(to), chunkCount, errMsg, time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc       Document
		status    string
		uploaded  sql.NullTime
		processed sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.Team, &doc.Project,
		&doc.FileType, &doc.FileSize, &doc.FilePath, &doc.UploadedBy, &doc.Description,
		&status, &doc.ChunkCount, &doc.ErrorMessage, &uploaded, &processed); err != nil {
		return nil, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	doc.Status = st
	if uploaded.Valid {
		doc.UploadDate = uploaded.Time
	}
	if processed.Valid {
		doc.ProcessedDate = processed.Time
	}
	return &doc, nil
}

func documentNotFound(id int64) error {
	return dierrors.New(dierrors.ErrCodeDocumentNotFound, fmt.Sprintf("document %d not found", id), nil).
		WithDetail("document_id", fmt.Sprint(id))
}

// ==================== Chunks ====================

// InsertChunk writes one chunk row and returns its id.
func (s *SQLiteStore) InsertChunk(ctx context.Context, c *Chunk) (int64, error) {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var page sql.NullInt64
	if c.Page > 0 {
		page = sql.NullInt64{Int64: int64(c.Page), Valid: true}
	}
	size := c.Size
	if size == 0 {
		size = len(c.Text)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, chunk_text, chunk_size, page_number, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.DocumentID, c.Index, c.Text, size, page, encodeVector(c.Embedding), created)
	if err != nil {
		return 0, fmt.Errorf("inserting chunk %d of document %d: %w", c.Index, c.DocumentID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading chunk id: %w", err)
	}
	c.ID = id
	c.Size = size
	c.CreatedAt = created
	return id, nil
}

// DeleteChunk removes a single chunk row.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting chunk %d: %w", id, err)
	}
	return nil
}

// DeleteChunks removes every chunk of a document and returns how many.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, documentID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of document %d: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountChunks returns the number of chunk rows of a document.
func (s *SQLiteStore) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// hydrateBatch bounds the number of bound parameters per statement.
const hydrateBatch = 500

// HydrateChunks loads chunk text and document metadata for ids whose
// document is completed.
func (s *SQLiteStore) HydrateChunks(ctx context.Context, ids []int64) (map[int64]*ChunkRecord, error) {
	out := make(map[int64]*ChunkRecord, len(ids))
	for start := 0; start < len(ids); start += hydrateBatch {
		end := min(start+hydrateBatch, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, 0, len(batch)+1)
		for _, id := range batch {
			args = append(args, id)
		}
		args = append(args, string(StatusCompleted))

		rows, err := s.db.QueryContext(ctx, `
			SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.chunk_size, c.page_number, c.created_at,
				d.filename, d.original_filename, d.team, d.project, d.file_type
			FROM chunks c JOIN documents d ON d.id = c.document_id
			WHERE c.id IN (`+placeholders+`) AND d.status = ?
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("hydrating chunks: %w", err)
		}
		for rows.Next() {
			var (
				rec     ChunkRecord
				page    sql.NullInt64
				created sql.NullTime
			)
			if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Index, &rec.Text, &rec.Size, &page, &created,
				&rec.Filename, &rec.OriginalFilename, &rec.Team, &rec.Project, &rec.FileType); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scanning chunk: %w", err)
			}
			rec.Page = int(page.Int64)
			if created.Valid {
				rec.CreatedAt = created.Time
			}
			out[rec.ID] = &rec
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ForEachIndexableChunk pages through chunks of completed documents using
// keyset pagination. fn runs after each page's rows are closed, so it may
// call back into the store.
func (s *SQLiteStore) ForEachIndexableChunk(ctx context.Context, pageSize int, fn func(*Chunk) error) error {
	if pageSize <= 0 {
		pageSize = 256
	}
	var lastDoc, lastIdx int64 = -1, -1
	for {
		page, err := s.indexablePage(ctx, lastDoc, lastIdx, pageSize)
		if err != nil {
			return err
		}
		for _, c := range page {
			if err := fn(c); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		last := page[len(page)-1]
		lastDoc, lastIdx = last.DocumentID, int64(last.Index)
	}
}

func (s *SQLiteStore) indexablePage(ctx context.Context, afterDoc, afterIdx int64, limit int) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.chunk_size, c.page_number, c.embedding, c.created_at
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.status = ? AND (c.document_id > ? OR (c.document_id = ? AND c.chunk_index > ?))
		ORDER BY c.document_id, c.chunk_index
		LIMIT ?
	`, string(StatusCompleted), afterDoc, afterDoc, afterIdx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading indexable chunks: %w", err)
	}
	defer rows.Close()

	var page []*Chunk
	for rows.Next() {
		var (
			c       Chunk
			pageNo  sql.NullInt64
			blob    []byte
			created sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.Size, &pageNo, &blob, &created); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Page = int(pageNo.Int64)
		if created.Valid {
			c.CreatedAt = created.Time
		}
		vec, err := decodeVector(blob)
		if err != nil {
			// A damaged blob is treated as missing so that rebuild re-embeds.
			slog.Warn("chunk_embedding_unreadable",
				slog.Int64("chunk_id", c.ID),
				slog.String("error", err.Error()))
		}
		c.Embedding = vec
		page = append(page, &c)
	}
	return page, rows.Err()
}

// IndexableChunkIDs returns the ids of chunks under completed documents.
func (s *SQLiteStore) IndexableChunkIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?
		ORDER BY c.document_id, c.chunk_index
	`, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing indexable chunks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateChunkEmbedding replaces the stored vector of a chunk.
func (s *SQLiteStore) UpdateChunkEmbedding(ctx context.Context, id int64, vec []float32) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE chunks SET embedding = ? WHERE id = ?", encodeVector(vec), id); err != nil {
		return fmt.Errorf("updating embedding of chunk %d: %w", id, err)
	}
	return nil
}

// DeleteOrphanChunks removes chunk rows whose document no longer exists.
func (s *SQLiteStore) DeleteOrphanChunks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = chunks.document_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("deleting orphan chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ==================== Position table ====================

// AppendPosition records that index slot position holds chunkID. Positions
// must be appended in order.
func (s *SQLiteStore) AppendPosition(ctx context.Context, position int, chunkID int64) error {
	if _, err := s.db.ExecContext(ctx, "INSERT INTO index_positions (position, chunk_id) VALUES (?, ?)",
		position, chunkID); err != nil {
		return fmt.Errorf("appending position %d: %w", position, err)
	}
	return nil
}

// Positions returns the position table as a slice indexed by position.
// A gap in the stored positions is reported as corruption.
func (s *SQLiteStore) Positions(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT position, chunk_id FROM index_positions ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var (
			pos int
			id  int64
		)
		if err := rows.Scan(&pos, &id); err != nil {
			return nil, err
		}
		if pos != len(ids) {
			return nil, dierrors.IndexCorruption(fmt.Sprintf("position table has a gap at %d", len(ids)))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplacePositions swaps the whole position table for chunkIDs and bumps
// the index generation in one transaction. It returns the new generation.
func (s *SQLiteStore) ReplacePositions(ctx context.Context, chunkIDs []int64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_positions"); err != nil {
		return 0, fmt.Errorf("clearing positions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO index_positions (position, chunk_id) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing position insert: %w", err)
	}
	defer stmt.Close()
	for pos, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, pos, id); err != nil {
			return 0, fmt.Errorf("writing position %d: %w", pos, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE index_state SET generation = generation + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("bumping index generation: %w", err)
	}
	var gen int64
	if err := tx.QueryRowContext(ctx, "SELECT generation FROM index_state WHERE id = 1").Scan(&gen); err != nil {
		return 0, fmt.Errorf("reading index generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing positions: %w", err)
	}
	return uint64(gen), nil
}

// IndexGeneration returns the generation of the current position table.
func (s *SQLiteStore) IndexGeneration(ctx context.Context) (uint64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx, "SELECT generation FROM index_state WHERE id = 1").Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, dierrors.IndexCorruption("index generation row is missing")
	}
	if err != nil {
		return 0, fmt.Errorf("reading index generation: %w", err)
	}
	return uint64(gen), nil
}

// TruncatePositions removes every position >= from.
func (s *SQLiteStore) TruncatePositions(ctx context.Context, from int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_positions WHERE position >= ?", from); err != nil {
		return fmt.Errorf("truncating positions: %w", err)
	}
	return nil
}

// ==================== Queries and stats ====================

// LogQuery appends an entry to the query history.
func (s *SQLiteStore) LogQuery(ctx context.Context, q QueryLog) error {
	created := q.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_queries (query_text, result_count, top_score, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, q.Text, q.ResultCount, float64(q.TopScore), q.Latency.Milliseconds(), created)
	if err != nil {
		return fmt.Errorf("logging query: %w", err)
	}
	return nil
}

// Stats returns document, chunk and query counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByStatus: make(map[Status]int),
		ByTeam:   make(map[string]int),
	}

	if err := s.groupCounts(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status", func(k string, n int) {
		st.ByStatus[Status(k)] = n
		st.Documents += n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "SELECT team, COUNT(*) FROM documents GROUP BY team", func(k string, n int) {
		st.ByTeam[k] = n
	}); err != nil {
		return nil, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.status = ?),
			(SELECT COUNT(*) FROM user_queries)
	`, string(StatusCompleted)).Scan(&st.TotalChunks, &st.IndexableChunks, &st.Queries)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) groupCounts(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("computing stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}
