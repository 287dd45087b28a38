// Package store holds the durable state of docindex: the SQLite metadata
// store (documents, chunks, the position table and the query log) and the
// vector index implementations.
package store

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of a document.
type Status string

// Document statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusError}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown document status %q", s)
	}
}

// CanTransition reports whether a document may move from s to next.
// Any state may restart at pending (fresh ingestion); otherwise only
// pending->processing and processing->{completed,error} are allowed.
func (s Status) CanTransition(next Status) bool {
	switch next {
	case StatusPending:
		return true
	case StatusProcessing:
		return s == StatusPending
	case StatusCompleted, StatusError:
		return s == StatusProcessing
	default:
		return false
	}
}

// Document describes an uploaded source file and its ingestion state.
type Document struct {
	ID               int64
	Filename         string
	OriginalFilename string
	Team             string
	Project          string
	FileType         string
	FileSize         int64
	FilePath         string
	UploadedBy       string
	Description      string
	Status           Status
	ChunkCount       int
	ErrorMessage     string
	UploadDate       time.Time
	// ProcessedDate is zero until the document reaches completed or error.
	ProcessedDate time.Time
}

// Chunk is one stored segment of a document.
type Chunk struct {
	ID         int64
	DocumentID int64
	// Index is the 0-based ordinal within the document. Ordinals are
	// contiguous.
	Index int
	Text  string
	// Size is the byte length of Text.
	Size int
	// Page is 1-based, or 0 when unknown.
	Page      int
	Embedding []float32
	CreatedAt time.Time
}

// ChunkRecord is a chunk joined with the metadata of its document, as
// returned by hydration.
type ChunkRecord struct {
	Chunk
	Filename         string
	OriginalFilename string
	Team             string
	Project          string
	FileType         string
}

// ListOptions filters ListDocuments. Zero values match everything.
type ListOptions struct {
	Team     string
	Project  string
	Status   Status
	// FilePath matches the stored source path exactly.
	FilePath string
	Limit    int
}

// QueryLog is one entry in the query history.
type QueryLog struct {
	Text        string
	ResultCount int
	TopScore    float32
	Latency     time.Duration
	CreatedAt   time.Time
}

// Stats summarizes the metadata store.
type Stats struct {
	Documents int
	ByStatus  map[Status]int
	ByTeam    map[string]int
	// IndexableChunks counts chunk rows under completed documents.
	IndexableChunks int
	TotalChunks     int
	Queries         int
}

// MetadataStore is the source of truth for what should be indexed.
type MetadataStore interface {
	// Documents
	CreateDocument(ctx context.Context, doc *Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	// UpdateFileSize records a new size for a document's source file.
	UpdateFileSize(ctx context.Context, id int64, size int64) error
	// TransitionStatus moves a document to status to. chunkCount and errMsg
	// are recorded for completed and error.
	TransitionStatus(ctx context.Context, id int64, to Status, chunkCount int, errMsg string) error

	// Chunks
	InsertChunk(ctx context.Context, c *Chunk) (int64, error)
	DeleteChunk(ctx context.Context, id int64) error
	DeleteChunks(ctx context.Context, documentID int64) (int, error)
	CountChunks(ctx context.Context, documentID int64) (int, error)
	// HydrateChunks resolves chunk ids under completed documents. Ids that
	// do not resolve are absent from the result.
	HydrateChunks(ctx context.Context, ids []int64) (map[int64]*ChunkRecord, error)
	// ForEachIndexableChunk streams chunks of completed documents in
	// (document_id, chunk_index) order, pageSize rows at a time.
	ForEachIndexableChunk(ctx context.Context, pageSize int, fn func(*Chunk) error) error
	IndexableChunkIDs(ctx context.Context) ([]int64, error)
	UpdateChunkEmbedding(ctx context.Context, id int64, vec []float32) error
	DeleteOrphanChunks(ctx context.Context) (int, error)

	// Position table
	AppendPosition(ctx context.Context, position int, chunkID int64) error
	Positions(ctx context.Context) ([]int64, error)
	// ReplacePositions rewrites the table and returns the new generation.
	ReplacePositions(ctx context.Context, chunkIDs []int64) (uint64, error)
	TruncatePositions(ctx context.Context, from int) error
	IndexGeneration(ctx context.Context) (uint64, error)

	LogQuery(ctx context.Context, q QueryLog) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Hit is a vector index search result.
type Hit struct {
	Position int
	Score    float32
}

// VectorIndex stores unit vectors in insertion order and answers top-k
// inner-product queries. Implementations are not safe for concurrent use;
// callers serialize access.
type VectorIndex interface {
	// Insert appends vec and returns its position.
	Insert(vec []float32) (int, error)
	// Search returns up to k hits sorted by descending score, ties broken
	// by ascending position.
	Search(query []float32, k int) ([]Hit, error)
	Size() int
	Dimension() int
	// Generation is the position table generation the index was built
	// against. Save records it and Load restores it.
	Generation() uint64
	SetGeneration(gen uint64)
	Save(path string) error
	Load(path string) error
}
