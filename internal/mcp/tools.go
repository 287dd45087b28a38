package mcp

// Tool names.
const (
	ToolQueryDocuments = "query_documents"
	ToolIngestText     = "ingest_text"
	ToolIndexStats     = "index_stats"
	ToolRebuildIndex   = "rebuild_index"
	ToolReconcileIndex = "reconcile_index"
)

// QueryInput defines the input schema for the query_documents tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"natural-language question to match against indexed documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// QueryOutput defines the output schema for the query_documents tool.
type QueryOutput struct {
	Query   string         `json:"query"`
	Results []ResultOutput `json:"results" jsonschema:"matching chunks, best first"`
	// Stale counts index hits whose chunk no longer exists.
	Stale     int   `json:"stale,omitempty"`
	LatencyMS int64 `json:"latency_ms"`
}

// ResultOutput is one matching chunk with the metadata of its document.
type ResultOutput struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score" jsonschema:"cosine similarity, higher is closer"`
	DocumentID int64   `json:"document_id"`
	ChunkID    int64   `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	Team       string  `json:"team,omitempty"`
	Project    string  `json:"project,omitempty"`
	Page       int     `json:"page,omitempty" jsonschema:"1-based page number when known"`
	Text       string  `json:"text"`
}

// IngestTextInput defines the input schema for the ingest_text tool.
type IngestTextInput struct {
	Name        string `json:"name" jsonschema:"document name shown in results"`
	Text        string `json:"text" jsonschema:"plain text content to index"`
	Team        string `json:"team,omitempty"`
	Project     string `json:"project,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty"`
	Description string `json:"description,omitempty"`
}

// IngestTextOutput defines the output schema for the ingest_text tool.
type IngestTextOutput struct {
	DocumentID        int64  `json:"document_id"`
	Status            string `json:"status" jsonschema:"completed or error"`
	Chunks            int    `json:"chunks"`
	EmbeddingFailures int    `json:"embedding_failures,omitempty"`
	Error             string `json:"error,omitempty"`
}

// IndexStatsInput defines the input schema for the index_stats tool (no parameters).
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	EntryCount  int            `json:"entry_count" jsonschema:"number of vector index entries"`
	ChunkCount  int            `json:"chunk_count" jsonschema:"number of chunks under completed documents"`
	Dimension   int            `json:"dimension"`
	IndexKind   string         `json:"index_kind"`
	Model       string         `json:"model"`
	Documents   int            `json:"documents"`
	ByStatus    map[string]int `json:"by_status"`
	ByTeam      map[string]int `json:"by_team,omitempty"`
	TotalChunks int            `json:"total_chunks"`
	Queries     int            `json:"queries"`
}

// RebuildInput defines the input schema for the rebuild_index tool.
type RebuildInput struct {
	Reembed bool `json:"reembed,omitempty" jsonschema:"embed every chunk again instead of reusing stored vectors"`
}

// RebuildOutput defines the output schema for the rebuild_index tool.
type RebuildOutput struct {
	Entries    int   `json:"entries"`
	Reused     int   `json:"reused"`
	Reembedded int   `json:"reembedded"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// ReconcileInput defines the input schema for the reconcile_index tool (no parameters).
type ReconcileInput struct{}

// ReconcileOutput defines the output schema for the reconcile_index tool.
type ReconcileOutput struct {
	OrphanChunks    int   `json:"orphan_chunks"`
	Inconsistencies int   `json:"inconsistencies"`
	Rebuilt         bool  `json:"rebuilt"`
	Entries         int   `json:"entries" jsonschema:"index entries after reconciliation"`
	DurationMS      int64 `json:"duration_ms"`
}
