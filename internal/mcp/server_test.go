package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
)

// mockBackend scripts the service calls.
type mockBackend struct {
	queryFn     func(ctx context.Context, text string, limit int) (*search.Response, error)
	ingestFn    func(ctx context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error)
	statsFn     func(ctx context.Context) (*service.DetailedStats, error)
	rebuildFn   func(ctx context.Context, opts index.RebuildOptions) (*index.RebuildResult, error)
	reconcileFn func(ctx context.Context) (*index.ReconcileResult, error)
}

func (m *mockBackend) Query(ctx context.Context, text string, limit int) (*search.Response, error) {
	if m.queryFn == nil {
		return &search.Response{Query: text}, nil
	}
	return m.queryFn(ctx, text, limit)
}

func (m *mockBackend) IngestText(ctx context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error) {
	return m.ingestFn(ctx, name, text, meta)
}

func (m *mockBackend) DetailedStats(ctx context.Context) (*service.DetailedStats, error) {
	return m.statsFn(ctx)
}

func (m *mockBackend) Rebuild(ctx context.Context, opts index.RebuildOptions) (*index.RebuildResult, error) {
	return m.rebuildFn(ctx, opts)
}

func (m *mockBackend) Reconcile(ctx context.Context) (*index.ReconcileResult, error) {
	return m.reconcileFn(ctx)
}

func newTestServer(t *testing.T, backend Backend) *Server {
	t.Helper()
	srv, err := NewServer(backend, config.NewConfig())
	require.NoError(t, err)
	return srv
}

func printerChunk() *search.Result {
	return &search.Result{
		Rank:  1,
		Score: 0.91,
		Chunk: &store.ChunkRecord{
			Chunk: store.Chunk{
				ID:         12,
				DocumentID: 3,
				Index:      0,
				Text:       "the printer is offline",
				Page:       2,
			},
			Filename:         "3_printers.pdf",
			OriginalFilename: "printers.pdf",
			Team:             "it",
			Project:          "helpdesk",
		},
	}
}

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	names := make([]string, 0)
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.Equal(t, []string{
		ToolQueryDocuments, ToolIngestText, ToolIndexStats, ToolRebuildIndex, ToolReconcileIndex,
	}, names)
	assert.NotNil(t, srv.MCPServer())
}

func TestQueryDocuments_ReturnsMarkdown(t *testing.T) {
	// Given: a backend returning one chunk
	var gotLimit int
	backend := &mockBackend{
		queryFn: func(_ context.Context, text string, limit int) (*search.Response, error) {
			gotLimit = limit
			return &search.Response{Query: text, Results: []*search.Result{printerChunk()}}, nil
		},
	}
	srv := newTestServer(t, backend)

	// When: querying without a limit
	text, err := srv.CallTool(context.Background(), ToolQueryDocuments, map[string]any{
		"query": "printer not working",
	})

	// Then: the default limit is used and the chunk is rendered
	require.NoError(t, err)
	assert.Equal(t, 5, gotLimit)
	assert.Contains(t, text, `## Results for "printer not working"`)
	assert.Contains(t, text, "### 1. printers.pdf (page 2) (score: 0.91)")
	assert.Contains(t, text, "**Team:** it | **Project:** helpdesk")
	assert.Contains(t, text, "> the printer is offline")
}

func TestQueryDocuments_ClampsLimit(t *testing.T) {
	var gotLimit int
	backend := &mockBackend{
		queryFn: func(_ context.Context, text string, limit int) (*search.Response, error) {
			gotLimit = limit
			return &search.Response{Query: text}, nil
		},
	}
	srv := newTestServer(t, backend)

	_, err := srv.CallTool(context.Background(), ToolQueryDocuments, map[string]any{
		"query": "vpn",
		"limit": 5000,
	})

	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)
}

func TestQueryDocuments_NoResults(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	text, err := srv.CallTool(context.Background(), ToolQueryDocuments, map[string]any{"query": "payroll"})

	require.NoError(t, err)
	assert.Equal(t, `No documents found for "payroll"`, text)
}

func TestQueryDocuments_BlankQueryIsInvalidParams(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	for _, args := range []map[string]any{nil, {"query": ""}, {"query": "   "}} {
		_, err := srv.CallTool(context.Background(), ToolQueryDocuments, args)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestQueryDocuments_WrongArgumentType(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	_, err := srv.CallTool(context.Background(), ToolQueryDocuments, map[string]any{"query": 42})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestQueryDocuments_EmbeddingFailureIsMapped(t *testing.T) {
	backend := &mockBackend{
		queryFn: func(context.Context, string, int) (*search.Response, error) {
			return nil, dierrors.EmbeddingFailure("provider unavailable", errors.New("502"))
		},
	}
	srv := newTestServer(t, backend)

	_, err := srv.CallTool(context.Background(), ToolQueryDocuments, map[string]any{"query": "vpn"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeEmbeddingFailed, mcpErr.Code)
}

func TestQueryDocuments_StructuredOutput(t *testing.T) {
	// Given: a backend returning one chunk and one stale hit
	backend := &mockBackend{
		queryFn: func(_ context.Context, text string, _ int) (*search.Response, error) {
			return &search.Response{
				Query:   text,
				Results: []*search.Result{printerChunk()},
				Stale:   1,
				Latency: 15 * time.Millisecond,
			}, nil
		},
	}
	srv := newTestServer(t, backend)

	// When: calling the tool body directly
	_, out, err := srv.queryDocuments(context.Background(), QueryInput{Query: "printer"})

	// Then: the structured output mirrors the response
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, int64(3), out.Results[0].DocumentID)
	assert.Equal(t, int64(12), out.Results[0].ChunkID)
	assert.Equal(t, "printers.pdf", out.Results[0].Filename)
	assert.InDelta(t, 0.91, out.Results[0].Score, 1e-6)
	assert.Equal(t, 1, out.Stale)
	assert.Equal(t, int64(15), out.LatencyMS)
}

func TestIngestText_PassesMetadata(t *testing.T) {
	// Given: a backend that records the ingestion
	var gotName, gotText string
	var gotMeta service.DocumentMeta
	backend := &mockBackend{
		ingestFn: func(_ context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error) {
			gotName, gotText, gotMeta = name, text, meta
			return &index.Outcome{DocumentID: 9, Status: store.StatusCompleted, ChunkCount: 2}, nil
		},
	}
	srv := newTestServer(t, backend)

	// When: ingesting text with metadata
	text, err := srv.CallTool(context.Background(), ToolIngestText, map[string]any{
		"name":        "vpn.md",
		"text":        "Connect to the VPN before mapping drives.",
		"team":        "it",
		"project":     "remote",
		"uploaded_by": "ops",
	})

	// Then: the backend receives everything and the result is summarized
	require.NoError(t, err)
	assert.Equal(t, "vpn.md", gotName)
	assert.Equal(t, "Connect to the VPN before mapping drives.", gotText)
	assert.Equal(t, service.DocumentMeta{Team: "it", Project: "remote", UploadedBy: "ops"}, gotMeta)
	assert.Equal(t, "Document 9 indexed: 2 chunks.", text)
}

func TestIngestText_ErrorStatusIsReported(t *testing.T) {
	backend := &mockBackend{
		ingestFn: func(context.Context, string, string, service.DocumentMeta) (*index.Outcome, error) {
			return &index.Outcome{
				DocumentID: 4,
				Status:     store.StatusError,
				Err:        dierrors.SegmentationEmpty(4),
			}, nil
		},
	}
	srv := newTestServer(t, backend)

	text, out, err := srv.ingestText(context.Background(), IngestTextInput{Name: "blank.txt", Text: "x"})

	require.NoError(t, err)
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, dierrors.ErrCodeSegmentationEmpty)
	assert.Contains(t, text, "Document 4 ended in error")
}

func TestIngestText_RequiresNameAndText(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	_, err := srv.CallTool(context.Background(), ToolIngestText, map[string]any{"text": "hello"})
	assert.ErrorContains(t, err, "name parameter is required")

	_, err = srv.CallTool(context.Background(), ToolIngestText, map[string]any{"name": "a.txt"})
	assert.ErrorContains(t, err, "text parameter is required")
}

func TestIndexStats_RendersCounts(t *testing.T) {
	backend := &mockBackend{
		statsFn: func(context.Context) (*service.DetailedStats, error) {
			return &service.DetailedStats{
				Stats:       service.Stats{EntryCount: 7, ChunkCount: 7, Dimension: 256},
				IndexKind:   "flat",
				Model:       "static-256",
				Documents:   3,
				ByStatus:    map[string]int{"completed": 2, "error": 1},
				ByTeam:      map[string]int{"it": 2, "": 1},
				TotalChunks: 8,
				Queries:     11,
			}, nil
		},
	}
	srv := newTestServer(t, backend)

	text, err := srv.CallTool(context.Background(), ToolIndexStats, nil)

	require.NoError(t, err)
	assert.Contains(t, text, "flat, 7 entries, dimension 256")
	assert.Contains(t, text, "7 indexable of 8 stored")
	assert.Contains(t, text, "pending 0, processing 0, completed 2, error 1")
	assert.Contains(t, text, "(none) 1, it 2")
}

func TestRebuildIndex_PassesReembed(t *testing.T) {
	var gotOpts index.RebuildOptions
	backend := &mockBackend{
		rebuildFn: func(_ context.Context, opts index.RebuildOptions) (*index.RebuildResult, error) {
			gotOpts = opts
			return &index.RebuildResult{Entries: 4, Reembedded: 4}, nil
		},
	}
	srv := newTestServer(t, backend)

	text, err := srv.CallTool(context.Background(), ToolRebuildIndex, map[string]any{"reembed": true})

	require.NoError(t, err)
	assert.True(t, gotOpts.Reembed)
	assert.Contains(t, text, "Index rebuilt: 4 entries (0 reused, 4 re-embedded, 0 skipped)")
}

func TestReconcileIndex_ReportsRebuild(t *testing.T) {
	backend := &mockBackend{
		reconcileFn: func(context.Context) (*index.ReconcileResult, error) {
			return &index.ReconcileResult{
				OrphanChunks: 2,
				Check: &index.CheckResult{
					Entries:         5,
					Inconsistencies: []index.Inconsistency{{Type: index.InconsistencyStale, ChunkID: 8}},
				},
				Rebuilt: true,
				Rebuild: &index.RebuildResult{Entries: 4},
			}, nil
		},
	}
	srv := newTestServer(t, backend)

	text, out, err := srv.reconcileIndex(context.Background(), ReconcileInput{})

	require.NoError(t, err)
	assert.Equal(t, 4, out.Entries)
	assert.Equal(t, 1, out.Inconsistencies)
	assert.Equal(t, "Index rebuilt after 1 inconsistencies: 4 entries. Removed 2 orphan chunks.", text)
}

func TestReconcileIndex_Consistent(t *testing.T) {
	backend := &mockBackend{
		reconcileFn: func(context.Context) (*index.ReconcileResult, error) {
			return &index.ReconcileResult{Check: &index.CheckResult{Entries: 6}}, nil
		},
	}
	srv := newTestServer(t, backend)

	text, err := srv.CallTool(context.Background(), ToolReconcileIndex, nil)

	require.NoError(t, err)
	assert.Equal(t, "Index consistent: 6 entries.", text)
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, &mockBackend{})

	_, err := srv.CallTool(context.Background(), "summarize", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 1, 100))
	assert.Equal(t, 5, clampLimit(-3, 5, 1, 100))
	assert.Equal(t, 20, clampLimit(20, 5, 1, 100))
	assert.Equal(t, 100, clampLimit(101, 5, 1, 100))
}
