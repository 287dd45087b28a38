package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
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

// fakeBackend keeps documents in memory and records calls.
type fakeBackend struct {
	docs      map[int64]*store.Document
	nextID    int64
	lastQuery string
	lastLimit int
	queryErr  error
	reembed   bool
	deleted   []int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{docs: make(map[int64]*store.Document), nextID: 1}
}

func (f *fakeBackend) IngestText(_ context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "document name is required", nil)
	}
	id := f.nextID
	f.nextID++
	f.docs[id] = &store.Document{
		ID: id, Filename: name, OriginalFilename: name, Team: meta.Team,
		Status: store.StatusCompleted, ChunkCount: 1, UploadDate: time.Now().UTC(),
	}
	return &index.Outcome{DocumentID: id, Status: store.StatusCompleted, Segments: 1, ChunkCount: 1}, nil
}

func (f *fakeBackend) GetDocument(_ context.Context, id int64) (*store.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, dierrors.New(dierrors.ErrCodeDocumentNotFound, fmt.Sprintf("document %d not found", id), nil)
	}
	return d, nil
}

func (f *fakeBackend) ListDocuments(_ context.Context, opts store.ListOptions) ([]*store.Document, error) {
	var out []*store.Document
	for _, d := range f.docs {
		if opts.Team == "" || d.Team == opts.Team {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeBackend) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := f.GetDocument(ctx, id); err != nil {
		return err
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Query(_ context.Context, text string, limit int) (*search.Response, error) {
	f.lastQuery, f.lastLimit = text, limit
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if strings.TrimSpace(text) == "" {
		return nil, dierrors.New(dierrors.ErrCodeInvalidInput, "query text is required", nil)
	}
	return &search.Response{
		Query: text,
		Results: []*search.Result{{
			Rank:  1,
			Score: 0.8,
			Chunk: &store.ChunkRecord{
				Chunk:            store.Chunk{ID: 5, DocumentID: 1, Text: "the printer is offline", Page: 3},
				Filename:         "1_guide.pdf",
				OriginalFilename: "guide.pdf",
				FileType:         "pdf",
			},
		}},
		Latency: 4 * time.Millisecond,
	}, nil
}

func (f *fakeBackend) Rebuild(_ context.Context, opts index.RebuildOptions) (*index.RebuildResult, error) {
	f.reembed = opts.Reembed
	return &index.RebuildResult{Entries: 3, Reused: 3}, nil
}

func (f *fakeBackend) Reconcile(context.Context) (*index.ReconcileResult, error) {
	return &index.ReconcileResult{
		OrphanChunks: 1,
		Check: &index.CheckResult{Inconsistencies: []index.Inconsistency{
			{Type: index.InconsistencyStale, ChunkID: 4},
			{Type: index.InconsistencyCount},
		}},
		Rebuilt: true,
		Rebuild: &index.RebuildResult{Entries: 2, Reused: 2},
	}, nil
}

func (f *fakeBackend) DetailedStats(context.Context) (*service.DetailedStats, error) {
	return &service.DetailedStats{
		Stats:     service.Stats{EntryCount: 2, ChunkCount: 2, Dimension: 64},
		IndexKind: "flat",
		Documents: len(f.docs),
		ByStatus:  map[string]int{"completed": len(f.docs)},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv, err := NewServer(backend, config.NewConfig().Server)
	require.NoError(t, err)
	return srv, backend
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_EchoesClientValue(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "trace-42")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "trace-42", rec.Header().Get(RequestIDHeader))
}

func TestCreateDocument_IngestsText(t *testing.T) {
	// Given: a server
	srv, backend := newTestServer(t)

	// When: posting a text document
	rec := do(t, srv, http.MethodPost, "/documents", CreateDocumentRequest{
		Name: "printers.txt", Text: "the printer is offline", Team: "it",
	})

	// Then: the document is created and the outcome reported
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[IngestResponse](t, rec)
	assert.Equal(t, int64(1), resp.DocumentID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 1, resp.ChunkCount)
	assert.Equal(t, "it", backend.docs[1].Team)
}

func TestCreateDocument_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"unknown field", `{"name":"a","text":"b","color":"red"}`},
		{"empty text", `{"name":"a","text":"  "}`},
		{"missing name", `{"text":"hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, dierrors.ErrCodeInvalidInput, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestDocuments_GetListDelete(t *testing.T) {
	// Given: two documents
	srv, backend := newTestServer(t)
	do(t, srv, http.MethodPost, "/documents", CreateDocumentRequest{Name: "a.txt", Text: "alpha", Team: "it"})
	do(t, srv, http.MethodPost, "/documents", CreateDocumentRequest{Name: "b.txt", Text: "beta", Team: "hr"})

	// When/Then: one can be fetched
	rec := do(t, srv, http.MethodGet, "/documents/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[DocumentResponse](t, rec)
	assert.Equal(t, "a.txt", doc.Filename)
	assert.Nil(t, doc.ProcessedDate)

	// When/Then: listing filters by team
	rec = do(t, srv, http.MethodGet, "/documents?team=hr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode[[]DocumentResponse](t, rec)
	require.Len(t, docs, 1)
	assert.Equal(t, "b.txt", docs[0].Filename)

	// When/Then: deleting removes it
	rec = do(t, srv, http.MethodDelete, "/documents/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{1}, backend.deleted)

	rec = do(t, srv, http.MethodGet, "/documents/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{"/documents/abc", "/documents/0", "/documents/-3"} {
		rec := do(t, srv, http.MethodDelete, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodDelete, "/documents/99", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dierrors.ErrCodeDocumentNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestQuery_ReturnsResults(t *testing.T) {
	srv, backend := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/query?q=printer+not+working&limit=3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "printer not working", backend.lastQuery)
	assert.Equal(t, 3, backend.lastLimit)
	resp := decode[QueryResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "guide.pdf", resp.Results[0].Filename)
	assert.Equal(t, 3, resp.Results[0].Page)
	assert.Equal(t, int64(5), resp.Results[0].ChunkID)
	assert.Equal(t, int64(4), resp.LatencyMS)
}

func TestQuery_Errors(t *testing.T) {
	srv, backend := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/query?q=", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/query?q=vpn&limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	backend.queryErr = dierrors.EmbeddingFailure("provider unavailable", errors.New("503"))
	rec = do(t, srv, http.MethodGet, "/query?q=vpn", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	backend.queryErr = errors.New("disk I/O error")
	rec = do(t, srv, http.MethodGet, "/query?q=vpn", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, rec).Error)
}

func TestIndexRoutes(t *testing.T) {
	srv, backend := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/index/rebuild?reembed=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, backend.reembed)
	assert.Equal(t, 3, decode[RebuildResponse](t, rec).Entries)

	rec = do(t, srv, http.MethodPost, "/index/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReconcileResponse](t, rec)
	assert.True(t, resp.Rebuilt)
	assert.Equal(t, 1, resp.OrphanChunks)
	assert.Equal(t, 1, resp.Inconsistencies["stale_position"])
	assert.Equal(t, 1, resp.Inconsistencies["count_mismatch"])
	assert.Equal(t, 0, resp.Inconsistencies["missing_position"])
	require.NotNil(t, resp.Rebuild)
	assert.Equal(t, 2, resp.Rebuild.Entries)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["entry_count"])
	assert.EqualValues(t, 64, body["dimension"])
	assert.Equal(t, "flat", body["index_kind"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(dierrors.New(dierrors.ErrCodeInvalidStatus, "busy", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(dierrors.New(dierrors.ErrCodeEmbeddingTimeout, "slow", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, 499, statusFor(context.Canceled))
}

func TestServe_StopsOnCancel(t *testing.T) {
	// Given: a server on an ephemeral port
	srv, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// When: it answers a request and the context is cancelled
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	cancel()

	// Then: Serve returns without error
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
