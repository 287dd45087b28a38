package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
)

// CreateDocumentRequest is the body of POST /documents.
type CreateDocumentRequest struct {
	Name        string `json:"name"`
	Text        string `json:"text"`
	Team        string `json:"team,omitempty"`
	Project     string `json:"project,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty"`
	Description string `json:"description,omitempty"`
}

// IngestResponse reports how an ingestion ended.
type IngestResponse struct {
	DocumentID        int64  `json:"document_id"`
	Status            string `json:"status"`
	Segments          int    `json:"segments"`
	ChunkCount        int    `json:"chunk_count"`
	EmbeddingFailures int    `json:"embedding_failures"`
	StorageFailures   int    `json:"storage_failures"`
	Error             string `json:"error,omitempty"`
	DurationMS        int64  `json:"duration_ms"`
}

// DocumentResponse is the JSON form of a document row.
type DocumentResponse struct {
	ID               int64      `json:"id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	Team             string     `json:"team,omitempty"`
	Project          string     `json:"project,omitempty"`
	FileType         string     `json:"file_type"`
	FileSize         int64      `json:"file_size"`
	UploadedBy       string     `json:"uploaded_by,omitempty"`
	Description      string     `json:"description,omitempty"`
	Status           string     `json:"status"`
	ChunkCount       int        `json:"chunk_count"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	UploadDate       time.Time  `json:"upload_date"`
	ProcessedDate    *time.Time `json:"processed_date,omitempty"`
}

// QueryResult is one ranked chunk.
type QueryResult struct {
	Rank       int     `json:"rank"`
	Score      float32 `json:"score"`
	DocumentID int64   `json:"document_id"`
	ChunkID    int64   `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	Team       string  `json:"team,omitempty"`
	Project    string  `json:"project,omitempty"`
	FileType   string  `json:"file_type,omitempty"`
	Page       int     `json:"page,omitempty"`
	Text       string  `json:"text"`
}

// QueryResponse is the body of GET /query.
type QueryResponse struct {
	Query     string        `json:"query"`
	Results   []QueryResult `json:"results"`
	Stale     int           `json:"stale"`
	LatencyMS int64         `json:"latency_ms"`
}

// RebuildResponse is the body of POST /index/rebuild.
type RebuildResponse struct {
	Entries    int   `json:"entries"`
	Reused     int   `json:"reused"`
	Reembedded int   `json:"reembedded"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// ReconcileResponse is the body of POST /index/reconcile.
type ReconcileResponse struct {
	OrphanChunks    int              `json:"orphan_chunks"`
	Inconsistencies map[string]int   `json:"inconsistencies"`
	Rebuilt         bool             `json:"rebuilt"`
	Rebuild         *RebuildResponse `json:"rebuild,omitempty"`
	DurationMS      int64            `json:"duration_ms"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.DetailedStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, invalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	resp, err := s.backend.Query(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := QueryResponse{
		Query:     resp.Query,
		Results:   make([]QueryResult, 0, len(resp.Results)),
		Stale:     resp.Stale,
		LatencyMS: resp.Latency.Milliseconds(),
	}
	for _, res := range resp.Results {
		if res == nil || res.Chunk == nil {
			continue
		}
		c := res.Chunk
		name := c.OriginalFilename
		if name == "" {
			name = c.Filename
		}
		out.Results = append(out.Results, QueryResult{
			Rank:       res.Rank,
			Score:      res.Score,
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			ChunkIndex: c.Index,
			Filename:   name,
			Team:       c.Team,
			Project:    c.Project,
			FileType:   c.FileType,
			Page:       c.Page,
			Text:       c.Text,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, invalidInput("text is required"))
		return
	}

	out, err := s.backend.IngestText(r.Context(), req.Name, req.Text, service.DocumentMeta{
		Team:        req.Team,
		Project:     req.Project,
		UploadedBy:  req.UploadedBy,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := IngestResponse{
		DocumentID:        out.DocumentID,
		Status:            string(out.Status),
		Segments:          out.Segments,
		ChunkCount:        out.ChunkCount,
		EmbeddingFailures: out.EmbeddingFailures,
		StorageFailures:   out.StorageFailures,
		DurationMS:        out.Duration.Milliseconds(),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	// A document that ended in error still exists; the body says why.
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Team:    q.Get("team"),
		Project: q.Get("project"),
		Status:  store.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, invalidInput("limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}

	docs, err := s.backend.ListDocuments(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, NewDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.backend.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.backend.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	reembed, _ := strconv.ParseBool(r.URL.Query().Get("reembed"))
	// Rebuilds run to completion even if the client goes away.
	res, err := s.backend.Rebuild(context.WithoutCancel(r.Context()), index.RebuildOptions{Reembed: reembed})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRebuildResponse(res))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.Reconcile(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := ReconcileResponse{
		OrphanChunks:    res.OrphanChunks,
		Inconsistencies: make(map[string]int),
		Rebuilt:         res.Rebuilt,
		DurationMS:      res.Duration.Milliseconds(),
	}
	if res.Check != nil {
		for _, t := range []index.InconsistencyType{
			index.InconsistencyStale, index.InconsistencyMissing,
			index.InconsistencyDuplicate, index.InconsistencyCount,
		} {
			out.Inconsistencies[t.String()] = res.Check.Count(t)
		}
	}
	if res.Rebuild != nil {
		rb := toRebuildResponse(res.Rebuild)
		out.Rebuild = &rb
	}
	writeJSON(w, http.StatusOK, out)
}

func toRebuildResponse(res *index.RebuildResult) RebuildResponse {
	return RebuildResponse{
		Entries:    res.Entries,
		Reused:     res.Reused,
		Reembedded: res.Reembedded,
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// NewDocumentResponse converts a stored document to its JSON form.
func NewDocumentResponse(d *store.Document) DocumentResponse {
	out := DocumentResponse{
		ID:               d.ID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		Team:             d.Team,
		Project:          d.Project,
		FileType:         d.FileType,
		FileSize:         d.FileSize,
		UploadedBy:       d.UploadedBy,
		Description:      d.Description,
		Status:           string(d.Status),
		ChunkCount:       d.ChunkCount,
		ErrorMessage:     d.ErrorMessage,
		UploadDate:       d.UploadDate,
	}
	if !d.ProcessedDate.IsZero() {
		processed := d.ProcessedDate
		out.ProcessedDate = &processed
	}
	return out
}

func documentID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidInput(fmt.Sprintf("invalid document id %q", raw))
	}
	return id, nil
}

func invalidInput(msg string) error {
	return dierrors.New(dierrors.ErrCodeInvalidInput, msg, nil)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dierrors.New(dierrors.ErrCodeInvalidInput, "request body too large", err)
		}
		return dierrors.New(dierrors.ErrCodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client closed the request; nginx uses 499 for this.
		return 499
	}

	switch dierrors.GetCode(err) {
	case dierrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case dierrors.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case dierrors.ErrCodeInvalidStatus:
		return http.StatusConflict
	case dierrors.ErrCodeEmbeddingTimeout:
		return http.StatusGatewayTimeout
	}
	if dierrors.IsEmbeddingFailure(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Code:      dierrors.GetCode(err),
		RequestID: RequestIDFrom(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_request_failed",
			slog.String("request_id", resp.RequestID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		if resp.Code == "" {
			resp.Error = "internal server error"
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http_write_failed", slog.String("error", err.Error()))
	}
}
