package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// Backend is the part of the service the tools call. *service.Service
// satisfies it.
type Backend interface {
	Query(ctx context.Context, text string, limit int) (*search.Response, error)
	IngestText(ctx context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error)
	DetailedStats(ctx context.Context) (*service.DetailedStats, error)
	Rebuild(ctx context.Context, opts index.RebuildOptions) (*index.RebuildResult, error)
	Reconcile(ctx context.Context) (*index.ReconcileResult, error)
}

// Server is the MCP server for docindex. It exposes querying, ingestion
// and index maintenance to AI clients over stdio.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger

	defaultLimit int
	maxLimit     int
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolQueryDocuments,
		Description: "Find passages in the indexed documents that answer a natural-language question. Results are ranked by semantic similarity and carry the source document, team, project and page.",
	},
	{
		Name:        ToolIngestText,
		Description: "Add a text document to the index. The text is split into overlapping chunks, embedded and made searchable immediately.",
	},
	{
		Name:        ToolIndexStats,
		Description: "Report index size, embedding model and document counts by status and team.",
	},
	{
		Name:        ToolRebuildIndex,
		Description: "Rebuild the vector index from every chunk of every completed document. Set reembed to recompute all embeddings.",
	},
	{
		Name:        ToolReconcileIndex,
		Description: "Remove orphan chunks and rebuild the index if it no longer matches the stored documents.",
	},
}

// NewServer creates a new MCP server backed by backend.
func NewServer(backend Backend, cfg *config.Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		backend:      backend,
		logger:       slog.Default(),
		defaultLimit: cfg.Search.DefaultLimit,
		maxLimit:     cfg.Search.MaxLimit,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "docindex",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolInfos...)
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolQueryDocuments:
		return callWithArgs(ctx, s, name, args, s.queryDocuments)
	case ToolIngestText:
		return callWithArgs(ctx, s, name, args, s.ingestText)
	case ToolIndexStats:
		return callWithArgs(ctx, s, name, args, s.indexStats)
	case ToolRebuildIndex:
		return callWithArgs(ctx, s, name, args, s.rebuildIndex)
	case ToolReconcileIndex:
		return callWithArgs(ctx, s, name, args, s.reconcileIndex)
	default:
		return "", NewMethodNotFoundError(name)
	}
}

// Serve runs the server on stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// toolFunc is a tool body: it returns the markdown rendering and the
// structured output.
type toolFunc[In, Out any] func(ctx context.Context, in In) (string, Out, error)

func (s *Server) registerTools() {
	s.logger.Debug("registering_mcp_tools")

	mcp.AddTool(s.mcp, s.tool(ToolQueryDocuments), sdkHandler(s, ToolQueryDocuments, s.queryDocuments))
	mcp.AddTool(s.mcp, s.tool(ToolIngestText), sdkHandler(s, ToolIngestText, s.ingestText))
	mcp.AddTool(s.mcp, s.tool(ToolIndexStats), sdkHandler(s, ToolIndexStats, s.indexStats))
	mcp.AddTool(s.mcp, s.tool(ToolRebuildIndex), sdkHandler(s, ToolRebuildIndex, s.rebuildIndex))
	mcp.AddTool(s.mcp, s.tool(ToolReconcileIndex), sdkHandler(s, ToolReconcileIndex, s.reconcileIndex))

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) tool(name string) *mcp.Tool {
	for _, info := range toolInfos {
		if info.Name == name {
			return &mcp.Tool{Name: info.Name, Description: info.Description}
		}
	}
	panic("mcp: unknown tool " + name)
}

// sdkHandler adapts a tool body to the SDK: the markdown becomes the text
// content and the output becomes the structured content.
func sdkHandler[In, Out any](s *Server, name string, fn toolFunc[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		text, out, err := invoke(ctx, s, name, in, fn)
		if err != nil {
			var zero Out
			return nil, zero, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	}
}

func callWithArgs[In, Out any](ctx context.Context, s *Server, name string, args map[string]any, fn toolFunc[In, Out]) (string, error) {
	var in In
	if len(args) > 0 {
		data, err := json.Marshal(args)
		if err != nil {
			return "", NewInvalidParamsError(err.Error())
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return "", NewInvalidParamsError(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
	}
	text, _, err := invoke(ctx, s, name, in, fn)
	return text, err
}

// invoke runs fn with request-scoped logging and maps its error.
func invoke[In, Out any](ctx context.Context, s *Server, name string, in In, fn toolFunc[In, Out]) (string, Out, error) {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("mcp_tool_started",
		slog.String("request_id", requestID),
		slog.String("tool", name))

	text, out, err := fn(ctx, in)
	duration := time.Since(start)
	if err != nil {
		mapped := MapError(err)
		s.logger.Error("mcp_tool_failed",
			slog.String("request_id", requestID),
			slog.String("tool", name),
			slog.Duration("duration", duration),
			slog.Int("code", mapped.Code),
			slog.String("error", err.Error()))
		return "", out, mapped
	}

	s.logger.Info("mcp_tool_completed",
		slog.String("request_id", requestID),
		slog.String("tool", name),
		slog.Duration("duration", duration))
	return text, out, nil
}

func (s *Server) queryDocuments(ctx context.Context, in QueryInput) (string, QueryOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", QueryOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(in.Limit, s.defaultLimit, 1, s.maxLimit)

	resp, err := s.backend.Query(ctx, in.Query, limit)
	if err != nil {
		return "", QueryOutput{}, err
	}

	out := QueryOutput{
		Query:     resp.Query,
		Results:   make([]ResultOutput, 0, len(resp.Results)),
		Stale:     resp.Stale,
		LatencyMS: resp.Latency.Milliseconds(),
	}
	for _, r := range filterValidResults(resp.Results) {
		out.Results = append(out.Results, ToResultOutput(r))
	}
	return FormatQueryResults(resp), out, nil
}

func (s *Server) ingestText(ctx context.Context, in IngestTextInput) (string, IngestTextOutput, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", IngestTextOutput{}, NewInvalidParamsError("name parameter is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return "", IngestTextOutput{}, NewInvalidParamsError("text parameter is required")
	}

	outcome, err := s.backend.IngestText(ctx, in.Name, in.Text, service.DocumentMeta{
		Team:        in.Team,
		Project:     in.Project,
		UploadedBy:  in.UploadedBy,
		Description: in.Description,
	})
	if err != nil {
		return "", IngestTextOutput{}, err
	}

	out := IngestTextOutput{
		DocumentID:        outcome.DocumentID,
		Status:            string(outcome.Status),
		Chunks:            outcome.ChunkCount,
		EmbeddingFailures: outcome.EmbeddingFailures,
	}
	if outcome.Err != nil {
		out.Error = outcome.Err.Error()
	}
	return FormatIngestResult(out), out, nil
}

func (s *Server) indexStats(ctx context.Context, _ IndexStatsInput) (string, IndexStatsOutput, error) {
	st, err := s.backend.DetailedStats(ctx)
	if err != nil {
		return "", IndexStatsOutput{}, err
	}
	out := IndexStatsOutput{
		EntryCount:  st.EntryCount,
		ChunkCount:  st.ChunkCount,
		Dimension:   st.Dimension,
		IndexKind:   st.IndexKind,
		Model:       st.Model,
		Documents:   st.Documents,
		ByStatus:    st.ByStatus,
		ByTeam:      st.ByTeam,
		TotalChunks: st.TotalChunks,
		Queries:     st.Queries,
	}
	return FormatIndexStats(out), out, nil
}

func (s *Server) rebuildIndex(ctx context.Context, in RebuildInput) (string, RebuildOutput, error) {
	res, err := s.backend.Rebuild(ctx, index.RebuildOptions{Reembed: in.Reembed})
	if err != nil {
		return "", RebuildOutput{}, err
	}
	out := RebuildOutput{
		Entries:    res.Entries,
		Reused:     res.Reused,
		Reembedded: res.Reembedded,
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
	}
	text := fmt.Sprintf("Index rebuilt: %d entries (%d reused, %d re-embedded, %d skipped) in %s.",
		out.Entries, out.Reused, out.Reembedded, out.Skipped, res.Duration.Round(time.Millisecond))
	return text, out, nil
}

func (s *Server) reconcileIndex(ctx context.Context, _ ReconcileInput) (string, ReconcileOutput, error) {
	res, err := s.backend.Reconcile(ctx)
	if err != nil {
		return "", ReconcileOutput{}, err
	}
	out := ReconcileOutput{
		OrphanChunks: res.OrphanChunks,
		Rebuilt:      res.Rebuilt,
		DurationMS:   res.Duration.Milliseconds(),
	}
	if res.Check != nil {
		out.Inconsistencies = len(res.Check.Inconsistencies)
		out.Entries = res.Check.Entries
	}
	if res.Rebuild != nil {
		out.Entries = res.Rebuild.Entries
	}

	var text string
	if res.Rebuilt {
		text = fmt.Sprintf("Index rebuilt after %d inconsistencies: %d entries.", out.Inconsistencies, out.Entries)
	} else {
		text = fmt.Sprintf("Index consistent: %d entries.", out.Entries)
	}
	if out.OrphanChunks > 0 {
		text += fmt.Sprintf(" Removed %d orphan chunks.", out.OrphanChunks)
	}
	return text, out, nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
