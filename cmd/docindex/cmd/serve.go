package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		Long: `Run an MCP server on stdin/stdout exposing query_documents, ingest_text,
index_stats, rebuild_index and reconcile_index. Logs go to the log file
so stdout carries only protocol messages.`,
		Example: `  # in an MCP client configuration
  {"command": "docindex", "args": ["serve"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				srv, err := mcp.NewServer(svc, a.cfg)
				if err != nil {
					return err
				}
				return srv.Serve(cmd.Context())
			})
		},
	}
}
