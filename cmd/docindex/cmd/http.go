package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/api"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
)

func newHTTPCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the JSON HTTP API",
		Long: `Serve documents, queries and index maintenance over HTTP until interrupted.

  GET    /health
  GET    /stats
  GET    /query?q=...&limit=N
  GET    /documents
  POST   /documents
  GET    /documents/{id}
  DELETE /documents/{id}
  POST   /index/rebuild
  POST   /index/reconcile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.HTTPAddr = addr
			}
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				srv, err := api.NewServer(svc, a.cfg.Server)
				if err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Listening on http://%s", a.cfg.Server.HTTPAddr)
				slog.Info("http_server_started", slog.String("addr", a.cfg.Server.HTTPAddr))
				err = srv.Run(cmd.Context())
				slog.Info("http_server_stopped")
				return err
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}
