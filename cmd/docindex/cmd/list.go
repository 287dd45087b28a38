package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/api"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
)

func newListCmd(a *app) *cobra.Command {
	var opts store.ListOptions
	var status string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents and their processing status",
		Example: `  docindex list --team it
  docindex list --status error --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" {
				st, err := store.ParseStatus(status)
				if err != nil {
					return err
				}
				opts.Status = st
			}
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				docs, err := svc.ListDocuments(cmd.Context(), opts)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					res := make([]api.DocumentResponse, 0, len(docs))
					for _, d := range docs {
						res = append(res, api.NewDocumentResponse(d))
					}
					return out.JSON(res)
				}
				printDocuments(out, docs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Team, "team", "", "Only documents of this team")
	cmd.Flags().StringVar(&opts.Project, "project", "", "Only documents of this project")
	cmd.Flags().StringVar(&status, "status", "", "Only documents in this status (pending, processing, completed, error)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum documents (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output documents as JSON")

	return cmd
}

func printDocuments(out *output.Writer, docs []*store.Document) {
	if len(docs) == 0 {
		out.Status("", "No documents")
		return
	}
	out.Statusf("", "%-6s %-10s %-7s %-12s %s", "ID", "STATUS", "CHUNKS", "TEAM", "NAME")
	for _, d := range docs {
		name := d.OriginalFilename
		if name == "" {
			name = d.Filename
		}
		out.Statusf("", "%-6d %-10s %-7d %-12s %s", d.ID, d.Status, d.ChunkCount, d.Team, name)
		if d.Status == store.StatusError && d.ErrorMessage != "" {
			out.Statusf("", "       %s", d.ErrorMessage)
		}
	}
	out.Newline()
	out.Statusf("", "%d document(s)", len(docs))
}
