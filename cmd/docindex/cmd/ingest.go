package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
)

// metaFlags binds the document metadata flags shared by ingest commands.
type metaFlags struct {
	team        string
	project     string
	uploadedBy  string
	description string
}

func (m *metaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.team, "team", "", "Team that owns the documents")
	cmd.Flags().StringVar(&m.project, "project", "", "Project the documents belong to")
	cmd.Flags().StringVar(&m.uploadedBy, "uploaded-by", "", "Uploader recorded with the documents")
	cmd.Flags().StringVar(&m.description, "description", "", "Free-form description")
}

func (m *metaFlags) meta() service.DocumentMeta {
	return service.DocumentMeta{
		Team:        m.team,
		Project:     m.project,
		UploadedBy:  m.uploadedBy,
		Description: m.description,
	}
}

func newIngestCmd(a *app) *cobra.Command {
	var meta metaFlags
	var workers int

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk, embed and index files",
		Long: `Ingest one or more files. Supported formats are .txt, .md, .docx and .pdf.

Each file becomes a document. A file that yields no text still gets a
document, which ends in error status. Files are processed concurrently.`,
		Example: `  docindex ingest handbook.pdf faq.md --team it --project helpdesk
  docindex ingest reports/*.docx --workers 8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers > 0 {
				a.cfg.Ingest.Workers = workers
			}
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				return runIngest(cmd, svc, args, meta.meta())
			})
		},
	}

	meta.register(cmd)
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Files ingested concurrently (default from config)")

	return cmd
}

func runIngest(cmd *cobra.Command, svc *service.Service, paths []string, meta service.DocumentMeta) error {
	out := output.New(cmd.OutOrStdout())
	progress := out.NewProgress(len(paths), "Ingesting")

	results := svc.IngestFiles(cmd.Context(), paths, meta, func(r service.FileResult) {
		progress.Step(filepath.Base(r.Path))
	})
	progress.Finish()

	var completed, chunks int
	var failed []string
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = append(failed, fmt.Sprintf("%s: %v", r.Path, r.Err))
		case r.Outcome.Status == store.StatusCompleted:
			completed++
			chunks += r.Outcome.ChunkCount
			if r.Outcome.EmbeddingFailures > 0 {
				out.Warningf("%s: %d chunks skipped after embedding failures", r.Path, r.Outcome.EmbeddingFailures)
			}
		default:
			failed = append(failed, fmt.Sprintf("%s: %s", r.Path, describeOutcome(r.Outcome)))
		}
	}

	out.Successf("Indexed %d of %d files (%d chunks)", completed, len(paths), chunks)
	for _, f := range failed {
		out.Error(f)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(failed), len(paths))
	}
	return nil
}

func newIngestTextCmd(a *app) *cobra.Command {
	var meta metaFlags
	var id int64
	var name, text string

	cmd := &cobra.Command{
		Use:   "ingest-text",
		Short: "Index text from --text or stdin",
		Long: `Index plain text. With --id the text replaces the content of an existing
document; its previous chunks are deleted and the index is reconciled.
Otherwise a new document named --name is created.`,
		Example: `  echo "Reset the router by holding the button" | docindex ingest-text --name router.txt
  docindex ingest-text --id 12 --text "Updated VPN instructions"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == 0 && strings.TrimSpace(name) == "" {
				return fmt.Errorf("either --id or --name is required")
			}
			if !cmd.Flags().Changed("text") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}

			return a.withService(cmd.Context(), func(svc *service.Service) error {
				var o *index.Outcome
				var err error
				if id != 0 {
					o, err = svc.Ingest(cmd.Context(), id, text)
				} else {
					o, err = svc.IngestText(cmd.Context(), name, text, meta.meta())
				}
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				if o.Status != store.StatusCompleted {
					out.Error(describeOutcome(o))
					return fmt.Errorf("document %d ended in error", o.DocumentID)
				}
				out.Success(describeOutcome(o))
				return nil
			})
		},
	}

	meta.register(cmd)
	cmd.Flags().Int64Var(&id, "id", 0, "Existing document to re-ingest")
	cmd.Flags().StringVar(&name, "name", "", "Name of the new document")
	cmd.Flags().StringVar(&text, "text", "", "Text to index (default: read stdin)")

	return cmd
}

func describeOutcome(o *index.Outcome) string {
	if o.Status == store.StatusCompleted {
		msg := fmt.Sprintf("Document %d indexed: %d chunks", o.DocumentID, o.ChunkCount)
		if o.Replaced > 0 {
			msg += fmt.Sprintf(", %d replaced", o.Replaced)
		}
		if o.EmbeddingFailures > 0 {
			msg += fmt.Sprintf(", %d skipped after embedding failures", o.EmbeddingFailures)
		}
		return msg
	}
	reason := "no text"
	if o.Err != nil {
		reason = o.Err.Error()
	}
	return fmt.Sprintf("Document %d ended in error: %s", o.DocumentID, reason)
}
