package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/extract"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var meta metaFlags
	var scan bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Keep an inbox directory indexed",
		Long: `Watch a directory and keep its documents indexed. New files are ingested,
changed files are re-ingested into their existing document and removed
files have their document deleted. Only supported formats are picked up.`,
		Example: `  docindex watch ~/inbox --team support --scan`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				w, err := watcher.NewInboxWatcher(dir, watcher.Options{
					Debounce:     a.cfg.WatchDebounce(),
					ScanExisting: scan,
					Accept:       extract.Supported,
				})
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				out.Successf("Watching %s (Ctrl+C to stop)", w.Dir())
				return w.Run(cmd.Context(), syncHandler(svc, out, meta.meta()))
			})
		},
	}

	meta.register(cmd)
	cmd.Flags().BoolVar(&scan, "scan", false, "Index files already in the directory on start")

	return cmd
}

// syncHandler applies inbox events to the service.
func syncHandler(svc *service.Service, out *output.Writer, meta service.DocumentMeta) watcher.Handler {
	return func(ctx context.Context, ev watcher.FileEvent) error {
		name := filepath.Base(ev.Path)
		slog.Debug("inbox_event", slog.String("path", ev.Path), slog.String("op", ev.Operation.String()))

		if ev.Operation == watcher.OpDelete {
			n, err := svc.RemoveFile(ctx, ev.Path)
			if err != nil {
				out.Errorf("%s: %v", name, err)
				return err
			}
			if n > 0 {
				out.Successf("%s removed (%d document(s) deleted)", name, n)
			}
			return nil
		}

		res, err := svc.SyncFile(ctx, ev.Path, meta)
		if err != nil {
			out.Errorf("%s: %v", name, err)
			return err
		}
		switch {
		case res.Unchanged:
			slog.Debug("inbox_file_unchanged", slog.String("path", ev.Path), slog.Int64("document_id", res.DocumentID))
		case res.Outcome.Status == store.StatusCompleted:
			out.Successf("%s: %s", name, describeOutcome(res.Outcome))
		default:
			out.Errorf("%s: %s", name, describeOutcome(res.Outcome))
		}
		return nil
	}
}
