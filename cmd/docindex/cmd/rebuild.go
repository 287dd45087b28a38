package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
)

func newRebuildCmd(a *app) *cobra.Command {
	var reembed bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from the metadata store",
		Long: `Discard the vector index and rebuild it from every chunk of every completed
document. Stored vectors are reused unless --reembed is given; chunks
without a usable vector are embedded again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				out := output.New(cmd.OutOrStdout())

				st, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				progress := out.NewProgress(st.ChunkCount, "Rebuilding")
				res, err := svc.Rebuild(cmd.Context(), index.RebuildOptions{
					Reembed:  reembed,
					Progress: progress.Set,
				})
				progress.Finish()
				if err != nil {
					return err
				}
				printRebuild(out, res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reembed, "reembed", false, "Embed every chunk again instead of reusing stored vectors")

	return cmd
}

func printRebuild(out *output.Writer, res *index.RebuildResult) {
	out.Successf("Index rebuilt: %d entries in %s", res.Entries, res.Duration.Round(time.Millisecond))
	out.KeyValues(
		"Reused", fmt.Sprint(res.Reused),
		"Re-embedded", fmt.Sprint(res.Reembedded),
		"Skipped", fmt.Sprint(res.Skipped),
	)
	if res.Skipped > 0 {
		out.Warningf("%d chunks could not be embedded and are not searchable", res.Skipped)
	}
}
