package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents with their chunks and index entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid document id %q", arg)
				}
				ids = append(ids, id)
			}

			return a.withService(cmd.Context(), func(svc *service.Service) error {
				out := output.New(cmd.OutOrStdout())
				var failed int
				for _, id := range ids {
					if err := svc.DeleteDocument(cmd.Context(), id); err != nil {
						out.Errorf("document %d: %v", id, err)
						failed++
						continue
					}
					out.Successf("Deleted document %d", id)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d deletions failed", failed, len(ids))
				}
				return nil
			})
		},
	}
}
