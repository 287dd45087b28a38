package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
)

var inconsistencyTypes = []index.InconsistencyType{
	index.InconsistencyStale,
	index.InconsistencyMissing,
	index.InconsistencyDuplicate,
	index.InconsistencyCount,
}

func newReconcileCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check the index against the metadata store and repair it",
		Long: `Remove chunks whose document no longer exists, compare the vector index
with the metadata store and rebuild the index when they disagree.

With --dry-run only the comparison runs and nothing is changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				out := output.New(cmd.OutOrStdout())
				if dryRun {
					check, err := svc.Check(cmd.Context())
					if err != nil {
						return err
					}
					printCheck(out, check)
					return nil
				}

				res, err := svc.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				if res.OrphanChunks > 0 {
					out.Warningf("Removed %d orphan chunks", res.OrphanChunks)
				}
				printCheck(out, res.Check)
				if res.Rebuilt {
					printRebuild(out, res.Rebuild)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report inconsistencies without repairing them")

	return cmd
}

func printCheck(out *output.Writer, check *index.CheckResult) {
	if check == nil {
		return
	}
	if check.Consistent() {
		out.Successf("Index consistent: %d entries for %d chunks", check.Entries, check.Checked)
		return
	}
	out.Warningf("%d inconsistencies: %d entries for %d chunks", len(check.Inconsistencies), check.Entries, check.Checked)
	var pairs []string
	for _, t := range inconsistencyTypes {
		if n := check.Count(t); n > 0 {
			pairs = append(pairs, t.String(), fmt.Sprint(n))
		}
	}
	out.KeyValues(pairs...)
}
