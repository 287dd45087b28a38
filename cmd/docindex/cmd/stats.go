package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

func newStatsCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and document statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				st, err := svc.DetailedStats(cmd.Context())
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(st)
				}
				printStats(out, st)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

func printStats(out *output.Writer, st *service.DetailedStats) {
	out.Header("Index")
	out.KeyValues(
		"Kind", st.IndexKind,
		"Model", st.Model,
		"Dimension", fmt.Sprint(st.Dimension),
		"Entries", fmt.Sprint(st.EntryCount),
		"Chunks", fmt.Sprint(st.ChunkCount),
		"Queries", fmt.Sprint(st.Queries),
	)

	out.Newline()
	out.Header(fmt.Sprintf("Documents (%d)", st.Documents))
	var pairs []string
	for _, s := range store.Statuses {
		pairs = append(pairs, string(s), fmt.Sprint(st.ByStatus[string(s)]))
	}
	out.KeyValues(pairs...)

	if len(st.ByTeam) > 0 {
		teams := make([]string, 0, len(st.ByTeam))
		for t := range st.ByTeam {
			teams = append(teams, t)
		}
		sort.Strings(teams)

		out.Newline()
		out.Header("Teams")
		pairs = pairs[:0]
		for _, t := range teams {
			label := t
			if label == "" {
				label = "(none)"
			}
			pairs = append(pairs, label, fmt.Sprint(st.ByTeam[t]))
		}
		out.KeyValues(pairs...)
	}

	if m := st.QueryMetrics; m != nil && m.TotalQueries > 0 {
		out.Newline()
		out.Header("Queries this session")
		pairs = []string{
			"Total", fmt.Sprint(m.TotalQueries),
			"No results", fmt.Sprintf("%d (%.1f%%)", m.ZeroResultCount, m.ZeroResultPercentage()),
			"Repeated", fmt.Sprint(m.ExactRepeatCount),
		}
		for _, b := range telemetry.Buckets {
			pairs = append(pairs, "Latency "+string(b), fmt.Sprint(m.LatencyDistribution[b]))
		}
		out.KeyValues(pairs...)
	}

	if st.EntryCount != st.ChunkCount {
		out.Newline()
		out.Warningf("Index has %d entries for %d chunks; run 'docindex reconcile'", st.EntryCount, st.ChunkCount)
	}
}
