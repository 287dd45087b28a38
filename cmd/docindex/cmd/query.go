package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/service"
)

func newQueryCmd(a *app) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Find the chunks most similar to a question",
		Long: `Embed the question and return the most similar indexed chunks, best first,
with the document each chunk came from.`,
		Example: `  docindex query "how do I reset my VPN token"
  docindex query printer jam --limit 3 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return a.withService(cmd.Context(), func(svc *service.Service) error {
				resp, err := svc.Query(cmd.Context(), text, limit)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(queryJSON(resp))
				}
				printQuery(out, resp)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func queryJSON(resp *search.Response) mcp.QueryOutput {
	res := mcp.QueryOutput{
		Query:     resp.Query,
		Results:   make([]mcp.ResultOutput, 0, len(resp.Results)),
		Stale:     resp.Stale,
		LatencyMS: resp.Latency.Milliseconds(),
	}
	for _, r := range resp.Results {
		if r == nil || r.Chunk == nil {
			continue
		}
		res.Results = append(res.Results, mcp.ToResultOutput(r))
	}
	return res
}

func printQuery(out *output.Writer, resp *search.Response) {
	if len(resp.Results) == 0 {
		out.Warningf("No documents found for %q", resp.Query)
		return
	}

	out.Header(fmt.Sprintf("%d result(s) for %q", len(resp.Results), resp.Query))
	for _, r := range resp.Results {
		c := r.Chunk
		name := c.OriginalFilename
		if name == "" {
			name = c.Filename
		}
		title := fmt.Sprintf("%d. %s  [doc %d, chunk %d, score %.3f]", r.Rank, name, c.DocumentID, c.Index, r.Score)
		if c.Page > 0 {
			title = fmt.Sprintf("%d. %s p.%d  [doc %d, chunk %d, score %.3f]", r.Rank, name, c.Page, c.DocumentID, c.Index, r.Score)
		}
		out.Newline()
		out.Status("", title)
		out.Quote(c.Text)
	}
	if resp.Stale > 0 {
		out.Newline()
		out.Warningf("%d stale index entries skipped; run 'docindex reconcile'", resp.Stale)
	}
}
