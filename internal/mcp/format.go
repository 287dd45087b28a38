package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
)

// FormatQueryResults formats a query response as markdown.
func FormatQueryResults(resp *search.Response) string {
	valid := filterValidResults(resp.Results)
	if len(valid) == 0 {
		return fmt.Sprintf("No documents found for \"%s\"", resp.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for \"%s\"\n\n", resp.Query)
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for _, r := range valid {
		formatResult(&sb, r)
	}
	return sb.String()
}

// filterValidResults removes results with nil chunks.
func filterValidResults(results []*search.Result) []*search.Result {
	valid := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if r != nil && r.Chunk != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

func formatResult(sb *strings.Builder, r *search.Result) {
	c := r.Chunk
	fmt.Fprintf(sb, "### %d. %s", r.Rank, displayName(c))
	if c.Page > 0 {
		fmt.Fprintf(sb, " (page %d)", c.Page)
	}
	fmt.Fprintf(sb, " (score: %.2f)\n", r.Score)

	var labels []string
	if c.Team != "" {
		labels = append(labels, "**Team:** "+c.Team)
	}
	if c.Project != "" {
		labels = append(labels, "**Project:** "+c.Project)
	}
	if len(labels) > 0 {
		sb.WriteString(strings.Join(labels, " | "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// Quote the chunk so document markdown does not break the layout.
	for _, line := range strings.Split(c.Text, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func displayName(c *store.ChunkRecord) string {
	if c.OriginalFilename != "" {
		return c.OriginalFilename
	}
	if c.Filename != "" {
		return c.Filename
	}
	return fmt.Sprintf("document %d", c.DocumentID)
}

// ToResultOutput converts a search result to the structured output format.
func ToResultOutput(r *search.Result) ResultOutput {
	if r == nil || r.Chunk == nil {
		return ResultOutput{}
	}
	return ResultOutput{
		Rank:       r.Rank,
		Score:      float64(r.Score),
		DocumentID: r.Chunk.DocumentID,
		ChunkID:    r.Chunk.ID,
		ChunkIndex: r.Chunk.Index,
		Filename:   displayName(r.Chunk),
		Team:       r.Chunk.Team,
		Project:    r.Chunk.Project,
		Page:       r.Chunk.Page,
		Text:       r.Chunk.Text,
	}
}

// FormatIngestResult formats an ingest_text outcome.
func FormatIngestResult(out IngestTextOutput) string {
	if out.Status == string(store.StatusCompleted) {
		msg := fmt.Sprintf("Document %d indexed: %d chunk", out.DocumentID, out.Chunks)
		if out.Chunks != 1 {
			msg += "s"
		}
		if out.EmbeddingFailures > 0 {
			msg += fmt.Sprintf(" (%d skipped after embedding failures)", out.EmbeddingFailures)
		}
		return msg + "."
	}
	return fmt.Sprintf("Document %d ended in %s: %s", out.DocumentID, out.Status, out.Error)
}

// FormatIndexStats formats index statistics as markdown.
func FormatIndexStats(st IndexStatsOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Statistics\n\n")
	fmt.Fprintf(&sb, "- **Index:** %s, %d entries, dimension %d\n", st.IndexKind, st.EntryCount, st.Dimension)
	fmt.Fprintf(&sb, "- **Model:** %s\n", st.Model)
	fmt.Fprintf(&sb, "- **Documents:** %d\n", st.Documents)
	fmt.Fprintf(&sb, "- **Chunks:** %d indexable of %d stored\n", st.ChunkCount, st.TotalChunks)
	fmt.Fprintf(&sb, "- **Queries:** %d\n", st.Queries)

	statuses := make([]string, 0, len(store.Statuses))
	for _, status := range store.Statuses {
		statuses = append(statuses, fmt.Sprintf("%s %d", status, st.ByStatus[string(status)]))
	}
	fmt.Fprintf(&sb, "- **By status:** %s\n", strings.Join(statuses, ", "))

	if len(st.ByTeam) > 0 {
		teams := make([]string, 0, len(st.ByTeam))
		for team := range st.ByTeam {
			teams = append(teams, team)
		}
		sort.Strings(teams)
		parts := make([]string, len(teams))
		for i, team := range teams {
			name := team
			if name == "" {
				name = "(none)"
			}
			parts[i] = fmt.Sprintf("%s %d", name, st.ByTeam[team])
		}
		fmt.Fprintf(&sb, "- **By team:** %s\n", strings.Join(parts, ", "))
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
