package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/docindex/internal/chunk"
)

// pdfText returns the plain text of every page that has any, with pages
// separated by chunk.PageBreak so segments can report their page. An
// unreadable page is skipped.
func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf_page_unreadable",
				slog.Int("page", i),
				slog.String("error", err.Error()))
			content = ""
		}
		pages = append(pages, strings.TrimSpace(content))
	}

	// Keep empty pages as separators so page numbers stay aligned.
	joined := strings.Join(pages, string(chunk.PageBreak))
	if strings.Trim(joined, string(chunk.PageBreak)) == "" {
		return "", nil
	}
	return joined, nil
}
