// Package extract turns uploaded files into cleaned UTF-8 text. Extraction
// never fails loudly: unsupported, oversized or corrupt input yields an
// empty string, which ingestion treats as a document without content.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docindex/internal/chunk"
)

// DefaultMaxFileSizeMB is the largest file accepted for extraction.
const DefaultMaxFileSizeMB = 50

// File types recognized by extension.
const (
	TypeText     = "txt"
	TypeMarkdown = "md"
	TypeDocx     = "docx"
	TypePDF      = "pdf"
)

var typesByExt = map[string]string{
	".txt":      TypeText,
	".text":     TypeText,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".docx":     TypeDocx,
	".pdf":      TypePDF,
}

// FileType returns the file type for path, or "" when unsupported.
func FileType(path string) string {
	return typesByExt[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether path has an extension the extractor handles.
func Supported(path string) bool {
	return FileType(path) != ""
}

// Extractor reads files and returns their text.
type Extractor struct {
	maxBytes int64
}

// New creates an Extractor that rejects files above maxSizeMB. A
// non-positive limit selects DefaultMaxFileSizeMB.
func New(maxSizeMB int) *Extractor {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxFileSizeMB
	}
	return &Extractor{maxBytes: int64(maxSizeMB) << 20}
}

// MaxBytes returns the size limit in bytes.
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

// Extract reads path and returns its cleaned text, or "" when the file is
// unsupported, too large, unreadable or corrupt.
func (e *Extractor) Extract(path string) string {
	log := slog.With(slog.String("path", path))

	fileType := FileType(path)
	if fileType == "" {
		log.Warn("extract_unsupported_type", slog.String("ext", filepath.Ext(path)))
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Warn("extract_stat_failed", slog.String("error", err.Error()))
		return ""
	}
	if info.Size() > e.maxBytes {
		log.Warn("extract_file_too_large",
			slog.Int64("size", info.Size()),
			slog.Int64("max", e.maxBytes))
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("extract_read_failed", slog.String("error", err.Error()))
		return ""
	}
	return e.ExtractBytes(fileType, data)
}

// ExtractBytes extracts text from data of the given file type.
func (e *Extractor) ExtractBytes(fileType string, data []byte) string {
	if int64(len(data)) > e.maxBytes {
		slog.Warn("extract_file_too_large",
			slog.Int("size", len(data)),
			slog.Int64("max", e.maxBytes))
		return ""
	}

	var (
		text string
		err  error
	)
	switch fileType {
	case TypeText, TypeMarkdown:
		text, err = plainText(data)
	case TypeDocx:
		text, err = docxText(data)
	case TypePDF:
		text, err = pdfText(data)
	default:
		err = fmt.Errorf("unsupported file type %q", fileType)
	}
	if err != nil {
		slog.Warn("extract_failed",
			slog.String("type", fileType),
			slog.String("error", err.Error()))
		return ""
	}
	return chunk.CleanText(text)
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8")
	}
	return string(data), nil
}
