package chunk

import (
	"sort"
	"strings"
	"unicode"
)

// Segmenter splits text into overlapping segments, preferring to cut at a
// sentence end, then a paragraph break, then a word break, each searched in
// the last 20% of the window, and finally cutting hard at Size characters.
type Segmenter struct {
	opts Options
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(opts Options) (*Segmenter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{opts: opts}, nil
}

// Options returns the segmenter configuration.
func (s *Segmenter) Options() Options {
	return s.opts
}

// Split segments text. Empty or whitespace-only text yields no segments;
// text of at most Size characters yields exactly one.
func (s *Segmenter) Split(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	size, overlap := s.opts.Size, s.opts.Overlap
	breaks := pageBreaks(runes)

	var segments []Segment
	emit := func(start, end int) {
		segments = append(segments, Segment{
			Index: len(segments),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
			Page:  pageAt(breaks, start),
		})
	}

	if n <= size {
		emit(0, n)
		return segments
	}

	start := 0
	for {
		end := start + size
		if end >= n {
			emit(start, n)
			return segments
		}

		cut := findCut(runes, start, end, size)
		if cut-overlap <= start {
			// A soft cut this early would not advance past the overlap.
			cut = end
		}
		emit(start, cut)
		start = cut - overlap
	}
}

// findCut returns the cut position for the window [start, end).
func findCut(runes []rune, start, end, size int) int {
	tail := size / 5
	if tail < 1 {
		tail = 1
	}
	lo := end - tail
	if lo <= start {
		lo = start + 1
	}

	if cut := lastIndex(runes, lo, end, isSentenceEnd); cut > 0 {
		return cut
	}
	if cut := lastIndex(runes, lo, end, isParagraphBreak); cut > 0 {
		return cut
	}
	if cut := lastIndex(runes, lo, end, isWordBreak); cut > 0 {
		return cut
	}
	return end
}

// lastIndex scans cut candidates from end down to lo and returns the first
// one accepted by match, or -1.
func lastIndex(runes []rune, lo, end int, match func([]rune, int) bool) int {
	for i := end; i >= lo; i-- {
		if match(runes, i) {
			return i
		}
	}
	return -1
}

// isSentenceEnd reports whether a cut at i directly follows sentence-ending
// punctuation that is itself followed by whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	if i < 1 || i >= len(runes) {
		return false
	}
	switch runes[i-1] {
	case '.', '!', '?', '。', '！', '？':
		return unicode.IsSpace(runes[i])
	}
	return false
}

func isParagraphBreak(runes []rune, i int) bool {
	return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n'
}

func isWordBreak(runes []rune, i int) bool {
	return i >= 1 && unicode.IsSpace(runes[i-1])
}

// pageBreaks returns the ascending offsets of every PageBreak in runes.
func pageBreaks(runes []rune) []int {
	var out []int
	for i, r := range runes {
		if r == PageBreak {
			out = append(out, i)
		}
	}
	return out
}

// pageAt returns the 1-based page containing offset, or 0 for text without
// page breaks.
func pageAt(breaks []int, offset int) int {
	if len(breaks) == 0 {
		return 0
	}
	return 1 + sort.SearchInts(breaks, offset)
}
