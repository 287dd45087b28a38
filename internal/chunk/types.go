// Package chunk splits cleaned document text into overlapping segments.
package chunk

import "fmt"

// Segment defaults, in characters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// PageBreak separates pages in extracted text. Segments report the page
// they start on when the text contains page breaks.
const PageBreak = '\f'

// Segment is one contiguous piece of a document.
type Segment struct {
	// Index is the 0-based ordinal within the document.
	Index int
	// Text is the segment content.
	Text string
	// Start and End are rune offsets into the source text, End exclusive.
	Start int
	End   int
	// Page is the 1-based page the segment starts on, or 0 if unknown.
	Page int
}

// Options configures a Segmenter.
type Options struct {
	// Size is the target segment length in characters.
	Size int
	// Overlap is how many trailing characters of a segment are repeated at
	// the head of the next one. Must be smaller than Size.
	Overlap int
}

// DefaultOptions returns the default segmenter options.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate returns an error if the options cannot produce segments.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("segment size must be positive, got %d", o.Size)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("overlap must be in [0, %d), got %d", o.Size, o.Overlap)
	}
	return nil
}
