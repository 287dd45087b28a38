package store

import "fmt"

// Index kinds.
const (
	IndexFlat = "flat"
	IndexHNSW = "hnsw"
)

// IndexOptions selects and sizes a vector index.
type IndexOptions struct {
	Kind       string
	Dimensions int
	M          int
	EfSearch   int
}

// NewVectorIndex creates an empty index of the requested kind.
func NewVectorIndex(opts IndexOptions) (VectorIndex, error) {
	switch opts.Kind {
	case "", IndexFlat:
		return NewFlatIndex(opts.Dimensions)
	case IndexHNSW:
		return NewHNSWIndex(HNSWConfig{Dimensions: opts.Dimensions, M: opts.M, EfSearch: opts.EfSearch})
	default:
		return nil, fmt.Errorf("unknown index kind %q", opts.Kind)
	}
}
