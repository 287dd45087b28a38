package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

const (
	hnswMagic   = "DIXH"
	hnswVersion = uint32(2)

	// DefaultExactScanBelow is the index size under which every search
	// scores all vectors instead of walking the graph.
	DefaultExactScanBelow = 5000
)

// HNSWConfig configures the HNSW graph.
type HNSWConfig struct {
	Dimensions int
	// M is the maximum number of neighbors per node.
	M int
	// EfSearch is the minimum candidate list size during search.
	EfSearch int
	// ExactScanBelow is the size under which searches are exhaustive.
	// Zero means DefaultExactScanBelow; a negative value always uses the
	// graph.
	ExactScanBelow int
}

// HNSWIndex uses a coder/hnsw graph for candidate generation. Graph keys
// are positions. Candidates are re-scored by exact inner product so that
// ordering and tie-breaks match FlatIndex. Small indexes, and searches
// whose candidate count covers the whole index, bypass the graph and score
// every vector, so they return the same hits as FlatIndex. Above that size
// recall is bounded by the graph walk.
type HNSWIndex struct {
	graph  *hnsw.Graph[uint64]
	config HNSWConfig
	size   int
	gen    uint64

	// graphMu guards graph.EfSearch, which is raised per search.
	graphMu sync.Mutex
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.ExactScanBelow == 0 {
		cfg.ExactScanBelow = DefaultExactScanBelow
	}
	return &HNSWIndex{graph: newGraph(cfg), config: cfg}, nil
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	// Vectors are unit length, so cosine distance orders like inner product.
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Insert adds vec under the next position.
func (h *HNSWIndex) Insert(vec []float32) (int, error) {
	if len(vec) != h.config.Dimensions {
		return 0, dimensionMismatch(h.config.Dimensions, len(vec))
	}
	pos := h.size
	v := make([]float32, len(vec))
	copy(v, vec)
	h.graph.Add(hnsw.MakeNode(uint64(pos), v))
	h.size++
	return pos, nil
}

// Search returns up to k hits. Graph searches fetch max(4k, EfSearch)
// candidates with a candidate list at least that long, and re-score them
// exactly.
func (h *HNSWIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != h.config.Dimensions {
		return nil, dimensionMismatch(h.config.Dimensions, len(query))
	}
	if h.size == 0 || k <= 0 {
		return []Hit{}, nil
	}
	k = min(k, h.size)

	fetch := max(4*k, h.config.EfSearch)
	var (
		hits []Hit
		err  error
	)
	if fetch >= h.size || h.size < h.config.ExactScanBelow {
		hits, err = h.scanAll(query)
		if err != nil {
			return nil, err
		}
	} else {
		hits = h.searchGraph(query, fetch)
	}

	sort.Slice(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (h *HNSWIndex) scanAll(query []float32) ([]Hit, error) {
	hits := make([]Hit, 0, h.size)
	for pos := 0; pos < h.size; pos++ {
		vec, ok := h.graph.Lookup(uint64(pos))
		if !ok {
			return nil, dierrors.IndexCorruption(fmt.Sprintf("hnsw graph is missing position %d", pos))
		}
		hits = append(hits, Hit{Position: pos, Score: Dot(query, vec)})
	}
	return hits, nil
}

func (h *HNSWIndex) searchGraph(query []float32, fetch int) []Hit {
	h.graphMu.Lock()
	h.graph.EfSearch = max(h.config.EfSearch, fetch)
	nodes := h.graph.Search(query, fetch)
	h.graphMu.Unlock()

	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Hit{Position: int(node.Key), Score: Dot(query, node.Value)})
	}
	return hits
}

// Size returns the number of stored vectors.
func (h *HNSWIndex) Size() int {
	return h.size
}

// Dimension returns the vector dimension.
func (h *HNSWIndex) Dimension() int {
	return h.config.Dimensions
}

// Generation returns the position table generation of the index.
func (h *HNSWIndex) Generation() uint64 {
	return h.gen
}

// SetGeneration sets the generation written by the next Save.
func (h *HNSWIndex) SetGeneration(gen uint64) {
	h.gen = gen
}

// Save writes a header followed by the graph export, atomically.
func (h *HNSWIndex) Save(path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := writeSnapshotHeader(bw, hnswMagic, hnswVersion, h.config.Dimensions, h.size, h.gen); err != nil {
			return err
		}
		if h.size > 0 {
			h.graphMu.Lock()
			err := h.graph.Export(bw)
			h.graphMu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to export graph: %w", err)
			}
		}
		return bw.Flush()
	})
}

// Load replaces the index contents with the snapshot at path.
func (h *HNSWIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import needs an io.ByteReader.
	r := bufio.NewReader(file)
	dim, count, gen, err := readSnapshotHeader(r, hnswMagic, hnswVersion)
	if err != nil {
		return err
	}
	if dim != h.config.Dimensions {
		return dimensionMismatch(h.config.Dimensions, dim)
	}

	graph := newGraph(h.config)
	if count > 0 {
		if err := graph.Import(r); err != nil {
			return dierrors.IndexCorruption(fmt.Sprintf("failed to import graph: %v", err))
		}
		// Import restores the distance function by name; keep search params.
		graph.EfSearch = h.config.EfSearch
	}
	if graph.Len() != count {
		return dierrors.IndexCorruption(fmt.Sprintf("snapshot declares %d vectors, graph holds %d", count, graph.Len()))
	}
	h.graph = graph
	h.size = count
	h.gen = gen
	return nil
}
