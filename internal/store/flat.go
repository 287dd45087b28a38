package store

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Snapshot header of the flat index.
const (
	flatMagic   = "DIXF"
	flatVersion = uint32(2)
)

// FlatIndex is an exact inner-product index over a contiguous arena of
// vectors. Position i is the i-th inserted vector.
type FlatIndex struct {
	dim  int
	data []float32
	gen  uint64
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty index for vectors of dimension dim.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Insert appends vec, which must already be unit length.
func (f *FlatIndex) Insert(vec []float32) (int, error) {
	if len(vec) != f.dim {
		return 0, dimensionMismatch(f.dim, len(vec))
	}
	pos := f.Size()
	f.data = append(f.data, vec...)
	return pos, nil
}

// Search scans every vector and keeps the k best.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, dimensionMismatch(f.dim, len(query))
	}
	n := f.Size()
	if n == 0 || k <= 0 {
		return []Hit{}, nil
	}
	k = min(k, n)

	h := make(hitHeap, 0, k)
	for pos := 0; pos < n; pos++ {
		hit := Hit{Position: pos, Score: Dot(query, f.row(pos))}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if better(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	return h.sorted(), nil
}

// Vector returns a copy of the vector at pos.
func (f *FlatIndex) Vector(pos int) ([]float32, bool) {
	if pos < 0 || pos >= f.Size() {
		return nil, false
	}
	out := make([]float32, f.dim)
	copy(out, f.row(pos))
	return out, true
}

func (f *FlatIndex) row(pos int) []float32 {
	return f.data[pos*f.dim : (pos+1)*f.dim]
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	return len(f.data) / f.dim
}

// Dimension returns the vector dimension.
func (f *FlatIndex) Dimension() int {
	return f.dim
}

// Generation returns the position table generation of the index.
func (f *FlatIndex) Generation() uint64 {
	return f.gen
}

// SetGeneration sets the generation written by the next Save.
func (f *FlatIndex) SetGeneration(gen uint64) {
	f.gen = gen
}

// Save writes the index to path atomically.
func (f *FlatIndex) Save(path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := writeSnapshotHeader(bw, flatMagic, flatVersion, f.dim, f.Size(), f.gen); err != nil {
			return err
		}
		buf := make([]byte, 4)
		for _, v := range f.data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// Load replaces the index contents with the snapshot at path.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	dim, count, gen, err := readSnapshotHeader(r, flatMagic, flatVersion)
	if err != nil {
		return err
	}
	if dim != f.dim {
		return dimensionMismatch(f.dim, dim)
	}

	data := make([]float32, count*dim)
	buf := make([]byte, 4)
	for i := range data {
		if _, err := io.ReadFull(r, buf); err != nil {
			return dierrors.IndexCorruption(fmt.Sprintf("snapshot truncated after %d values: %v", i, err))
		}
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return dierrors.IndexCorruption("snapshot has trailing data")
	}
	f.data = data
	f.gen = gen
	return nil
}

// writeSnapshotHeader writes magic, version, dimension, count and
// generation. Both index kinds share the layout.
func writeSnapshotHeader(w io.Writer, magic string, version uint32, dim, count int, gen uint64) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	for _, v := range []uint32{version, uint32(dim), uint32(count)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, gen)
}

func readSnapshotHeader(r io.Reader, magic string, version uint32) (dim, count int, gen uint64, err error) {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r, got); err != nil || string(got) != magic {
		return 0, 0, 0, dierrors.IndexCorruption(fmt.Sprintf("snapshot does not start with %q", magic))
	}
	var hdr [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, 0, dierrors.IndexCorruption("snapshot header truncated")
	}
	if hdr[0] != version {
		return 0, 0, 0, dierrors.IndexCorruption(fmt.Sprintf("unsupported snapshot version %d", hdr[0]))
	}
	if err := binary.Read(r, binary.LittleEndian, &gen); err != nil {
		return 0, 0, 0, dierrors.IndexCorruption("snapshot header truncated")
	}
	return int(hdr[1]), int(hdr[2]), gen, nil
}

// writeAtomic writes path through a temp file and rename.
func writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

func dimensionMismatch(want, got int) error {
	return dierrors.New(dierrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("expected dimension %d, got %d", want, got), nil)
}

// better reports whether a ranks ahead of b: higher score, then earlier
// position.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Position < b.Position
}

// hitHeap is a min-heap with the worst hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sorted drains the heap best-first.
func (h *hitHeap) sorted() []Hit {
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}
