// Package index implements a flat inner-product vector index with file
// persistence. The index is built offline by the indexer and loaded once at
// startup; it is immutable afterwards and safe for concurrent search.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/kailas-cloud/stylesearch/internal/domain"
)

// File header magic and format version.
const (
	fileMagic   = 0x53534958 // "SSIX"
	fileVersion = 1
)

// Hit is a single nearest-neighbor match: the stored vector's position and
// its inner-product score against the query.
type Hit struct {
	Pos   int
	Score float64
}

// Flat is an exhaustive-scan inner-product index. With unit-norm stored
// vectors and a unit-norm query, scores are cosine similarities.
type Flat struct {
	dim  int
	vecs []float32 // row-major, len = dim * count
	ids  []int64
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.ids) }

// Add appends a vector with its product identifier.
func (f *Flat) Add(id int64, vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), f.dim)
	}
	f.vecs = append(f.vecs, vec...)
	f.ids = append(f.ids, id)
	return nil
}

// Search returns up to n hits in decreasing score order. Ties keep the lower
// position first so results are deterministic across runs.
func (f *Flat) Search(q []float32, n int) []Hit {
	if len(q) != f.dim || n <= 0 || f.Len() == 0 {
		return nil
	}

	hits := make([]Hit, f.Len())
	for pos := range f.ids {
		row := f.vecs[pos*f.dim : (pos+1)*f.dim]
		var dot float64
		for i, x := range row {
			dot += float64(x) * float64(q[i])
		}
		hits[pos] = Hit{Pos: pos, Score: dot}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

// IDAt resolves a position to its product identifier. Out-of-range positions
// report false and must be dropped by the caller.
func (f *Flat) IDAt(pos int) (int64, bool) {
	if pos < 0 || pos >= len(f.ids) {
		return 0, false
	}
	return f.ids[pos], true
}

// Save writes the index to path in the little-endian binary format:
// magic, version, dim, count, count*dim float32 vectors, count int64 ids.
func (f *Flat) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	header := []uint32{fileMagic, fileVersion, uint32(f.dim), uint32(f.Len())}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, f.vecs); err != nil {
		return fmt.Errorf("write index vectors: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.ids); err != nil {
		return fmt.Errorf("write index ids: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return nil
}

// Load reads an index written by Save. All failures wrap
// domain.ErrIndexNotLoaded so callers can distinguish a missing or corrupt
// index from an operational error.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w: %w", err, domain.ErrIndexNotLoaded)
	}
	defer file.Close()

	f, err := read(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("read index file %s: %w: %w", path, err, domain.ErrIndexNotLoaded)
	}
	return f, nil
}

func read(r io.Reader) (*Flat, error) {
	var magic, ver, dim, count uint32
	for _, p := range []*uint32{&magic, &ver, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("read index header: %w", err)
		}
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("bad index magic 0x%x", magic)
	}
	if ver != fileVersion {
		return nil, fmt.Errorf("unsupported index version %d", ver)
	}
	if dim == 0 || dim > math.MaxUint16 {
		return nil, fmt.Errorf("implausible index dimension %d", dim)
	}

	f := &Flat{
		dim:  int(dim),
		vecs: make([]float32, int(dim)*int(count)),
		ids:  make([]int64, count),
	}
	if err := binary.Read(r, binary.LittleEndian, f.vecs); err != nil {
		return nil, fmt.Errorf("read index vectors: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, f.ids); err != nil {
		return nil, fmt.Errorf("read index ids: %w", err)
	}
	return f, nil
}
