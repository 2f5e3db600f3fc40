package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
)

var _ VectorIndex = (*AnnoyIndex)(nil)

// annoyOversample multiplies k*trees to size the tree walk.
const annoyOversample = 4

// AnnoyIndex is an approximate index over a forest of random projection
// trees. Item ids are corpus positions. The trees only propose candidates;
// candidates are ranked by exact squared Euclidean distance over the stored
// vectors, so distances agree with FlatIndex. Searches are serialised because
// the underlying library makes no promise about concurrent reads.
type AnnoyIndex struct {
	mu        sync.Mutex
	idx       interfaces.AnnoyIndex[float32, uint32]
	data      []float32
	n         int
	dimension int
	trees     int
	backing   string
}

func newAnnoyBackend(dimension int) interfaces.AnnoyIndex[float32, uint32] {
	return builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()
}

func BuildAnnoyIndex(vectors [][]float32, trees int) (*AnnoyIndex, error) {
	dim, err := validateVectors(vectors)
	if err != nil {
		return nil, err
	}
	if trees <= 0 {
		trees = DefaultAnnoyTrees
	}

	idx := newAnnoyBackend(dim)
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		idx.AddItem(uint32(i), v)
		data = append(data, v...)
	}
	idx.Build(trees, -1)

	return &AnnoyIndex{
		idx:       idx,
		data:      data,
		n:         len(vectors),
		dimension: dim,
		trees:     trees,
	}, nil
}

// loadAnnoyIndex materialises blob in a temp file for the library to map.
// The file lives until Close. The caller has verified the payload checksum
// and that data holds h.N rows of h.Dimension floats.
func loadAnnoyIndex(h IndexHeader, blob []byte, data []float32) (idx *AnnoyIndex, err error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty annoy payload")
	}

	tmp, err := os.CreateTemp("", "medrag-annoy-*.ann")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	backing := tmp.Name()
	_, werr := tmp.Write(blob)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(backing)
		return nil, fmt.Errorf("write temp file: %w", firstErr(werr, cerr))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt annoy payload: %v", r)
		}
		if err != nil {
			os.Remove(backing)
		}
	}()

	backend := newAnnoyBackend(h.Dimension)
	if err := backend.Load(backing); err != nil {
		return nil, fmt.Errorf("load annoy index: %w", err)
	}

	return &AnnoyIndex{
		idx:       backend,
		data:      data,
		n:         h.N,
		dimension: h.Dimension,
		trees:     h.Trees,
		backing:   backing,
	}, nil
}

// Search returns min(k, N) neighbors. When the tree walk budget covers the
// whole corpus, or the walk yields fewer than k candidates, the result comes
// from an exact scan of the stored vectors.
func (a *AnnoyIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.idx == nil {
		return nil, fmt.Errorf("%w: index closed", ErrRetrieval)
	}
	if err := checkQuery(query, a.dimension, k); err != nil {
		return nil, err
	}
	if k > a.n {
		k = a.n
	}

	searchK := k * a.trees * annoyOversample
	if searchK >= a.n {
		return a.exact(ctx, query, k)
	}

	candidates, err := a.candidates(query, searchK)
	if err != nil {
		return nil, err
	}
	if len(candidates) < k {
		return a.exact(ctx, query, k)
	}

	results := make([]Neighbor, 0, len(candidates))
	for _, pos := range candidates {
		row := a.data[pos*a.dimension : (pos+1)*a.dimension]
		results = append(results, Neighbor{Position: pos, Distance: squaredL2(query, row)})
	}
	sortNeighbors(results)
	return results[:k], nil
}

func (a *AnnoyIndex) exact(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	all, err := scanExact(ctx, a.data, a.dimension, query)
	if err != nil {
		return nil, err
	}
	return all[:k], nil
}

// candidates walks the trees and returns distinct positions.
//
// The library's queue pops the smallest priority while its split priorities
// assume largest first, so a walk with the query itself explores the far side
// of every split first. Margins are plain dot products, so walking with the
// negated query visits the query's own side first.
//
// searchK must not exceed N: the library sizes its scratch buffers from the
// node count and longer walks can overrun them.
func (a *AnnoyIndex) candidates(query []float32, searchK int) (out []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: annoy search: %v", ErrRetrieval, r)
		}
	}()

	walk := make([]float32, len(query))
	for i, v := range query {
		walk[i] = -v
	}

	ids, _ := a.idx.GetNnsByVector(walk, a.n, searchK, a.idx.CreateContext())

	seen := make(map[int]struct{}, len(ids))
	out = make([]int, 0, len(ids))
	for _, id := range ids {
		pos := int(id)
		if pos < 0 || pos >= a.n {
			continue
		}
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		out = append(out, pos)
	}
	return out, nil
}

func (a *AnnoyIndex) Len() int { return a.n }

func (a *AnnoyIndex) Dimension() int { return a.dimension }

func (a *AnnoyIndex) Kind() IndexKind { return IndexAnnoy }

func (a *AnnoyIndex) Save(path string, meta IndexMeta) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.idx == nil {
		return fmt.Errorf("save annoy index: index closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.ann")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.idx.Save(tmpPath); err != nil {
		return fmt.Errorf("save annoy index: %w", err)
	}

	blob, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("read annoy index: %w", err)
	}

	return writeIndexFile(path, indexFile{
		Header: IndexHeader{
			Kind:        IndexAnnoy,
			N:           a.n,
			Dimension:   a.dimension,
			Model:       meta.Model,
			Fingerprint: meta.Fingerprint,
			Trees:       a.trees,
		},
		Vectors: a.data,
		Annoy:   blob,
	})
}

func (a *AnnoyIndex) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.idx = nil
	a.data = nil
	if a.backing != "" {
		err := os.Remove(a.backing)
		a.backing = ""
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove backing file: %w", err)
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
