package internal

import (
	"context"
)

var _ VectorIndex = (*FlatIndex)(nil)

// FlatIndex is an exact index: every search scans all vectors and ranks them
// by squared Euclidean distance. It is never mutated after construction, so
// concurrent searches are safe.
type FlatIndex struct {
	data      []float32
	n         int
	dimension int
}

func BuildFlatIndex(vectors [][]float32) (*FlatIndex, error) {
	dim, err := validateVectors(vectors)
	if err != nil {
		return nil, err
	}

	data := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		data = append(data, v...)
	}

	return &FlatIndex{data: data, n: len(vectors), dimension: dim}, nil
}

func newFlatIndexFromData(data []float32, n, dim int) *FlatIndex {
	return &FlatIndex{data: data, n: n, dimension: dim}
}

func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := checkQuery(query, f.dimension, k); err != nil {
		return nil, err
	}
	if k > f.n {
		k = f.n
	}

	all, err := scanExact(ctx, f.data, f.dimension, query)
	if err != nil {
		return nil, err
	}
	return all[:k], nil
}

// scanExact ranks every row of data against query.
func scanExact(ctx context.Context, data []float32, dim int, query []float32) ([]Neighbor, error) {
	n := len(data) / dim
	all := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		all[i] = Neighbor{Position: i, Distance: squaredL2(query, data[i*dim:(i+1)*dim])}
	}
	sortNeighbors(all)
	return all, nil
}

func (f *FlatIndex) Len() int { return f.n }

func (f *FlatIndex) Dimension() int { return f.dimension }

func (f *FlatIndex) Kind() IndexKind { return IndexFlat }

func (f *FlatIndex) Save(path string, meta IndexMeta) error {
	return writeIndexFile(path, indexFile{
		Header:  f.header(meta),
		Vectors: f.data,
	})
}

func (f *FlatIndex) header(meta IndexMeta) IndexHeader {
	return IndexHeader{
		Kind:        IndexFlat,
		N:           f.n,
		Dimension:   f.dimension,
		Model:       meta.Model,
		Fingerprint: meta.Fingerprint,
	}
}

func (f *FlatIndex) Close() error { return nil }

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
