package internal

import (
	"context"
	"fmt"
	"sort"
)

type IndexKind string

const (
	IndexFlat  IndexKind = "flat"
	IndexAnnoy IndexKind = "annoy"
)

const DefaultAnnoyTrees = 32

// Neighbor is one search hit: the corpus position and its distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Len() int
	Dimension() int
	Kind() IndexKind
	Save(path string, meta IndexMeta) error
	Close() error
}

type BuildOptions struct {
	Trees int
}

func BuildIndex(kind IndexKind, vectors [][]float32, opts BuildOptions) (VectorIndex, error) {
	switch kind {
	case IndexFlat, "":
		return BuildFlatIndex(vectors)
	case IndexAnnoy:
		return BuildAnnoyIndex(vectors, opts.Trees)
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", ErrConfig, kind)
	}
}

// validateVectors returns the shared dimension of vectors.
func validateVectors(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptyCorpus
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: vector 0 has dimension 0", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

func checkQuery(query []float32, dim, k int) error {
	if k < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != dim {
		return fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

// sortNeighbors orders by ascending distance, then by position.
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Position < ns[j].Position
	})
}
