package internal

import (
	"context"
	"fmt"
)

// Retrieved is one retrieval hit with its corpus entry.
type Retrieved struct {
	Pair     QAPair
	Position int
	Distance float32
}

// Retriever maps a free-text query to the answers of the nearest corpus entries.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	corpus   *Corpus
	defaultK int
}

func NewRetriever(embedder Embedder, index VectorIndex, corpus *Corpus, defaultK int) *Retriever {
	if defaultK < 1 {
		defaultK = DefaultK
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		corpus:   corpus,
		defaultK: defaultK,
	}
}

func (r *Retriever) DefaultK() int { return r.defaultK }

// Retrieve returns answer texts nearest first. k == 0 selects the default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	hits, err := r.RetrieveScored(ctx, query, k)
	if err != nil {
		return nil, err
	}

	answers := make([]string, len(hits))
	for i, h := range hits {
		answers[i] = h.Pair.Answer
	}
	return answers, nil
}

func (r *Retriever) RetrieveScored(ctx context.Context, query string, k int) ([]Retrieved, error) {
	if r.index == nil {
		return nil, fmt.Errorf("%w: no index loaded", ErrRetrieval)
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder", ErrRetrieval)
	}
	if k == 0 {
		k = r.defaultK
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	neighbors, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Retrieved, 0, len(neighbors))
	for _, n := range neighbors {
		pair, ok := r.corpus.At(n.Position)
		if !ok {
			return nil, fmt.Errorf("%w: index returned position %d, corpus has %d entries",
				ErrRetrieval, n.Position, r.corpus.Len())
		}
		hits = append(hits, Retrieved{Pair: pair, Position: n.Position, Distance: n.Distance})
	}

	return hits, nil
}
