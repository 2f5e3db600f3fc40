package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const DefaultMaxFeatures = 4096

var _ Embedder = (*TFIDFEmbedder)(nil)
var _ CorpusFitter = (*TFIDFEmbedder)(nil)

// TFIDFEmbedder is an offline embedder. Its vocabulary and IDF weights come
// from the corpus passed to Fit, so the same corpus always yields the same
// vectors.
type TFIDFEmbedder struct {
	maxFeatures  int
	vocabulary   map[string]int
	idf          []float32
	model        string
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewTFIDFEmbedder(maxFeatures int) *TFIDFEmbedder {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &TFIDFEmbedder{
		maxFeatures:  maxFeatures,
		vocabulary:   make(map[string]int),
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Fit builds the vocabulary from the most document-frequent terms, ties
// broken alphabetically.
func (e *TFIDFEmbedder) Fit(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyCorpus
	}

	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("no tokens found in corpus")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > e.maxFeatures {
		terms = terms[:e.maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(texts))
	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float32, len(terms))
	h := sha256.New()
	for i, term := range terms {
		e.vocabulary[term] = i
		// smoothed IDF
		e.idf[i] = float32(math.Log((1+n)/(1+float64(df[term]))) + 1.0)
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	e.model = fmt.Sprintf("tfidf-%d-%s", len(terms), hex.EncodeToString(h.Sum(nil))[:16])

	return nil
}

func (e *TFIDFEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.idf == nil {
		return nil, errors.New("tfidf embedder not fitted")
	}

	vec := make([]float32, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}

	for idx, count := range tf {
		vec[idx] = float32(count) / float32(total) * e.idf[idx]
	}

	return l2Normalize(vec), nil
}

func (e *TFIDFEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

func (e *TFIDFEmbedder) Dimension() int { return len(e.idf) }

func (e *TFIDFEmbedder) Model() string { return e.model }

func (e *TFIDFEmbedder) Close() error { return nil }

func (e *TFIDFEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
