package internal

import "context"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// Model identifies the weights or vocabulary; it is recorded in the index header.
	Model() string
	Close() error
}

// CorpusFitter is implemented by embedders whose vectors depend on the corpus.
// Fit must run before the first Embed call.
type CorpusFitter interface {
	Fit(texts []string) error
}

// Provider is the hosted chat model the composed prompt is sent to.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (<-chan string, error)
}

// Answerer answers a user question.
type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}
