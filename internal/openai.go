package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIEmbeddingModel = string(openai.SmallEmbedding3)
	DefaultOpenAIBatchSize      = 64
)

var _ Embedder = (*OpenAIEmbedder)(nil)

type OpenAIEmbedderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	BatchSize int
	Logger    *slog.Logger
}

// OpenAIEmbedder embeds through the OpenAI embeddings endpoint or any
// compatible server. Vectors are L2 normalised.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	logger    *slog.Logger

	mu        sync.Mutex
	dimension int
}

func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embeddings need an API key (OPENAI_API_KEY)", ErrConfig)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIEmbeddingModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOpenAIBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		dimension: knownOpenAIDimension(cfg.Model),
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vecs, err := e.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		chunk := texts[start:end]
		for i, t := range chunk {
			if strings.TrimSpace(t) == "" {
				return nil, fmt.Errorf("embed text %d: %w", start+i, ErrEmptyText)
			}
		}

		vecs, err := e.embedChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
		}
		results = append(results, vecs...)

		e.logger.Debug("embedded batch", "done", end, "total", len(texts))
	}

	return results, nil
}

func (e *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if err := e.observeDimension(len(d.Embedding)); err != nil {
			return nil, err
		}
		out[i] = l2Normalize(d.Embedding)
	}
	return out, nil
}

func (e *OpenAIEmbedder) observeDimension(dim int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dimension == 0 {
		e.dimension = dim
		return nil
	}
	if dim != e.dimension {
		return fmt.Errorf("%w: model returned %d, expected %d", ErrDimensionMismatch, dim, e.dimension)
	}
	return nil
}

func (e *OpenAIEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *OpenAIEmbedder) Model() string { return "openai-" + e.model }

func (e *OpenAIEmbedder) Close() error { return nil }

func knownOpenAIDimension(model string) int {
	switch model {
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	case string(openai.LargeEmbedding3):
		return 3072
	default:
		return 0
	}
}
