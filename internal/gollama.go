package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	gollama "github.com/dianlight/gollama.cpp"
)

const DefaultLocalContextSize = 512

var _ Embedder = (*LocalEmbedder)(nil)

type LocalEmbedderOption func(*localEmbedderConfig)

type localEmbedderConfig struct {
	contextSize uint32
	device      Device
}

func WithContextSize(n int) LocalEmbedderOption {
	return func(c *localEmbedderConfig) {
		if n > 0 {
			c.contextSize = uint32(n)
		}
	}
}

// WithDevice overrides hardware detection.
func WithDevice(d Device) LocalEmbedderOption {
	return func(c *localEmbedderConfig) { c.device = d }
}

// LocalEmbedder runs a GGUF embedding model in process through llama.cpp.
type LocalEmbedder struct {
	mu        sync.Mutex
	model     gollama.LlamaModel
	ctx       gollama.LlamaContext
	dimension int
	device    Device
	modelPath string
	maxTokens int
}

func NewLocalEmbedder(modelPath string, dimension int, opts ...LocalEmbedderOption) (*LocalEmbedder, error) {
	cfg := localEmbedderConfig{contextSize: DefaultLocalContextSize}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.device == "" {
		cfg.device = DetectHardware()
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	var model gollama.LlamaModel
	var ctx gollama.LlamaContext
	var success atomic.Bool

	defer func() {
		if success.Load() {
			return
		}
		if ctx != 0 {
			gollama.Free(ctx)
		}
		if model != 0 {
			gollama.Model_free(model)
		}
		gollama.Backend_free()
	}()

	modelParams := gollama.Model_default_params()
	modelParams.NGpuLayers = cfg.device.GPULayers()

	var err error
	model, err = gollama.Model_load_from_file(modelPath, modelParams)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	actualDim := int(gollama.Model_n_embd(model))
	if dimension > 0 && dimension != actualDim {
		return nil, fmt.Errorf("%w: model has %d, configured %d", ErrDimensionMismatch, actualDim, dimension)
	}

	ctxParams := gollama.Context_default_params()
	ctxParams.Embeddings = 1
	ctxParams.NCtx = cfg.contextSize
	// per-token output; pooling happens in Embed
	ctxParams.PoolingType = gollama.LLAMA_POOLING_TYPE_NONE

	ctx, err = gollama.Init_from_model(model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("init context: %w", err)
	}

	gollama.Set_embeddings(ctx, true)
	success.Store(true)

	return &LocalEmbedder{
		model:     model,
		ctx:       ctx,
		dimension: actualDim,
		device:    cfg.device,
		modelPath: modelPath,
		maxTokens: int(cfg.contextSize),
	}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == 0 {
		return nil, fmt.Errorf("embedder closed")
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimension), nil
	}

	tokens, err := gollama.Tokenize(e.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) == 0 {
		return make([]float32, e.dimension), nil
	}
	// long answers are truncated to the context window
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}

	gollama.Memory_clear(e.ctx, false)

	nTokens := int32(len(tokens))
	batch := gollama.Batch_init(nTokens, 0, 1)
	defer gollama.Batch_free(batch)

	tokenSlice := unsafe.Slice(batch.Token, nTokens)
	posSlice := unsafe.Slice(batch.Pos, nTokens)
	nSeqSlice := unsafe.Slice(batch.NSeqId, nTokens)
	seqIdSlice := unsafe.Slice(batch.SeqId, nTokens)
	logitsSlice := unsafe.Slice(batch.Logits, nTokens)

	for i := int32(0); i < nTokens; i++ {
		tokenSlice[i] = tokens[i]
		posSlice[i] = gollama.LlamaPos(i)
		nSeqSlice[i] = 1
		*seqIdSlice[i] = 0
		logitsSlice[i] = 1
	}
	batch.NTokens = nTokens

	if err := gollama.Decode(e.ctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	rows := make([][]float32, 0, nTokens)
	for i := int32(0); i < nTokens; i++ {
		embPtr := gollama.Get_embeddings_ith(e.ctx, i)
		if embPtr == nil {
			return nil, fmt.Errorf("no embedding for token %d", i)
		}
		rows = append(rows, ptrToSlice(embPtr, e.dimension))
	}

	return l2Normalize(meanPool(rows, e.dimension)), nil
}

// meanPool averages token embeddings into one vector of length dim.
func meanPool(rows [][]float32, dim int) []float32 {
	out := make([]float32, dim)
	if len(rows) == 0 {
		return out
	}
	for _, row := range rows {
		for j := 0; j < dim && j < len(row); j++ {
			out[j] += row[j]
		}
	}
	n := float32(len(rows))
	for j := range out {
		out[j] /= n
	}
	return out
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}

	return results, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Model() string {
	return "gguf-" + filepath.Base(e.modelPath)
}

func (e *LocalEmbedder) Device() Device {
	return e.device
}

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == 0 {
		return nil
	}

	gollama.Free(e.ctx)
	gollama.Model_free(e.model)
	gollama.Backend_free()
	e.ctx = 0
	e.model = 0

	return nil
}

func ptrToSlice(ptr *float32, size int) []float32 {
	if ptr == nil {
		return nil
	}

	src := unsafe.Slice(ptr, size)
	dst := make([]float32, size)
	copy(dst, src)

	return dst
}
