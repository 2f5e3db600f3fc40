package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ProviderFactory creates the chat provider for a resolved provider config.
type ProviderFactory func(ctx context.Context, cfg FantasyConfig) (Provider, error)

func DefaultProviderFactory(ctx context.Context, cfg FantasyConfig) (Provider, error) {
	return NewFantasyProvider(ctx, cfg)
}

type EngineOptions struct {
	Config *Config
	Scope  Scope

	// Optional overrides; nil means derive from Config.
	Source   DatasetSource
	Embedder Embedder
	Provider Provider

	IndexPath    string
	ForceRebuild bool
	Logger       *slog.Logger
}

// Engine holds everything a query needs: corpus, fitted embedder, loaded
// index and the components built on them. Engines are independent of each
// other and safe to use from one goroutine at a time.
type Engine struct {
	cfg       *Config
	corpus    *Corpus
	embedder  Embedder
	index     VectorIndex
	retriever *Retriever
	composer  *PromptComposer
	answerer  *RAGAnswerer
	indexPath string
	built     bool
	buildTime time.Duration
	logger    *slog.Logger

	ownsEmbedder bool
}

// OpenEngine loads the corpus, prepares the embedder and reuses the index
// file when it matches; otherwise it builds the index and saves it.
func OpenEngine(ctx context.Context, opts EngineOptions) (eng *Engine, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	composer, err := NewPromptComposer(cfg.Prompt.Template, cfg.Prompt.MaxPromptChars)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		if source, err = NewDatasetSource(cfg, opts.Scope, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("loading dataset", "source", source.Describe())
	pairs, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	corpus := NewCorpus(pairs)
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("%w: %s yielded no question/answer pairs", ErrEmptyCorpus, source.Describe())
	}

	embedder := opts.Embedder
	if embedder == nil {
		if embedder, err = NewEmbedder(ctx, cfg, opts.Scope, logger); err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil && opts.Embedder == nil {
			embedder.Close()
		}
	}()

	if fitter, ok := embedder.(CorpusFitter); ok {
		if err := fitter.Fit(corpus.Texts()); err != nil {
			return nil, fmt.Errorf("fit embedder: %w", err)
		}
	}

	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = opts.Scope.Resolve(cfg.Index.Path)
	}
	if indexPath == "" {
		indexPath = opts.Scope.IndexPath()
	}

	eng = &Engine{
		cfg:       cfg,
		corpus:    corpus,
		embedder:  embedder,
		composer:  composer,
		indexPath: indexPath,
		logger:    logger,

		ownsEmbedder: opts.Embedder == nil,
	}

	if err := eng.ensureIndex(ctx, opts.ForceRebuild); err != nil {
		return nil, err
	}

	eng.retriever = NewRetriever(embedder, eng.index, corpus, cfg.Retrieval.K)
	if opts.Provider != nil {
		eng.answerer = NewRAGAnswerer(eng.retriever, composer, opts.Provider, cfg.Retrieval.K, logger)
	}

	return eng, nil
}

func (e *Engine) expectation() IndexExpectation {
	return IndexExpectation{
		Kind:        e.cfg.Index.Kind,
		N:           e.corpus.Len(),
		Dimension:   e.embedder.Dimension(),
		Model:       e.embedder.Model(),
		Fingerprint: e.corpus.Fingerprint(),
	}
}

func (e *Engine) ensureIndex(ctx context.Context, force bool) error {
	if !force {
		idx, err := LoadIndex(e.indexPath, e.expectation())
		if err == nil {
			e.logger.Info("loaded index", "path", e.indexPath, "kind", idx.Kind(), "entries", idx.Len())
			e.index = idx
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Info("no index file, building", "path", e.indexPath)
		} else {
			e.logger.Warn("index unusable, rebuilding", "path", e.indexPath, "error", err)
		}
	}

	return e.buildIndex(ctx)
}

// buildIndex embeds the corpus and persists the index. Nothing is written
// unless the build succeeds.
func (e *Engine) buildIndex(ctx context.Context) error {
	start := time.Now()
	e.logger.Info("embedding corpus", "entries", e.corpus.Len(), "model", e.embedder.Model())

	vectors, err := e.embedder.EmbedBatch(ctx, e.corpus.Texts())
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}

	idx, err := BuildIndex(e.cfg.Index.Kind, vectors, BuildOptions{Trees: e.cfg.Index.Trees})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	meta := IndexMeta{Model: e.embedder.Model(), Fingerprint: e.corpus.Fingerprint()}
	if err := idx.Save(e.indexPath, meta); err != nil {
		idx.Close()
		return fmt.Errorf("save index: %w", err)
	}

	e.index = idx
	e.built = true
	e.buildTime = time.Since(start)
	e.logger.Info("built index", "path", e.indexPath, "kind", idx.Kind(), "entries", idx.Len(), "took", e.buildTime)

	return nil
}

func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	return e.retriever.Retrieve(ctx, query, k)
}

func (e *Engine) RetrieveScored(ctx context.Context, query string, k int) ([]Retrieved, error) {
	return e.retriever.RetrieveScored(ctx, query, k)
}

// Answerer returns ErrNoProvider when the engine was opened without a provider.
func (e *Engine) Answerer() (*RAGAnswerer, error) {
	if e.answerer == nil {
		return nil, ErrNoProvider
	}
	return e.answerer, nil
}

func (e *Engine) Config() *Config { return e.cfg }
func (e *Engine) Corpus() *Corpus { return e.corpus }
func (e *Engine) Index() VectorIndex { return e.index }
func (e *Engine) Embedder() Embedder { return e.embedder }
func (e *Engine) Retriever() *Retriever { return e.retriever }
func (e *Engine) Composer() *PromptComposer { return e.composer }
func (e *Engine) IndexPath() string { return e.indexPath }
func (e *Engine) Built() bool { return e.built }
func (e *Engine) BuildDuration() time.Duration { return e.buildTime }

func (e *Engine) Close() error {
	var errs []error
	if e.index != nil {
		errs = append(errs, e.index.Close())
	}
	if e.embedder != nil && e.ownsEmbedder {
		errs = append(errs, e.embedder.Close())
	}
	return errors.Join(errs...)
}
