package v1

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/4thel00z/medrag/internal"
)

// Client provides programmatic access to medical retrieval and answering.
// A Client owns one loaded index; use it from one goroutine at a time.
type Client struct {
	engine *internal.Engine
}

// New loads the corpus and the index (building and saving it when needed)
// with the given options.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	var svcOpts []internal.EngineServiceOption
	svcOpts = append(svcOpts, internal.WithLogger(cfg.logger))
	if cfg.configPath != "" {
		svcOpts = append(svcOpts, internal.WithConfigPath(cfg.configPath))
	}
	engines := internal.NewEngineService(internal.NewScopeResolver(), svcOpts...)

	scope, conf, err := engines.Load(cfg.scope)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.indexKind != "" {
		conf.Index.Kind = internal.IndexKind(cfg.indexKind)
	}
	if cfg.backend != "" {
		conf.Embeddings.Backend = cfg.backend
	}
	if cfg.k != 0 {
		conf.Retrieval.K = cfg.k
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	var provider internal.Provider
	switch {
	case cfg.provider != nil:
		provider = cfg.provider
	case cfg.providerName != "":
		if provider, err = engines.Provider(ctx, conf, cfg.providerName); err != nil {
			return nil, err
		}
	}

	engOpts := internal.EngineOptions{
		Config:       conf,
		Scope:        scope,
		Provider:     provider,
		IndexPath:    cfg.indexPath,
		ForceRebuild: cfg.forceRebuild,
		Logger:       cfg.logger,
	}
	if cfg.pairs != nil {
		engOpts.Source = newPairsSource(cfg.pairs)
	}

	eng, err := internal.OpenEngine(ctx, engOpts)
	if err != nil {
		return nil, err
	}
	return &Client{engine: eng}, nil
}

// Retrieve returns the answers of the k entries closest to query, closest
// first. k == 0 uses the configured default.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	return c.engine.Retrieve(ctx, query, k)
}

// Search is Retrieve with the full entries and their distances.
func (c *Client) Search(ctx context.Context, query string, k int) ([]Result, error) {
	out, err := internal.RetrieveWith(ctx, c.engine, query, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{
			ID:       r.ID,
			Position: r.Position,
			Question: r.Question,
			Answer:   r.Answer,
			Distance: r.Distance,
		})
	}
	return results, nil
}

// Ask answers query with the configured provider using retrieved knowledge.
func (c *Client) Ask(ctx context.Context, query string) (string, error) {
	answerer, err := c.engine.Answerer()
	if err != nil {
		return "", err
	}
	return answerer.Answer(ctx, query)
}

// Len is the number of indexed entries.
func (c *Client) Len() int {
	return c.engine.Corpus().Len()
}

// IndexPath is where the index file lives.
func (c *Client) IndexPath() string {
	return c.engine.IndexPath()
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return c.engine.Close()
}

type pairsSource struct {
	pairs []internal.QAPair
}

func newPairsSource(pairs []QAPair) *pairsSource {
	out := make([]internal.QAPair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, internal.NewQAPair(p.Question, p.Answer))
	}
	return &pairsSource{pairs: out}
}

func (s *pairsSource) Load(context.Context) ([]internal.QAPair, error) {
	return s.pairs, nil
}

func (s *pairsSource) Describe() string {
	return fmt.Sprintf("%d in-memory pairs", len(s.pairs))
}
