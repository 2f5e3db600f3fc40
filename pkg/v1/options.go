package v1

import "log/slog"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope        string
	configPath   string
	pairs        []QAPair
	indexPath    string
	indexKind    string
	backend      string
	k            int
	provider     Provider
	providerName string
	forceRebuild bool
	logger       *slog.Logger
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithConfigPath reads configuration from path instead of the scope's config.yaml.
func WithConfigPath(path string) Option {
	return func(c *clientConfig) {
		c.configPath = path
	}
}

// WithPairs uses the given pairs as the corpus instead of the configured dataset.
func WithPairs(pairs []QAPair) Option {
	return func(c *clientConfig) {
		c.pairs = pairs
	}
}

// WithIndexPath sets where the index file is loaded from and saved to.
func WithIndexPath(path string) Option {
	return func(c *clientConfig) {
		c.indexPath = path
	}
}

// WithIndexKind selects "flat" (exact) or "annoy" (approximate).
func WithIndexKind(kind string) Option {
	return func(c *clientConfig) {
		c.indexKind = kind
	}
}

// WithEmbeddingBackend selects "tfidf", "openai" or "gollama".
func WithEmbeddingBackend(backend string) Option {
	return func(c *clientConfig) {
		c.backend = backend
	}
}

// WithK sets the default number of retrieved entries.
func WithK(k int) Option {
	return func(c *clientConfig) {
		c.k = k
	}
}

// WithProvider answers questions with p.
func WithProvider(p Provider) Option {
	return func(c *clientConfig) {
		c.provider = p
	}
}

// WithProviderName resolves the named provider from configuration. Missing
// credentials make New fail.
func WithProviderName(name string) Option {
	return func(c *clientConfig) {
		c.providerName = name
	}
}

// WithForceRebuild rebuilds the index even if the file on disk is valid.
func WithForceRebuild() Option {
	return func(c *clientConfig) {
		c.forceRebuild = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}
