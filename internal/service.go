package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// EngineService resolves scope and configuration and opens engines on them.
type EngineService struct {
	resolver    *ScopeResolver
	configPath  string
	logger      *slog.Logger
	newProvider ProviderFactory
}

type EngineServiceOption func(*EngineService)

// WithConfigPath reads configuration from path instead of the scope's config.yaml.
func WithConfigPath(path string) EngineServiceOption {
	return func(s *EngineService) { s.configPath = path }
}

func WithLogger(logger *slog.Logger) EngineServiceOption {
	return func(s *EngineService) { s.logger = logger }
}

func WithProviderFactory(f ProviderFactory) EngineServiceOption {
	return func(s *EngineService) { s.newProvider = f }
}

func NewEngineService(resolver *ScopeResolver, opts ...EngineServiceOption) *EngineService {
	s := &EngineService{
		resolver:    resolver,
		logger:      slog.Default(),
		newProvider: DefaultProviderFactory,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type OpenRequest struct {
	Scope        string
	ForceRebuild bool
	// WithProvider resolves and attaches a chat provider; Provider names it.
	WithProvider bool
	Provider     string
}

func (s *EngineService) Resolver() *ScopeResolver { return s.resolver }

// Load resolves the scope and reads its configuration.
func (s *EngineService) Load(scopeHint string) (Scope, *Config, error) {
	scope := s.resolver.Resolve(scopeHint)

	path := s.configPath
	if path == "" {
		path = scope.ConfigPath()
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return scope, nil, err
	}
	return scope, cfg, nil
}

func (s *EngineService) Save(scope Scope, cfg *Config) error {
	if s.configPath != "" {
		return SaveConfigFile(s.configPath, cfg)
	}
	if err := scope.Init(); err != nil {
		return err
	}
	return SaveConfig(scope, cfg)
}

// Open resolves the provider first, so missing credentials fail before any
// dataset or index work starts.
func (s *EngineService) Open(ctx context.Context, req OpenRequest) (*Engine, error) {
	scope, cfg, err := s.Load(req.Scope)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var provider Provider
	if req.WithProvider {
		provider, err = s.Provider(ctx, cfg, req.Provider)
		if err != nil {
			return nil, err
		}
	}

	return OpenEngine(ctx, EngineOptions{
		Config:       cfg,
		Scope:        scope,
		Provider:     provider,
		ForceRebuild: req.ForceRebuild,
		Logger:       s.logger,
	})
}

func (s *EngineService) Provider(ctx context.Context, cfg *Config, name string) (Provider, error) {
	fc, err := cfg.ResolveProvider(name)
	if err != nil {
		return nil, err
	}
	provider, err := s.newProvider(ctx, fc)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", fc.Provider, err)
	}
	return provider, nil
}

// ProviderService manages LLM provider configuration
type ProviderService struct {
	engines *EngineService
}

func NewProviderService(engines *EngineService) *ProviderService {
	return &ProviderService{engines: engines}
}

func (s *ProviderService) List(scopeHint string) ([]string, string, error) {
	_, cfg, err := s.engines.Load(scopeHint)
	if err != nil {
		return nil, "", err
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, cfg.DefaultProvider, nil
}

func (s *ProviderService) Add(name string, providerCfg ProviderConfig, scopeHint string) error {
	scope, cfg, err := s.engines.Load(scopeHint)
	if err != nil {
		return err
	}

	kind := providerCfg.Type
	if kind == "" {
		kind = name
	}
	if _, ok := providerDefaults[kind]; !ok {
		return fmt.Errorf("%w: unsupported provider type %q", ErrConfig, kind)
	}

	cfg.Providers[name] = providerCfg
	return s.engines.Save(scope, cfg)
}

func (s *ProviderService) Remove(name, scopeHint string) error {
	scope, cfg, err := s.engines.Load(scopeHint)
	if err != nil {
		return err
	}

	if _, exists := cfg.Providers[name]; !exists {
		return fmt.Errorf("provider %q not found", name)
	}

	delete(cfg.Providers, name)
	if cfg.DefaultProvider == name {
		cfg.DefaultProvider = ""
	}
	return s.engines.Save(scope, cfg)
}

func (s *ProviderService) SetDefault(name, scopeHint string) error {
	scope, cfg, err := s.engines.Load(scopeHint)
	if err != nil {
		return err
	}

	if _, exists := cfg.Providers[name]; !exists {
		return fmt.Errorf("provider %q not found", name)
	}

	cfg.DefaultProvider = name
	return s.engines.Save(scope, cfg)
}

func (s *ProviderService) Test(ctx context.Context, name, scopeHint string) (string, error) {
	_, cfg, err := s.engines.Load(scopeHint)
	if err != nil {
		return "", err
	}

	provider, err := s.engines.Provider(ctx, cfg, name)
	if err != nil {
		return "", err
	}

	reply, err := provider.Complete(ctx, "Say hello")
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return reply, nil
}
