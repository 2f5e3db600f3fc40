package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendTFIDF   = "tfidf"
	BackendOpenAI  = "openai"
	BackendGollama = "gollama"

	SourceFile        = "file"
	SourceHuggingFace = "huggingface"
	SourceGit         = "git"

	DefaultK               = 3
	DefaultProviderName    = "openai"
	DefaultProviderTimeout = 60 * time.Second
	DefaultProviderRetries = 2
)

type EmbeddingsConfig struct {
	Backend     string `yaml:"backend"`
	Model       string `yaml:"model,omitempty"`
	Dimension   int    `yaml:"dimension,omitempty"`
	MaxFeatures int    `yaml:"max_features,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	ModelURL    string `yaml:"model_url,omitempty"`
	Device      string `yaml:"device,omitempty"`
}

type DatasetConfig struct {
	Source        string `yaml:"source"`
	Path          string `yaml:"path,omitempty"`
	Format        string `yaml:"format,omitempty"`
	Dataset       string `yaml:"dataset,omitempty"`
	Config        string `yaml:"config,omitempty"`
	Split         string `yaml:"split,omitempty"`
	URL           string `yaml:"url,omitempty"`
	Ref           string `yaml:"ref,omitempty"`
	QuestionField string `yaml:"question_field,omitempty"`
	AnswerField   string `yaml:"answer_field,omitempty"`
	Limit         int    `yaml:"limit,omitempty"`
}

type IndexConfig struct {
	Kind  IndexKind `yaml:"kind"`
	Path  string    `yaml:"path,omitempty"`
	Trees int       `yaml:"trees,omitempty"`
}

type RetrievalConfig struct {
	K int `yaml:"k"`
}

type PromptConfig struct {
	Template       string `yaml:"template,omitempty"`
	MaxPromptChars int    `yaml:"max_prompt_chars,omitempty"`
}

type ProviderConfig struct {
	// Type selects the backend (openai, anthropic, openrouter); empty means the entry name.
	Type    string        `yaml:"type,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Retries is the number of extra attempts after a failed completion; -1 disables retrying.
	Retries int `yaml:"retries,omitempty"`
}

type Config struct {
	Embeddings      EmbeddingsConfig          `yaml:"embeddings"`
	Dataset         DatasetConfig             `yaml:"dataset"`
	Index           IndexConfig               `yaml:"index"`
	Retrieval       RetrievalConfig           `yaml:"retrieval"`
	Prompt          PromptConfig              `yaml:"prompt,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
}

// providerDefaults are used when a provider is selected without a config entry.
var providerDefaults = map[string]struct {
	model  string
	envKey string
}{
	"openai":     {model: "gpt-4", envKey: "OPENAI_API_KEY"},
	"anthropic":  {model: "claude-3-5-haiku-latest", envKey: "ANTHROPIC_API_KEY"},
	"openrouter": {model: "openai/gpt-4o-mini", envKey: "OPENROUTER_API_KEY"},
}

func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Backend:     BackendTFIDF,
			MaxFeatures: DefaultMaxFeatures,
		},
		Dataset: DatasetConfig{
			Source:        SourceHuggingFace,
			Dataset:       DefaultHFDataset,
			Config:        "default",
			Split:         "train",
			QuestionField: "Patient",
			AnswerField:   "Doctor",
			Limit:         DefaultDatasetLimit,
		},
		Index: IndexConfig{
			Kind:  IndexFlat,
			Trees: DefaultAnnoyTrees,
		},
		Retrieval: RetrievalConfig{K: DefaultK},
		Providers: make(map[string]ProviderConfig),
	}
}

func LoadConfig(scope Scope) (*Config, error) {
	return LoadConfigFile(scope.ConfigPath())
}

// LoadConfigFile reads path over the defaults. A missing file yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	return SaveConfigFile(scope.ConfigPath(), cfg)
}

func SaveConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Embeddings.Backend {
	case BackendTFIDF, BackendOpenAI, BackendGollama:
	default:
		return fmt.Errorf("%w: unknown embeddings backend %q", ErrConfig, c.Embeddings.Backend)
	}

	switch c.Index.Kind {
	case IndexFlat, IndexAnnoy:
	default:
		return fmt.Errorf("%w: unknown index kind %q", ErrConfig, c.Index.Kind)
	}
	if c.Index.Trees < 0 {
		return fmt.Errorf("%w: index.trees must not be negative", ErrConfig)
	}

	switch c.Dataset.Source {
	case SourceHuggingFace:
		if c.Dataset.Dataset == "" {
			return fmt.Errorf("%w: dataset.dataset is required for huggingface", ErrConfig)
		}
	case SourceFile:
		if c.Dataset.Path == "" {
			return fmt.Errorf("%w: dataset.path is required for file", ErrConfig)
		}
	case SourceGit:
		if c.Dataset.URL == "" || c.Dataset.Path == "" {
			return fmt.Errorf("%w: dataset.url and dataset.path are required for git", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown dataset source %q", ErrConfig, c.Dataset.Source)
	}
	if c.Dataset.Limit < 0 {
		return fmt.Errorf("%w: dataset.limit must not be negative", ErrConfig)
	}

	if c.Retrieval.K < 1 {
		return fmt.Errorf("%w: retrieval.k must be at least 1, got %d", ErrConfig, c.Retrieval.K)
	}

	if c.Prompt.Template != "" && !strings.Contains(c.Prompt.Template, placeholderQuery) {
		return fmt.Errorf("%w: prompt.template must contain %s", ErrConfig, placeholderQuery)
	}
	if c.Prompt.MaxPromptChars < 0 {
		return fmt.Errorf("%w: prompt.max_prompt_chars must not be negative", ErrConfig)
	}

	return nil
}

// ProviderName returns name, falling back to the configured default.
func (c *Config) ProviderName(name string) string {
	if name != "" {
		return name
	}
	if c.DefaultProvider != "" {
		return c.DefaultProvider
	}
	return DefaultProviderName
}

// ResolveProvider merges the provider entry with built-in defaults and the
// environment. A provider without an API key is a configuration error.
func (c *Config) ResolveProvider(name string) (FantasyConfig, error) {
	name = c.ProviderName(name)

	pc, configured := c.Providers[name]
	kind := pc.Type
	if kind == "" {
		kind = name
	}
	def, known := providerDefaults[kind]
	if !known && !configured {
		return FantasyConfig{}, fmt.Errorf("%w: %w: provider %q not configured", ErrConfig, ErrNoProvider, name)
	}

	if pc.APIKey == "" && def.envKey != "" {
		pc.APIKey = os.Getenv(def.envKey)
	}
	if pc.Model == "" {
		pc.Model = def.model
	}
	if pc.Timeout <= 0 {
		pc.Timeout = DefaultProviderTimeout
	}
	switch {
	case pc.Retries == 0:
		pc.Retries = DefaultProviderRetries
	case pc.Retries < 0:
		pc.Retries = 0
	}

	if pc.APIKey == "" {
		hint := ""
		if def.envKey != "" {
			hint = " (set " + def.envKey + ")"
		}
		return FantasyConfig{}, fmt.Errorf("%w: %w: no API key for provider %q%s", ErrConfig, ErrNoProvider, name, hint)
	}
	if pc.Model == "" {
		return FantasyConfig{}, fmt.Errorf("%w: provider %q has no model", ErrConfig, name)
	}

	return FantasyConfig{
		Provider: kind,
		APIKey:   pc.APIKey,
		BaseURL:  pc.BaseURL,
		Model:    pc.Model,
		Timeout:  pc.Timeout,
		Retries:  pc.Retries,
	}, nil
}

// EmbeddingsAPIKey falls back to OPENAI_API_KEY.
func (c *Config) EmbeddingsAPIKey() string {
	if c.Embeddings.APIKey != "" {
		return c.Embeddings.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}
