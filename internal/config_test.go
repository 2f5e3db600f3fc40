package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(t *testing.T) Scope {
	t.Helper()
	scope := NewScopeResolver().ProjectAt(t.TempDir())
	require.NoError(t, scope.Init())
	return scope
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendTFIDF, cfg.Embeddings.Backend)
	assert.Equal(t, SourceHuggingFace, cfg.Dataset.Source)
	assert.Equal(t, "ruslanmv/ai-medical-chatbot", cfg.Dataset.Dataset)
	assert.Equal(t, "Patient", cfg.Dataset.QuestionField)
	assert.Equal(t, "Doctor", cfg.Dataset.AnswerField)
	assert.Equal(t, 10000, cfg.Dataset.Limit)
	assert.Equal(t, IndexFlat, cfg.Index.Kind)
	assert.Equal(t, 3, cfg.Retrieval.K)
	assert.NotNil(t, cfg.Providers)
	assert.NoError(t, cfg.Validate())
}

func TestConfigSaveAndLoad(t *testing.T) {
	scope := testScope(t)

	cfg := DefaultConfig()
	cfg.DefaultProvider = "work"
	cfg.Providers["work"] = ProviderConfig{
		Type:    "openai",
		APIKey:  "sk-test",
		Model:   "gpt-4",
		Timeout: 45 * time.Second,
	}
	cfg.Index.Kind = IndexFlat

	require.NoError(t, SaveConfig(scope, cfg))

	loaded, err := LoadConfig(scope)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := LoadConfig(testScope(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	scope := testScope(t)
	require.NoError(t, os.WriteFile(scope.ConfigPath(), []byte("retrieval:\n  k: 5\nindex:\n  kind: flat\n"), 0644))

	cfg, err := LoadConfig(scope)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.Equal(t, IndexFlat, cfg.Index.Kind)
	assert.Equal(t, DefaultAnnoyTrees, cfg.Index.Trees)
	assert.Equal(t, BackendTFIDF, cfg.Embeddings.Backend)
	assert.NotNil(t, cfg.Providers)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	scope := testScope(t)
	require.NoError(t, os.WriteFile(scope.ConfigPath(), []byte("{{invalid yaml:::"), 0644))

	_, err := LoadConfig(scope)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Embeddings.Backend = "word2vec" }},
		{"kind", func(c *Config) { c.Index.Kind = "hnsw" }},
		{"trees", func(c *Config) { c.Index.Trees = -1 }},
		{"source", func(c *Config) { c.Dataset.Source = "s3" }},
		{"file path", func(c *Config) { c.Dataset = DatasetConfig{Source: SourceFile} }},
		{"git url", func(c *Config) { c.Dataset = DatasetConfig{Source: SourceGit, Path: "qa.jsonl"} }},
		{"k", func(c *Config) { c.Retrieval.K = 0 }},
		{"template", func(c *Config) { c.Prompt.Template = "no placeholder" }},
		{"budget", func(c *Config) { c.Prompt.MaxPromptChars = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}

func TestResolveProviderFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	fc, err := DefaultConfig().ResolveProvider("")
	require.NoError(t, err)
	assert.Equal(t, "openai", fc.Provider)
	assert.Equal(t, "sk-env", fc.APIKey)
	assert.Equal(t, "gpt-4", fc.Model)
	assert.Equal(t, DefaultProviderTimeout, fc.Timeout)
	assert.Equal(t, DefaultProviderRetries, fc.Retries)
}

func TestResolveProviderRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-test", Retries: -1}

	fc, err := cfg.ResolveProvider("openai")
	require.NoError(t, err)
	assert.Equal(t, 0, fc.Retries)
}

func TestResolveProviderMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := DefaultConfig().ResolveProvider("anthropic")
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestResolveProviderNamedEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["router"] = ProviderConfig{Type: "openrouter", APIKey: "k", Model: "m"}
	cfg.DefaultProvider = "router"

	fc, err := cfg.ResolveProvider("")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", fc.Provider)
	assert.Equal(t, "m", fc.Model)

	_, err = cfg.ResolveProvider("unknown")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestSaveConfigFileCustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	cfg := DefaultConfig()
	cfg.Retrieval.K = 7
	require.NoError(t, SaveConfigFile(path, cfg))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.K)
}
