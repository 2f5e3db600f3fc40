package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupUseCaseTest creates a project scope with an offline config in a temp
// dir and chdirs into it.
func setupUseCaseTest(t *testing.T, provider *stubProvider) (*EngineService, Scope) {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmpDir))

	resolver := NewScopeResolver()
	out, err := NewInitUseCase(resolver).Execute(InitInput{Dir: tmpDir})
	require.NoError(t, err)
	require.True(t, out.Created)

	writeJSONL(t, filepath.Join(tmpDir, "qa.jsonl"), medicalRecords())
	cfg := testConfig(filepath.Join(tmpDir, "qa.jsonl"), IndexFlat)
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-test", Model: "gpt-4"}
	require.NoError(t, SaveConfig(out.Scope, cfg))

	factory := func(_ context.Context, fc FantasyConfig) (Provider, error) {
		assert.Equal(t, "sk-test", fc.APIKey)
		return provider, nil
	}
	return NewEngineService(resolver, WithProviderFactory(factory)), out.Scope
}

func TestInitUseCaseKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	uc := NewInitUseCase(NewScopeResolver())

	out, err := uc.Execute(InitInput{Dir: dir})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.FileExists(t, out.Scope.ConfigPath())

	out, err = uc.Execute(InitInput{Dir: dir})
	require.NoError(t, err)
	assert.False(t, out.Created)

	out, err = uc.Execute(InitInput{Dir: dir, Force: true})
	require.NoError(t, err)
	assert.True(t, out.Created)
}

func TestBuildIndexUseCase(t *testing.T) {
	engines, scope := setupUseCaseTest(t, nil)
	uc := NewBuildIndexUseCase(engines)
	ctx := context.Background()

	out, err := uc.Execute(ctx, BuildIndexInput{})
	require.NoError(t, err)
	assert.True(t, out.Built)
	assert.Equal(t, IndexFlat, out.Kind)
	assert.Equal(t, 2, out.Entries)
	assert.Equal(t, scope.IndexPath(), out.Path)

	out, err = uc.Execute(ctx, BuildIndexInput{})
	require.NoError(t, err)
	assert.False(t, out.Built)

	out, err = uc.Execute(ctx, BuildIndexInput{Force: true})
	require.NoError(t, err)
	assert.True(t, out.Built)
}

func TestIndexStatusUseCase(t *testing.T) {
	engines, scope := setupUseCaseTest(t, nil)
	uc := NewIndexStatusUseCase(engines)

	out, err := uc.Execute(IndexStatusInput{})
	require.NoError(t, err)
	assert.False(t, out.Exists)
	assert.Nil(t, out.Header)

	_, err = NewBuildIndexUseCase(engines).Execute(context.Background(), BuildIndexInput{})
	require.NoError(t, err)

	out, err = uc.Execute(IndexStatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Exists)
	require.NotNil(t, out.Header)
	assert.Equal(t, 2, out.Header.N)

	require.NoError(t, os.WriteFile(scope.IndexPath(), []byte("junk"), 0644))
	out, err = uc.Execute(IndexStatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Exists)
	assert.NotEmpty(t, out.Problem)
}

func TestRetrieveUseCase(t *testing.T) {
	engines, _ := setupUseCaseTest(t, nil)

	out, err := NewRetrieveUseCase(engines).Execute(context.Background(), RetrieveInput{
		Query: "Why do I have a fever?",
		K:     1,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Infections commonly cause fever.", out.Results[0].Answer)
	assert.Equal(t, 0, out.Results[0].Position)
	assert.NotEmpty(t, out.Results[0].ID)
}

func TestAskUseCase(t *testing.T) {
	provider := &stubProvider{reply: "It is likely an infection."}
	engines, _ := setupUseCaseTest(t, provider)

	out, err := NewAskUseCase(engines).Execute(context.Background(), AskInput{Query: "Why do I have a fever?"})
	require.NoError(t, err)
	assert.Equal(t, "It is likely an infection.", out.Answer)
	assert.NotEmpty(t, out.Sources)
	assert.Contains(t, provider.lastPrompt(), "Infections commonly cause fever.")
}

func TestAskUseCaseMissingCredentialsFailsFast(t *testing.T) {
	engines, scope := setupUseCaseTest(t, &stubProvider{})
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAskUseCase(engines).Execute(context.Background(), AskInput{Query: "fever", Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrConfig)
	assert.NoFileExists(t, scope.IndexPath())
}

func TestDatasetFetchUseCase(t *testing.T) {
	engines, _ := setupUseCaseTest(t, nil)

	out, err := NewDatasetFetchUseCase(engines).Execute(context.Background(), DatasetFetchInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pairs)
	assert.Contains(t, out.Source, "qa.jsonl")
}

func TestProviderUseCases(t *testing.T) {
	provider := &stubProvider{reply: "hello"}
	engines, _ := setupUseCaseTest(t, provider)
	svc := NewProviderService(engines)

	require.NoError(t, NewProviderAddUseCase(svc).Execute(ProviderInput{
		Name:   "anthropic",
		Config: ProviderConfig{APIKey: "sk-test", Model: "claude"},
	}))
	assert.ErrorIs(t, NewProviderAddUseCase(svc).Execute(ProviderInput{Name: "cohere"}), ErrConfig)

	require.NoError(t, NewProviderSetDefaultUseCase(svc).Execute(ProviderInput{Name: "anthropic"}))
	assert.Error(t, NewProviderSetDefaultUseCase(svc).Execute(ProviderInput{Name: "missing"}))

	list, err := NewProviderListUseCase(svc).Execute(ProviderInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "openai"}, list.Names)
	assert.Equal(t, "anthropic", list.Default)

	reply, err := NewProviderTestUseCase(svc).Execute(context.Background(), ProviderInput{Name: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	require.NoError(t, NewProviderRemoveUseCase(svc).Execute(ProviderInput{Name: "anthropic"}))
	list, err = NewProviderListUseCase(svc).Execute(ProviderInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, list.Names)
	assert.Empty(t, list.Default)
}
