package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/4thel00z/medrag/internal"
)

type stubProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (p *stubProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *stubProvider) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	reply, err := p.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- reply
	close(ch)
	return ch, nil
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

var testRecords = []map[string]string{
	{"q": "What causes fever?", "a": "Infections commonly cause fever."},
	{"q": "What is a migraine?", "a": "A migraine is a neurological headache disorder."},
	{"q": "How do I treat a sprained ankle?", "a": "Rest, ice, compression and elevation help a sprained ankle heal."},
}

// setupProject creates an offline medrag project (file dataset, TF-IDF
// embeddings, flat index) in a temp dir and chdirs into it.
func setupProject(t *testing.T) internal.Scope {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	scope := internal.NewScopeResolver().ProjectAt(tmpDir)
	if err := scope.Init(); err != nil {
		t.Fatalf("init scope: %v", err)
	}

	writeDataset(t, filepath.Join(scope.Dir, "qa.jsonl"), testRecords)

	cfg := internal.DefaultConfig()
	cfg.Dataset = internal.DatasetConfig{
		Source:        internal.SourceFile,
		Path:          "qa.jsonl",
		QuestionField: "q",
		AnswerField:   "a",
	}
	cfg.Index.Kind = internal.IndexFlat
	cfg.Providers["openai"] = internal.ProviderConfig{APIKey: "sk-test", Model: "gpt-4"}
	if err := internal.SaveConfig(scope, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return scope
}

func writeDataset(t *testing.T, path string, records []map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode record: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func withStubProvider(provider internal.Provider) internal.EngineServiceOption {
	return internal.WithProviderFactory(func(context.Context, internal.FantasyConfig) (internal.Provider, error) {
		return provider, nil
	})
}

// runRoot executes the root command with args and returns stdout.
func runRoot(t *testing.T, provider internal.Provider, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test", withStubProvider(provider))
	root.SetArgs(args)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(bytes.NewReader(nil))

	err := root.Execute()
	return out.String(), err
}
