package internal

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
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

func (p *stubProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

type sliceSource struct {
	pairs []QAPair
	err   error
	loads int
}

func (s *sliceSource) Load(context.Context) ([]QAPair, error) {
	s.loads++
	return s.pairs, s.err
}

func (s *sliceSource) Describe() string { return "memory" }

func medicalPairs() []QAPair {
	return []QAPair{
		NewQAPair("What causes fever?", "Infections commonly cause fever."),
		NewQAPair("What is a migraine?", "A migraine is a neurological headache disorder."),
	}
}

func largerPairs() []QAPair {
	return append(medicalPairs(),
		NewQAPair("How do I treat a sprained ankle?", "Rest, ice, compression and elevation help a sprained ankle heal."),
		NewQAPair("What lowers blood pressure?", "Regular exercise and less salt lower blood pressure."),
		NewQAPair("Is a persistent cough serious?", "A cough lasting more than three weeks should be examined by a doctor."),
		NewQAPair("What causes diabetes?", "Type 2 diabetes is linked to insulin resistance and genetics."),
	)
}

func fittedTFIDF(t *testing.T, pairs []QAPair) *TFIDFEmbedder {
	t.Helper()
	e := NewTFIDFEmbedder(0)
	require.NoError(t, e.Fit(NewCorpus(pairs).Texts()))
	return e
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func writeJSONL(t *testing.T, path string, records []map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
}

// testConfig is an offline configuration reading a local JSONL file.
func testConfig(datasetPath string, kind IndexKind) *Config {
	cfg := DefaultConfig()
	cfg.Dataset = DatasetConfig{
		Source:        SourceFile,
		Path:          datasetPath,
		QuestionField: "q",
		AnswerField:   "a",
	}
	cfg.Index.Kind = kind
	cfg.Index.Trees = 8
	return cfg
}

func medicalRecords() []map[string]string {
	return []map[string]string{
		{"q": "What causes fever?", "a": "Infections commonly cause fever."},
		{"q": "What is a migraine?", "a": "A migraine is a neurological headache disorder."},
	}
}
