package internal

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T, opts EngineOptions) *Engine {
	t.Helper()
	eng, err := OpenEngine(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func engineOptions(t *testing.T, kind IndexKind) EngineOptions {
	t.Helper()
	dir := t.TempDir()
	datasetPath := filepath.Join(dir, "qa.jsonl")
	writeJSONL(t, datasetPath, medicalRecords())

	return EngineOptions{
		Config: testConfig(datasetPath, kind),
		Scope:  NewScopeResolver().ProjectAt(dir),
	}
}

func TestEngineEndToEnd(t *testing.T) {
	for _, kind := range []IndexKind{IndexFlat, IndexAnnoy} {
		t.Run(string(kind), func(t *testing.T) {
			provider := &stubProvider{reply: "Probably an infection."}
			opts := engineOptions(t, kind)
			opts.Provider = provider
			eng := openTestEngine(t, opts)

			assert.True(t, eng.Built())
			assert.Equal(t, 2, eng.Corpus().Len())
			assert.Equal(t, kind, eng.Index().Kind())
			assert.FileExists(t, eng.IndexPath())

			got, err := eng.Retrieve(context.Background(), "Why do I have a fever?", 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"Infections commonly cause fever."}, got)

			answerer, err := eng.Answerer()
			require.NoError(t, err)
			answer, err := answerer.Answer(context.Background(), "Why do I have a fever?")
			require.NoError(t, err)
			assert.Equal(t, "Probably an infection.", answer)
			assert.Contains(t, provider.lastPrompt(), "Infections commonly cause fever.")
		})
	}
}

func TestEngineDefaultIndexPath(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	eng := openTestEngine(t, opts)
	assert.Equal(t, opts.Scope.IndexPath(), eng.IndexPath())
	assert.Equal(t, filepath.Join(opts.Scope.Dir, "data", "medical_index"), eng.IndexPath())
}

func TestEngineReusesIndex(t *testing.T) {
	opts := engineOptions(t, IndexFlat)

	first := openTestEngine(t, opts)
	require.True(t, first.Built())
	before, err := ReadIndexHeader(first.IndexPath())
	require.NoError(t, err)

	second := openTestEngine(t, opts)
	assert.False(t, second.Built())

	after, err := ReadIndexHeader(second.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, before.BuiltAt, after.BuiltAt)
}

func TestEngineForceRebuild(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	openTestEngine(t, opts)

	opts.ForceRebuild = true
	eng := openTestEngine(t, opts)
	assert.True(t, eng.Built())
}

func TestEngineRebuildsCorruptIndex(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	var logs bytes.Buffer
	opts.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	path := opts.Scope.IndexPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	eng := openTestEngine(t, opts)
	assert.True(t, eng.Built())
	assert.Contains(t, logs.String(), "index unusable")

	got, err := eng.Retrieve(context.Background(), "migraine", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A migraine is a neurological headache disorder."}, got)
}

func TestEngineRebuildsCorruptAnnoyPayload(t *testing.T) {
	opts := engineOptions(t, IndexAnnoy)
	first := openTestEngine(t, opts)
	require.True(t, first.Built())
	require.NoError(t, first.Close())

	rewritePayload(t, opts.Scope.IndexPath(), func(p *indexPayload) {
		for i := len(p.Annoy) / 2; i < len(p.Annoy); i += 3 {
			p.Annoy[i] ^= 0xFF
		}
	})

	eng := openTestEngine(t, opts)
	assert.True(t, eng.Built())

	got, err := eng.Retrieve(context.Background(), "migraine", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A migraine is a neurological headache disorder."}, got)
}

func TestEngineRebuildsOnDimensionMismatch(t *testing.T) {
	opts := engineOptions(t, IndexFlat)

	stale, err := BuildFlatIndex(randomVectors(2, 3, 20))
	require.NoError(t, err)
	require.NoError(t, stale.Save(opts.Scope.IndexPath(), IndexMeta{}))

	eng := openTestEngine(t, opts)
	assert.True(t, eng.Built())
	assert.NotEqual(t, 3, eng.Index().Dimension())
}

func TestEngineRebuildsWhenCorpusChanges(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	openTestEngine(t, opts)

	writeJSONL(t, opts.Config.Dataset.Path, append(medicalRecords(),
		map[string]string{"q": "What is asthma?", "a": "Asthma is a chronic airway disease."}))

	eng := openTestEngine(t, opts)
	assert.True(t, eng.Built())
	assert.Equal(t, 3, eng.Index().Len())
}

func TestEngineEmptyCorpus(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	opts.Source = &sliceSource{}

	_, err := OpenEngine(context.Background(), opts)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
	assert.NoFileExists(t, opts.Scope.IndexPath())
}

func TestEngineInvalidConfig(t *testing.T) {
	opts := engineOptions(t, IndexFlat)
	opts.Config.Retrieval.K = 0

	_, err := OpenEngine(context.Background(), opts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEngineWithoutProvider(t *testing.T) {
	eng := openTestEngine(t, engineOptions(t, IndexFlat))
	_, err := eng.Answerer()
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestEnginesAreIndependent(t *testing.T) {
	a := openTestEngine(t, engineOptions(t, IndexFlat))

	opts := engineOptions(t, IndexFlat)
	opts.Source = &sliceSource{pairs: largerPairs()}
	b := openTestEngine(t, opts)

	assert.Equal(t, 2, a.Corpus().Len())
	assert.Equal(t, 6, b.Corpus().Len())
	assert.NotEqual(t, a.IndexPath(), b.IndexPath())

	got, err := b.Retrieve(context.Background(), "asthma cough weeks", 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got[0], "A cough"))
}
