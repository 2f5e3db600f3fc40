package internal

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions(ns []Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Position
	}
	return out
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	vectors := randomVectors(25, 5, 10)
	path := filepath.Join(t.TempDir(), "data", "medical_index")

	idx, err := BuildFlatIndex(vectors)
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{Model: "m", Fingerprint: "fp"}))

	loaded, err := LoadIndex(path, IndexExpectation{Kind: IndexFlat, N: 25, Dimension: 5, Model: "m", Fingerprint: "fp"})
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, IndexFlat, loaded.Kind())
	assert.Equal(t, 25, loaded.Len())
	assert.Equal(t, 5, loaded.Dimension())

	for _, q := range randomVectors(10, 5, 11) {
		want, err := idx.Search(ctx, q, 4)
		require.NoError(t, err)
		got, err := loaded.Search(ctx, q, 4)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAnnoySaveLoadOverlap(t *testing.T) {
	ctx := context.Background()
	vectors := randomVectors(60, 8, 12)
	path := filepath.Join(t.TempDir(), "idx")
	const k = 5

	idx, err := BuildAnnoyIndex(vectors, 10)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Save(path, IndexMeta{Model: "m"}))

	loaded, err := LoadIndex(path, IndexExpectation{N: 60, Dimension: 8})
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, IndexAnnoy, loaded.Kind())

	h, err := ReadIndexHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 10, h.Trees)

	for _, q := range randomVectors(10, 8, 13) {
		want, err := idx.Search(ctx, q, k)
		require.NoError(t, err)
		got, err := loaded.Search(ctx, q, k)
		require.NoError(t, err)

		overlap := 0
		for _, p := range positions(got) {
			if containsInt(positions(want), p) {
				overlap++
			}
		}
		assert.GreaterOrEqual(t, overlap, k-1)
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	idx, err := BuildFlatIndex(randomVectors(3, 2, 14))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{}))
	require.NoError(t, idx.Save(path, IndexMeta{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "idx", entries[0].Name())
}

func TestLoadIndexMissingFile(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "nope"), IndexExpectation{})
	assert.ErrorIs(t, err, ErrIndexLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadIndexCorruptBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an index"), 0644))

	idx, err := LoadIndex(path, IndexExpectation{})
	assert.ErrorIs(t, err, ErrIndexLoad)
	assert.Nil(t, idx)

	_, err = ReadIndexHeader(path)
	assert.ErrorIs(t, err, ErrIndexLoad)
}

func TestLoadIndexTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildFlatIndex(randomVectors(50, 16, 15))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0644))

	_, err = LoadIndex(path, IndexExpectation{})
	assert.ErrorIs(t, err, ErrIndexLoad)
}

func TestLoadIndexHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildFlatIndex(randomVectors(4, 3, 16))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{Model: "tfidf-a", Fingerprint: "abc"}))

	tests := []struct {
		name   string
		expect IndexExpectation
	}{
		{"dimension", IndexExpectation{Dimension: 4}},
		{"entries", IndexExpectation{N: 5}},
		{"model", IndexExpectation{Model: "tfidf-b"}},
		{"fingerprint", IndexExpectation{Fingerprint: "xyz"}},
		{"kind", IndexExpectation{Kind: IndexAnnoy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadIndex(path, tt.expect)
			assert.ErrorIs(t, err, ErrIndexLoad)
		})
	}

	_, err = LoadIndex(path, IndexExpectation{Dimension: 4})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestReadIndexHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildFlatIndex(randomVectors(7, 3, 17))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{Model: "m", Fingerprint: "f"}))

	h, err := ReadIndexHeader(path)
	require.NoError(t, err)
	assert.Equal(t, IndexFlat, h.Kind)
	assert.Equal(t, 7, h.N)
	assert.Equal(t, 3, h.Dimension)
	assert.Equal(t, "m", h.Model)
	assert.Equal(t, "f", h.Fingerprint)
	assert.False(t, h.BuiltAt.IsZero())
}

// rewritePayload re-encodes the file at path with a mutated payload and the
// original header, checksum included.
func rewritePayload(t *testing.T, path string, mutate func(*indexPayload)) {
	t.Helper()
	f, err := readIndexFile(path)
	require.NoError(t, err)

	payload := indexPayload{Vectors: f.Vectors, Annoy: f.Annoy}
	mutate(&payload)

	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	enc := gob.NewEncoder(out)
	require.NoError(t, enc.Encode(f.Header))
	require.NoError(t, enc.Encode(payload))
}

func TestLoadIndexCorruptAnnoyPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildAnnoyIndex(randomVectors(50, 8, 18), 8)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Save(path, IndexMeta{}))

	rewritePayload(t, path, func(p *indexPayload) {
		for i := len(p.Annoy) / 2; i < len(p.Annoy); i += 3 {
			p.Annoy[i] ^= 0xFF
		}
	})

	loaded, err := LoadIndex(path, IndexExpectation{})
	assert.ErrorIs(t, err, ErrIndexLoad)
	assert.Contains(t, err.Error(), "checksum")
	assert.Nil(t, loaded)

	h, err := ReadIndexHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 50, h.N)
}

func TestLoadIndexCorruptVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildFlatIndex(randomVectors(6, 4, 19))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path, IndexMeta{}))

	rewritePayload(t, path, func(p *indexPayload) {
		p.Vectors[3] += 1
	})

	_, err = LoadIndex(path, IndexExpectation{})
	assert.ErrorIs(t, err, ErrIndexLoad)
}

func TestAnnoyIndexFileKeepsVectors(t *testing.T) {
	vectors := randomVectors(20, 4, 21)
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := BuildAnnoyIndex(vectors, 4)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Save(path, IndexMeta{}))

	f, err := readIndexFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Vectors, 20*4)
	assert.NotEmpty(t, f.Annoy)
	assert.Len(t, f.Header.Checksum, 64)
}
