package internal

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

const (
	indexMagic   = "medrag-index"
	indexVersion = 2
)

// IndexMeta ties an index file to the corpus and embedder it was built from.
type IndexMeta struct {
	Model       string
	Fingerprint string
}

// IndexHeader is the first record of an index file.
type IndexHeader struct {
	Magic       string
	Version     int
	Kind        IndexKind
	N           int
	Dimension   int
	Model       string
	Fingerprint string
	Trees       int
	BuiltAt     time.Time
	// Checksum is the SHA-256 of the payload, hex encoded.
	Checksum string
}

// IndexExpectation lists what a loaded header must match. Zero fields are not checked.
type IndexExpectation struct {
	Kind        IndexKind
	N           int
	Dimension   int
	Model       string
	Fingerprint string
}

type indexPayload struct {
	Vectors []float32
	Annoy   []byte
}

type indexFile struct {
	Header  IndexHeader
	Vectors []float32
	Annoy   []byte
}

// writeIndexFile writes to a temp file next to path and renames it into
// place, so readers never observe a partially written index.
func writeIndexFile(path string, f indexFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	f.Header.Magic = indexMagic
	f.Header.Version = indexVersion
	f.Header.Checksum = payloadChecksum(f.Vectors, f.Annoy)
	if f.Header.BuiltAt.IsZero() {
		f.Header.BuiltAt = time.Now().UTC()
	}

	w := bufio.NewWriter(tmp)
	enc := gob.NewEncoder(w)
	err = enc.Encode(f.Header)
	if err == nil {
		err = enc.Encode(indexPayload{Vectors: f.Vectors, Annoy: f.Annoy})
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write index: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index: %w", err)
	}

	return nil
}

func ReadIndexHeader(path string) (IndexHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return IndexHeader{}, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}
	defer file.Close()

	var h IndexHeader
	if err := decodeGob(gob.NewDecoder(bufio.NewReader(file)), &h); err != nil {
		return IndexHeader{}, fmt.Errorf("%w: decode header of %s: %w", ErrIndexLoad, path, err)
	}
	if err := h.validate(); err != nil {
		return IndexHeader{}, fmt.Errorf("%w: %s: %w", ErrIndexLoad, path, err)
	}
	return h, nil
}

// LoadIndex reads an index file written by VectorIndex.Save. Any problem with
// the file, including a header that does not match expect, is reported as
// ErrIndexLoad; it never returns an empty usable index.
func LoadIndex(path string, expect IndexExpectation) (VectorIndex, error) {
	f, err := readIndexFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}

	if err := f.Header.matches(expect); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexLoad, path, err)
	}

	if len(f.Vectors) != f.Header.N*f.Header.Dimension {
		return nil, fmt.Errorf("%w: %s: payload has %d floats, header declares %dx%d",
			ErrIndexLoad, path, len(f.Vectors), f.Header.N, f.Header.Dimension)
	}

	switch f.Header.Kind {
	case IndexFlat:
		return newFlatIndexFromData(f.Vectors, f.Header.N, f.Header.Dimension), nil
	case IndexAnnoy:
		idx, err := loadAnnoyIndex(f.Header, f.Annoy, f.Vectors)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrIndexLoad, path, err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown index kind %q", ErrIndexLoad, path, f.Header.Kind)
	}
}

func readIndexFile(path string) (*indexFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec := gob.NewDecoder(bufio.NewReader(file))

	var f indexFile
	if err := decodeGob(dec, &f.Header); err != nil {
		return nil, fmt.Errorf("decode header of %s: %w", path, err)
	}
	if err := f.Header.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var payload indexPayload
	if err := decodeGob(dec, &payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", path, err)
	}
	f.Vectors = payload.Vectors
	f.Annoy = payload.Annoy

	if sum := payloadChecksum(f.Vectors, f.Annoy); sum != f.Header.Checksum {
		return nil, fmt.Errorf("%s: payload checksum mismatch", path)
	}

	return &f, nil
}

func payloadChecksum(vectors []float32, annoy []byte) string {
	h := sha256.New()
	var buf [4]byte
	for _, v := range vectors {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	h.Write(annoy)
	return hex.EncodeToString(h.Sum(nil))
}

// decodeGob turns decoder panics on corrupt input into errors.
func decodeGob(dec *gob.Decoder, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt data: %v", r)
		}
	}()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func (h IndexHeader) validate() error {
	if h.Magic != indexMagic {
		return fmt.Errorf("not an index file (magic %q)", h.Magic)
	}
	if h.Version != indexVersion {
		return fmt.Errorf("unsupported index version %d", h.Version)
	}
	if h.N <= 0 || h.Dimension <= 0 {
		return fmt.Errorf("invalid shape %dx%d", h.N, h.Dimension)
	}
	return nil
}

func (h IndexHeader) matches(expect IndexExpectation) error {
	if expect.Kind != "" && h.Kind != expect.Kind {
		return fmt.Errorf("file holds a %s index, configured kind is %s", h.Kind, expect.Kind)
	}
	if expect.Dimension != 0 && h.Dimension != expect.Dimension {
		return fmt.Errorf("%w: file has dimension %d, expected %d", ErrDimensionMismatch, h.Dimension, expect.Dimension)
	}
	if expect.N != 0 && h.N != expect.N {
		return fmt.Errorf("file has %d entries, corpus has %d", h.N, expect.N)
	}
	if expect.Model != "" && h.Model != expect.Model {
		return fmt.Errorf("file built with model %q, current model is %q", h.Model, expect.Model)
	}
	if expect.Fingerprint != "" && h.Fingerprint != expect.Fingerprint {
		return fmt.Errorf("file built from a different corpus")
	}
	return nil
}
