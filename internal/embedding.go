package internal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

// NewEmbedder constructs the embedder selected by cfg.Embeddings.Backend.
// Corpus-fitted embedders are returned unfitted.
func NewEmbedder(ctx context.Context, cfg *Config, scope Scope, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ec := cfg.Embeddings

	switch ec.Backend {
	case BackendTFIDF, "":
		return NewTFIDFEmbedder(ec.MaxFeatures), nil

	case BackendOpenAI:
		return NewOpenAIEmbedder(OpenAIEmbedderConfig{
			APIKey:    cfg.EmbeddingsAPIKey(),
			BaseURL:   ec.BaseURL,
			Model:     ec.Model,
			BatchSize: ec.BatchSize,
			Logger:    logger,
		})

	case BackendGollama:
		device, err := ParseDevice(ec.Device)
		if err != nil {
			return nil, err
		}
		modelPath, err := ensureLocalModel(ctx, ec, scope, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("loading local embedding model", "path", modelPath, "device", device)
		return NewLocalEmbedder(modelPath, ec.Dimension, WithDevice(device))

	default:
		return nil, fmt.Errorf("%w: unknown embeddings backend %q", ErrConfig, ec.Backend)
	}
}

// ensureLocalModel returns ec.Model when it names an existing file, otherwise
// downloads ec.ModelURL into the scope's model directory.
func ensureLocalModel(ctx context.Context, ec EmbeddingsConfig, scope Scope, logger *slog.Logger) (string, error) {
	if ec.Model != "" {
		if path := scope.Resolve(ec.Model); fileExists(path) {
			return path, nil
		}
	}

	var filename string
	if ec.Model != "" {
		filename = filepath.Base(ec.Model)
	}
	url := ec.ModelURL
	if url == "" {
		url = DefaultModelURL
		if filename == "" {
			filename = DefaultModelFilename
		}
	}

	d := NewDownloader(scope.ModelsPath(), os.Getenv("HF_TOKEN"), nil)
	d.logger = logger
	path, err := d.EnsureModel(ctx, url, filename, nil)
	if err != nil {
		return "", fmt.Errorf("fetch embedding model: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}

	return result
}
