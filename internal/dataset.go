package internal

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHFDataset    = "ruslanmv/ai-medical-chatbot"
	DefaultHFRowsURL    = "https://datasets-server.huggingface.co"
	DefaultDatasetLimit = 10000

	hfPageSize = 100
)

// DatasetSource supplies the ordered question/answer records the corpus is built from.
type DatasetSource interface {
	Load(ctx context.Context) ([]QAPair, error)
	Describe() string
}

type FieldMapping struct {
	Question string
	Answer   string
}

func (m FieldMapping) withDefaults() FieldMapping {
	if m.Question == "" {
		m.Question = "question"
	}
	if m.Answer == "" {
		m.Answer = "answer"
	}
	return m
}

// NewDatasetSource builds the source selected by cfg.Dataset.
func NewDatasetSource(cfg *Config, scope Scope, logger *slog.Logger) (DatasetSource, error) {
	dc := cfg.Dataset
	fields := FieldMapping{Question: dc.QuestionField, Answer: dc.AnswerField}

	switch dc.Source {
	case SourceFile:
		return &FileSource{
			Path:   scope.Resolve(dc.Path),
			Format: dc.Format,
			Fields: fields,
			Limit:  dc.Limit,
		}, nil
	case SourceHuggingFace, "":
		return &HuggingFaceSource{
			Dataset:  dc.Dataset,
			Config:   dc.Config,
			Split:    dc.Split,
			Fields:   fields,
			Limit:    dc.Limit,
			Token:    os.Getenv("HF_TOKEN"),
			CacheDir: scope.CachePath(),
			Logger:   logger,
		}, nil
	case SourceGit:
		return &GitSource{
			URL:    dc.URL,
			Ref:    dc.Ref,
			Path:   dc.Path,
			Format: dc.Format,
			Fields: fields,
			Limit:  dc.Limit,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset source %q", ErrConfig, dc.Source)
	}
}

// FileSource reads a local jsonl, json, csv or yaml file.
type FileSource struct {
	Path   string
	Format string
	Fields FieldMapping
	Limit  int
}

func (s *FileSource) Describe() string { return "file " + s.Path }

func (s *FileSource) Load(ctx context.Context) ([]QAPair, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := decodeRecords(f, formatFor(s.Format, s.Path))
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", s.Path, err)
	}
	return recordsToPairs(records, s.Fields, s.Limit), nil
}

// GitSource clones a repository into memory and reads one dataset file from it.
type GitSource struct {
	URL    string
	Ref    string
	Path   string
	Format string
	Fields FieldMapping
	Limit  int
}

func (s *GitSource) Describe() string { return fmt.Sprintf("git %s:%s", s.URL, s.Path) }

func (s *GitSource) Load(ctx context.Context) ([]QAPair, error) {
	fs := memfs.New()
	opts := &git.CloneOptions{URL: s.URL}
	if s.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Ref)
		opts.SingleBranch = true
	}
	if isRemoteURL(s.URL) {
		opts.Depth = 1
	}

	if _, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts); err != nil {
		return nil, fmt.Errorf("clone %s: %w", s.URL, err)
	}

	f, err := fs.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", s.Path, s.URL, err)
	}
	defer f.Close()

	records, err := decodeRecords(f, formatFor(s.Format, s.Path))
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", s.Path, err)
	}
	return recordsToPairs(records, s.Fields, s.Limit), nil
}

func isRemoteURL(u string) bool {
	return strings.Contains(u, "://") && !strings.HasPrefix(u, "file://")
}

// HuggingFaceSource pages through the datasets-server rows API and caches the
// mapped pairs as JSONL, so later runs work offline.
type HuggingFaceSource struct {
	BaseURL  string
	Dataset  string
	Config   string
	Split    string
	Fields   FieldMapping
	Limit    int
	Token    string
	CacheDir string
	Client   *http.Client
	Logger   *slog.Logger
}

type hfRowsResponse struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

func (s *HuggingFaceSource) Describe() string {
	return fmt.Sprintf("huggingface %s (%s/%s)", s.Dataset, s.configName(), s.splitName())
}

// CachePath is where the fetched pairs are stored; empty when caching is off.
func (s *HuggingFaceSource) CachePath() string {
	if s.CacheDir == "" {
		return ""
	}
	name := strings.NewReplacer("/", "__", ":", "_").Replace(s.Dataset)
	return filepath.Join(s.CacheDir, fmt.Sprintf("%s-%s-%s-%d.jsonl", name, s.configName(), s.splitName(), s.Limit))
}

func (s *HuggingFaceSource) Load(ctx context.Context) ([]QAPair, error) {
	logger := s.logger()

	if cache := s.CachePath(); cache != "" && fileExists(cache) {
		logger.Debug("using cached dataset", "path", cache)
		return (&FileSource{Path: cache, Format: "jsonl"}).Load(ctx)
	}

	pairs, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if cache := s.CachePath(); cache != "" {
		if err := writePairsJSONL(cache, pairs); err != nil {
			logger.Warn("could not cache dataset", "path", cache, "error", err)
		}
	}

	return pairs, nil
}

// Refresh drops the cache and fetches again.
func (s *HuggingFaceSource) Refresh(ctx context.Context) ([]QAPair, error) {
	if cache := s.CachePath(); cache != "" {
		if err := os.Remove(cache); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove cache: %w", err)
		}
	}
	return s.Load(ctx)
}

func (s *HuggingFaceSource) fetch(ctx context.Context) ([]QAPair, error) {
	logger := s.logger()
	fields := s.Fields.withDefaults()

	var pairs []QAPair
	// Limit counts kept pairs; rows without an answer do not use it up.
	for offset := 0; s.Limit <= 0 || len(pairs) < s.Limit; {
		length := hfPageSize
		if s.Limit > 0 && s.Limit-len(pairs) < length {
			length = s.Limit - len(pairs)
		}

		page, err := s.fetchPage(ctx, offset, length)
		if err != nil {
			return nil, err
		}

		records := make([]map[string]any, len(page.Rows))
		for i, r := range page.Rows {
			records[i] = r.Row
		}
		pairs = append(pairs, recordsToPairs(records, fields, 0)...)

		logger.Debug("fetched dataset page", "offset", offset, "rows", len(page.Rows), "total", page.NumRowsTotal)

		offset += len(page.Rows)
		if len(page.Rows) < length || (page.NumRowsTotal > 0 && offset >= page.NumRowsTotal) {
			break
		}
	}
	if s.Limit > 0 && len(pairs) > s.Limit {
		pairs = pairs[:s.Limit]
	}

	logger.Info("fetched dataset", "dataset", s.Dataset, "pairs", len(pairs))
	return pairs, nil
}

func (s *HuggingFaceSource) fetchPage(ctx context.Context, offset, length int) (*hfRowsResponse, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultHFRowsURL
	}

	q := url.Values{}
	q.Set("dataset", s.Dataset)
	q.Set("config", s.configName())
	q.Set("split", s.splitName())
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rows at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch rows at offset %d: status %d: %s", offset, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page hfRowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode rows at offset %d: %w", offset, err)
	}
	return &page, nil
}

func (s *HuggingFaceSource) configName() string {
	if s.Config == "" {
		return "default"
	}
	return s.Config
}

func (s *HuggingFaceSource) splitName() string {
	if s.Split == "" {
		return "train"
	}
	return s.Split
}

func (s *HuggingFaceSource) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func writePairsJSONL(path string, pairs []QAPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range pairs {
		if err := enc.Encode(map[string]string{"question": p.Question, "answer": p.Answer}); err != nil {
			return fmt.Errorf("encode pair: %w", err)
		}
	}
	return writeFileAtomic(path, &buf)
}

func formatFor(format, path string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "jsonl"
	}
}

func decodeRecords(r io.Reader, format string) ([]map[string]any, error) {
	switch format {
	case "jsonl", "ndjson":
		var records []map[string]any
		dec := json.NewDecoder(r)
		for {
			var rec map[string]any
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(records), err)
			}
			records = append(records, rec)
		}

	case "json":
		var records []map[string]any
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, err
		}
		return records, nil

	case "yaml":
		var records []map[string]any
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return records, nil

	case "csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		header := rows[0]
		records := make([]map[string]any, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rec := make(map[string]any, len(header))
			for i, col := range header {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}
		return records, nil

	default:
		return nil, fmt.Errorf("%w: unsupported dataset format %q", ErrConfig, format)
	}
}

// recordsToPairs keeps record order and skips records without an answer.
func recordsToPairs(records []map[string]any, fields FieldMapping, limit int) []QAPair {
	fields = fields.withDefaults()

	pairs := make([]QAPair, 0, len(records))
	for _, rec := range records {
		if limit > 0 && len(pairs) >= limit {
			break
		}
		answer := strings.TrimSpace(fieldValue(rec, fields.Answer))
		if answer == "" {
			continue
		}
		question := strings.TrimSpace(fieldValue(rec, fields.Question))
		pairs = append(pairs, NewQAPair(question, answer))
	}
	return pairs
}

// fieldValue looks name up exactly, then case-insensitively, then by its
// first letter ("q" for question).
func fieldValue(rec map[string]any, name string) string {
	v, ok := rec[name]
	if !ok {
		for k, val := range rec {
			if strings.EqualFold(k, name) {
				v, ok = val, true
				break
			}
		}
	}
	if !ok && name != "" {
		v, ok = rec[strings.ToLower(name[:1])]
	}
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprint(v)
}
