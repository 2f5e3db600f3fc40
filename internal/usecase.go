package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Use case input/output DTOs

type InitInput struct {
	Dir    string
	Global bool
	Force  bool
}

type InitOutput struct {
	Scope   Scope
	Created bool
}

type BuildIndexInput struct {
	Scope string
	Force bool
}

type BuildIndexOutput struct {
	Path      string
	Kind      IndexKind
	Entries   int
	Dimension int
	Model     string
	Built     bool
	Duration  time.Duration
}

type IndexStatusInput struct {
	Scope string
}

type IndexStatusOutput struct {
	Path       string
	Exists     bool
	Header     *IndexHeader
	Problem    string
	Configured IndexKind
}

type RetrieveInput struct {
	Query string
	K     int
	Scope string
}

type RetrieveResult struct {
	Position int     `json:"position"`
	ID       string  `json:"id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Distance float32 `json:"distance"`
}

type RetrieveOutput struct {
	Query   string           `json:"query"`
	Results []RetrieveResult `json:"results"`
}

type AskInput struct {
	Query    string
	Scope    string
	Provider string
}

type AskOutput struct {
	Answer  string           `json:"answer"`
	Sources []RetrieveResult `json:"sources"`
}

type DatasetFetchInput struct {
	Scope   string
	Refresh bool
}

type DatasetFetchOutput struct {
	Source string
	Pairs  int
	Cache  string
}

type ProviderInput struct {
	Name   string
	Scope  string
	Config ProviderConfig
}

type ProviderListOutput struct {
	Names   []string
	Default string
}

func toResults(hits []Retrieved) []RetrieveResult {
	out := make([]RetrieveResult, len(hits))
	for i, h := range hits {
		out[i] = RetrieveResult{
			Position: h.Position,
			ID:       h.Pair.ID,
			Question: h.Pair.Question,
			Answer:   h.Pair.Answer,
			Distance: h.Distance,
		}
	}
	return out
}

type InitUseCase struct {
	resolver *ScopeResolver
}

func NewInitUseCase(resolver *ScopeResolver) *InitUseCase {
	return &InitUseCase{resolver: resolver}
}

// Execute creates a project scope in input.Dir (or the global scope) with a
// default config. An existing config is kept unless Force is set.
func (uc *InitUseCase) Execute(input InitInput) (*InitOutput, error) {
	scope := uc.resolver.ProjectAt(input.Dir)
	if input.Global {
		scope = uc.resolver.Global()
	}
	if err := scope.Init(); err != nil {
		return nil, err
	}

	if fileExists(scope.ConfigPath()) && !input.Force {
		return &InitOutput{Scope: scope}, nil
	}
	if err := SaveConfig(scope, DefaultConfig()); err != nil {
		return nil, err
	}
	return &InitOutput{Scope: scope, Created: true}, nil
}

type BuildIndexUseCase struct {
	engines *EngineService
}

func NewBuildIndexUseCase(engines *EngineService) *BuildIndexUseCase {
	return &BuildIndexUseCase{engines: engines}
}

func (uc *BuildIndexUseCase) Execute(ctx context.Context, input BuildIndexInput) (*BuildIndexOutput, error) {
	eng, err := uc.engines.Open(ctx, OpenRequest{Scope: input.Scope, ForceRebuild: input.Force})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	idx := eng.Index()
	return &BuildIndexOutput{
		Path:      eng.IndexPath(),
		Kind:      idx.Kind(),
		Entries:   idx.Len(),
		Dimension: idx.Dimension(),
		Model:     eng.Embedder().Model(),
		Built:     eng.Built(),
		Duration:  eng.BuildDuration(),
	}, nil
}

type IndexStatusUseCase struct {
	engines *EngineService
}

func NewIndexStatusUseCase(engines *EngineService) *IndexStatusUseCase {
	return &IndexStatusUseCase{engines: engines}
}

// Execute reads only the index header; it never loads the dataset.
func (uc *IndexStatusUseCase) Execute(input IndexStatusInput) (*IndexStatusOutput, error) {
	scope, cfg, err := uc.engines.Load(input.Scope)
	if err != nil {
		return nil, err
	}

	path := scope.Resolve(cfg.Index.Path)
	if path == "" {
		path = scope.IndexPath()
	}

	out := &IndexStatusOutput{Path: path, Configured: cfg.Index.Kind}
	h, err := ReadIndexHeader(path)
	switch {
	case err == nil:
		out.Exists = true
		out.Header = &h
	case errors.Is(err, os.ErrNotExist):
	default:
		out.Exists = true
		out.Problem = err.Error()
	}
	return out, nil
}

type RetrieveUseCase struct {
	engines *EngineService
}

func NewRetrieveUseCase(engines *EngineService) *RetrieveUseCase {
	return &RetrieveUseCase{engines: engines}
}

func (uc *RetrieveUseCase) Execute(ctx context.Context, input RetrieveInput) (*RetrieveOutput, error) {
	eng, err := uc.engines.Open(ctx, OpenRequest{Scope: input.Scope})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	return RetrieveWith(ctx, eng, input.Query, input.K)
}

// RetrieveWith runs a retrieval on an already open engine.
func RetrieveWith(ctx context.Context, eng *Engine, query string, k int) (*RetrieveOutput, error) {
	hits, err := eng.RetrieveScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return &RetrieveOutput{Query: query, Results: toResults(hits)}, nil
}

type AskUseCase struct {
	engines *EngineService
}

func NewAskUseCase(engines *EngineService) *AskUseCase {
	return &AskUseCase{engines: engines}
}

func (uc *AskUseCase) Execute(ctx context.Context, input AskInput) (*AskOutput, error) {
	eng, err := uc.engines.Open(ctx, OpenRequest{
		Scope:        input.Scope,
		WithProvider: true,
		Provider:     input.Provider,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	return AskWith(ctx, eng, input.Query)
}

// AskWith answers on an already open engine.
func AskWith(ctx context.Context, eng *Engine, query string) (*AskOutput, error) {
	answerer, err := eng.Answerer()
	if err != nil {
		return nil, err
	}
	res, err := answerer.AnswerWithSources(ctx, query)
	if err != nil {
		return nil, err
	}
	return &AskOutput{Answer: res.Answer, Sources: toResults(res.Sources)}, nil
}

type DatasetFetchUseCase struct {
	engines *EngineService
}

func NewDatasetFetchUseCase(engines *EngineService) *DatasetFetchUseCase {
	return &DatasetFetchUseCase{engines: engines}
}

func (uc *DatasetFetchUseCase) Execute(ctx context.Context, input DatasetFetchInput) (*DatasetFetchOutput, error) {
	scope, cfg, err := uc.engines.Load(input.Scope)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	source, err := NewDatasetSource(cfg, scope, uc.engines.logger)
	if err != nil {
		return nil, err
	}

	var pairs []QAPair
	out := &DatasetFetchOutput{Source: source.Describe()}
	if hf, ok := source.(*HuggingFaceSource); ok {
		out.Cache = hf.CachePath()
		if input.Refresh {
			pairs, err = hf.Refresh(ctx)
		} else {
			pairs, err = hf.Load(ctx)
		}
	} else {
		pairs, err = source.Load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	out.Pairs = len(pairs)
	return out, nil
}

type ProviderListUseCase struct{ svc *ProviderService }

func NewProviderListUseCase(svc *ProviderService) *ProviderListUseCase {
	return &ProviderListUseCase{svc: svc}
}

func (uc *ProviderListUseCase) Execute(input ProviderInput) (*ProviderListOutput, error) {
	names, def, err := uc.svc.List(input.Scope)
	if err != nil {
		return nil, err
	}
	return &ProviderListOutput{Names: names, Default: def}, nil
}

type ProviderAddUseCase struct{ svc *ProviderService }

func NewProviderAddUseCase(svc *ProviderService) *ProviderAddUseCase {
	return &ProviderAddUseCase{svc: svc}
}

func (uc *ProviderAddUseCase) Execute(input ProviderInput) error {
	if input.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	return uc.svc.Add(input.Name, input.Config, input.Scope)
}

type ProviderRemoveUseCase struct{ svc *ProviderService }

func NewProviderRemoveUseCase(svc *ProviderService) *ProviderRemoveUseCase {
	return &ProviderRemoveUseCase{svc: svc}
}

func (uc *ProviderRemoveUseCase) Execute(input ProviderInput) error {
	return uc.svc.Remove(input.Name, input.Scope)
}

type ProviderSetDefaultUseCase struct{ svc *ProviderService }

func NewProviderSetDefaultUseCase(svc *ProviderService) *ProviderSetDefaultUseCase {
	return &ProviderSetDefaultUseCase{svc: svc}
}

func (uc *ProviderSetDefaultUseCase) Execute(input ProviderInput) error {
	return uc.svc.SetDefault(input.Name, input.Scope)
}

type ProviderTestUseCase struct{ svc *ProviderService }

func NewProviderTestUseCase(svc *ProviderService) *ProviderTestUseCase {
	return &ProviderTestUseCase{svc: svc}
}

func (uc *ProviderTestUseCase) Execute(ctx context.Context, input ProviderInput) (string, error) {
	return uc.svc.Test(ctx, input.Name, input.Scope)
}
