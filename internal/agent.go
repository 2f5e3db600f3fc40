package internal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

var _ Answerer = (*RAGAnswerer)(nil)

type AnswerResult struct {
	Answer  string
	Prompt  string
	Sources []Retrieved
}

// RAGAnswerer retrieves context for a question, composes the prompt and
// forwards it to the chat provider.
type RAGAnswerer struct {
	retriever *Retriever
	composer  *PromptComposer
	provider  Provider
	k         int
	logger    *slog.Logger
}

func NewRAGAnswerer(retriever *Retriever, composer *PromptComposer, provider Provider, k int, logger *slog.Logger) *RAGAnswerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGAnswerer{
		retriever: retriever,
		composer:  composer,
		provider:  provider,
		k:         k,
		logger:    logger,
	}
}

func (a *RAGAnswerer) Answer(ctx context.Context, query string) (string, error) {
	res, err := a.AnswerWithSources(ctx, query)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

func (a *RAGAnswerer) AnswerWithSources(ctx context.Context, query string) (*AnswerResult, error) {
	prompt, hits, err := a.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	answer, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	return &AnswerResult{
		Answer:  strings.TrimSpace(answer),
		Prompt:  prompt,
		Sources: hits,
	}, nil
}

// Stream is Answer with the completion delivered incrementally.
func (a *RAGAnswerer) Stream(ctx context.Context, query string) (<-chan string, error) {
	prompt, _, err := a.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	ch, err := a.provider.Stream(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return ch, nil
}

func (a *RAGAnswerer) prepare(ctx context.Context, query string) (string, []Retrieved, error) {
	if a.provider == nil {
		return "", nil, ErrNoProvider
	}

	hits, err := a.retriever.RetrieveScored(ctx, query, a.k)
	if err != nil {
		return "", nil, fmt.Errorf("retrieve: %w", err)
	}

	answers := make([]string, len(hits))
	for i, h := range hits {
		answers[i] = h.Pair.Answer
	}

	prompt := a.composer.Compose(query, answers)
	a.logger.Debug("composed prompt", "hits", len(hits), "kept", a.composer.Kept(query, answers), "chars", len(prompt))

	return prompt, hits, nil
}
