package v1

import (
	"context"

	"github.com/4thel00z/medrag/internal"
)

// QAPair is one question/answer entry of the knowledge corpus.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is a retrieved corpus entry.
type Result struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Distance float32 `json:"distance"`
}

// Provider sends a prompt to a chat model.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (<-chan string, error)
}

// Errors returned by the client; match with errors.Is.
var (
	ErrConfig            = internal.ErrConfig
	ErrEmptyCorpus       = internal.ErrEmptyCorpus
	ErrDimensionMismatch = internal.ErrDimensionMismatch
	ErrRetrieval         = internal.ErrRetrieval
	ErrInvalidK          = internal.ErrInvalidK
	ErrNoProvider        = internal.ErrNoProvider
)
