package internal

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	placeholderKnowledge = "{knowledge}"
	placeholderQuery     = "{query}"

	DefaultPromptTemplate = "Using the following medical knowledge:\n{knowledge}\n" +
		"Answer the question in a professional and medically accurate manner: {query}"
)

// PromptComposer renders the retrieved answers and the user question into a
// single prompt for the chat model.
type PromptComposer struct {
	template string
	maxChars int
}

// NewPromptComposer validates template; an empty template selects the default.
// maxChars <= 0 disables the budget.
func NewPromptComposer(template string, maxChars int) (*PromptComposer, error) {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if !strings.Contains(template, placeholderQuery) {
		return nil, fmt.Errorf("%w: prompt template must contain %s", ErrConfig, placeholderQuery)
	}
	if maxChars < 0 {
		maxChars = 0
	}
	return &PromptComposer{template: template, maxChars: maxChars}, nil
}

// Compose joins retrieved (nearest first) with newlines into the knowledge
// block. With a budget, items are dropped from the end until the prompt fits;
// the query itself is never shortened.
func (p *PromptComposer) Compose(query string, retrieved []string) string {
	return p.render(query, retrieved[:p.Kept(query, retrieved)])
}

// Kept reports how many retrieved items Compose would include.
func (p *PromptComposer) Kept(query string, retrieved []string) int {
	n := len(retrieved)
	for n > 0 && p.maxChars > 0 && utf8.RuneCountInString(p.render(query, retrieved[:n])) > p.maxChars {
		n--
	}
	return n
}

// render substitutes both placeholders in one pass, so placeholder text inside
// the query or the knowledge is left as is.
func (p *PromptComposer) render(query string, items []string) string {
	r := strings.NewReplacer(
		placeholderKnowledge, strings.Join(items, "\n"),
		placeholderQuery, query,
	)
	return r.Replace(p.template)
}
