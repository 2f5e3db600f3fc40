package internal

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDefaultTemplate(t *testing.T) {
	p, err := NewPromptComposer("", 0)
	require.NoError(t, err)

	got := p.Compose("Why do I have a fever?", []string{"Infections commonly cause fever.", "Second."})
	want := "Using the following medical knowledge:\nInfections commonly cause fever.\nSecond.\n" +
		"Answer the question in a professional and medically accurate manner: Why do I have a fever?"
	assert.Equal(t, want, got)
}

func TestComposePreservesQueryLiterally(t *testing.T) {
	p, err := NewPromptComposer("", 0)
	require.NoError(t, err)

	query := "what does {knowledge} mean? {query}"
	got := p.Compose(query, []string{"K"})
	assert.True(t, strings.HasSuffix(got, query))
	assert.Equal(t, 1, strings.Count(got, "\nK\n"))
}

func TestComposeNoRetrieved(t *testing.T) {
	p, err := NewPromptComposer("{knowledge}|{query}", 0)
	require.NoError(t, err)
	assert.Equal(t, "|q", p.Compose("q", nil))
}

func TestComposeBudgetDropsLeastRelevant(t *testing.T) {
	p, err := NewPromptComposer("{knowledge}\n{query}", 12)
	require.NoError(t, err)

	retrieved := []string{"aaaa", "bbbb", "cccc"}
	got := p.Compose("q", retrieved)
	assert.Equal(t, "aaaa\nbbbb\nq", got)
	assert.Equal(t, 2, p.Kept("q", retrieved))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 12)
}

func TestComposeBudgetNeverTruncatesQuery(t *testing.T) {
	p, err := NewPromptComposer("{knowledge}{query}", 5)
	require.NoError(t, err)

	query := "a question far longer than the budget"
	got := p.Compose(query, []string{"item"})
	assert.Equal(t, query, got)
	assert.Equal(t, 0, p.Kept(query, []string{"item"}))
}

func TestComposeBudgetCountsRunes(t *testing.T) {
	p, err := NewPromptComposer("{knowledge}{query}", 4)
	require.NoError(t, err)
	assert.Equal(t, "éé?", p.Compose("?", []string{"éé"}))
}

func TestNewPromptComposerRequiresQuery(t *testing.T) {
	_, err := NewPromptComposer("only {knowledge}", 0)
	assert.ErrorIs(t, err, ErrConfig)
}
