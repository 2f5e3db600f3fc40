package internal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// qaNamespace seeds the name-based IDs of corpus entries.
var qaNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/4thel00z/medrag/qa"))

type QAPair struct {
	ID       string
	Question string
	Answer   string
}

// NewQAPair derives the ID from the pair's content, so the same record gets
// the same ID across restarts and dataset reloads.
func NewQAPair(question, answer string) QAPair {
	id := uuid.NewSHA1(qaNamespace, []byte(question+"\x00"+answer))
	return QAPair{
		ID:       id.String(),
		Question: question,
		Answer:   answer,
	}
}

// EmbeddingText is the text embedded for this pair at build time.
func (p QAPair) EmbeddingText() string {
	return p.Question + " " + p.Answer
}

// Corpus is an ordered, read-only sequence of QAPair. Position i lines up
// with row i of the VectorIndex built from it.
type Corpus struct {
	pairs []QAPair
}

func NewCorpus(pairs []QAPair) *Corpus {
	cp := make([]QAPair, len(pairs))
	copy(cp, pairs)
	return &Corpus{pairs: cp}
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.pairs)
}

func (c *Corpus) At(i int) (QAPair, bool) {
	if c == nil || i < 0 || i >= len(c.pairs) {
		return QAPair{}, false
	}
	return c.pairs[i], true
}

func (c *Corpus) Texts() []string {
	texts := make([]string, len(c.pairs))
	for i, p := range c.pairs {
		texts[i] = p.EmbeddingText()
	}
	return texts
}

// Fingerprint hashes the ordered entry IDs. Reordering, adding or dropping
// an entry changes it.
func (c *Corpus) Fingerprint() string {
	h := sha256.New()
	for _, p := range c.pairs {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
