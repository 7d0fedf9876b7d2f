package retrieval

import (
	"fmt"
	"strings"

	"github.com/quizforge/quizforge/internal/index"
)

// chunkSeparator marks the paragraph boundary between concatenated chunks.
const chunkSeparator = "\n\n"

// Searcher is the slice of the vector index the retriever needs.
type Searcher interface {
	Search(query string, k int) ([]index.ScoredChunk, error)
}

// Retriever assembles bounded-length context strings from similarity search
// results. It has no state beyond the index handle and no side effects.
type Retriever struct {
	index Searcher
}

// New creates a Retriever over the given fitted index.
func New(ix Searcher) *Retriever {
	return &Retriever{index: ix}
}

// ForTopic returns up to maxLength characters of context relevant to topic:
// the top-k chunks in descending-similarity order joined by paragraph
// breaks. A chunk whose inclusion would exceed the budget is dropped whole
// rather than truncated, so the context never ends mid-sentence. Returns ""
// when the topic matches nothing.
func (r *Retriever) ForTopic(topic string, k, maxLength int) (string, error) {
	if k <= 0 {
		return "", fmt.Errorf("retrieval: k must be positive, got %d", k)
	}
	if maxLength <= 0 {
		return "", fmt.Errorf("retrieval: maxLength must be positive, got %d", maxLength)
	}

	results, err := r.index.Search(topic, k)
	if err != nil {
		return "", fmt.Errorf("searching index: %w", err)
	}

	var sb strings.Builder
	for _, res := range results {
		need := len(res.Chunk)
		if sb.Len() > 0 {
			need += len(chunkSeparator)
		}
		if sb.Len()+need > maxLength {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(chunkSeparator)
		}
		sb.WriteString(res.Chunk)
	}
	return sb.String(), nil
}
