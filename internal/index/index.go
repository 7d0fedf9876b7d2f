package index

import (
	"container/heap"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyCorpus is returned by Fit when there are no chunks to index.
	ErrEmptyCorpus = errors.New("index: empty corpus")

	// ErrNotFitted is returned by operations that require a fitted index.
	ErrNotFitted = errors.New("index: not fitted")

	// ErrCorruptState is returned by Load when the persisted bundle is
	// missing artifacts or fails to decode.
	ErrCorruptState = errors.New("index: corrupt persisted state")
)

// ScoredChunk is a corpus chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk string
	Score float32
}

// Index maps an ordered chunk corpus to TF-IDF vectors and answers top-K
// similarity queries over them.
//
// An Index is either unfit (zero value, queries fail with ErrNotFitted) or
// fit. Fit replaces all prior state; the vocabulary is frozen once built.
// After Fit the index is read-only, so concurrent Search calls are safe
// without locking.
type Index struct {
	vectorizer *Vectorizer
	chunks     []string
	vectors    [][]float32
	fitted     bool
}

// New creates an unfit Index with the given feature cap (<= 0 for default).
func New(maxFeatures int) *Index {
	return &Index{vectorizer: NewVectorizer(maxFeatures)}
}

// Fitted reports whether the index has been fit and can serve queries.
func (ix *Index) Fitted() bool {
	return ix.fitted
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	return len(ix.chunks)
}

// Chunks returns the indexed chunk corpus in fit order. The returned slice
// must not be modified.
func (ix *Index) Chunks() []string {
	return ix.chunks
}

// Fit builds the vocabulary from chunks, vectorizes the corpus, and enables
// queries. Chunks must be non-empty; an empty corpus returns ErrEmptyCorpus.
// Calling Fit again discards all prior state including the vocabulary.
func (ix *Index) Fit(chunks []string) error {
	if len(chunks) == 0 {
		return ErrEmptyCorpus
	}
	for i, c := range chunks {
		if c == "" {
			return fmt.Errorf("index: chunk %d is empty", i)
		}
	}

	v := NewVectorizer(ix.vectorizer.maxFeatures)
	vectors := v.fit(chunks)

	ix.vectorizer = v
	ix.chunks = append([]string(nil), chunks...)
	ix.vectors = vectors
	ix.fitted = true
	return nil
}

// FitParallel is Fit with the per-chunk vectorization pass spread over
// workers goroutines. Vocabulary construction stays sequential; the result
// is identical to Fit.
func (ix *Index) FitParallel(chunks []string, workers int) error {
	if len(chunks) == 0 {
		return ErrEmptyCorpus
	}
	if workers <= 1 {
		return ix.Fit(chunks)
	}

	v := NewVectorizer(ix.vectorizer.maxFeatures)
	// Build the vocabulary (and throw away the sequential vectors) first,
	// then recompute vectors concurrently in the frozen space.
	v.fit(chunks)

	vectors := make([][]float32, len(chunks))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			vectors[i] = v.vectorize(ngrams(tokenize(c)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.vectorizer = v
	ix.chunks = append([]string(nil), chunks...)
	ix.vectors = vectors
	ix.fitted = true
	return nil
}

// Transform projects texts into the fitted feature space. The returned
// vectors are L2-normalized so similarity reduces to a dot product.
func (ix *Index) Transform(texts []string) ([][]float32, error) {
	if !ix.fitted {
		return nil, ErrNotFitted
	}
	return ix.vectorizer.transform(texts), nil
}

// Search returns the top-min(k, Size()) chunks by cosine similarity to the
// query, scores non-increasing. A query sharing no vocabulary with the
// corpus returns no results. Deterministic for a fixed fitted state: score
// ties resolve to the earlier chunk.
func (ix *Index) Search(query string, k int) ([]ScoredChunk, error) {
	if !ix.fitted {
		return nil, ErrNotFitted
	}
	if k <= 0 {
		return nil, nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	qvec := ix.vectorizer.vectorize(ngrams(tokenize(query)))
	if isZero(qvec) {
		return nil, nil
	}

	h := &chunkHeap{}
	heap.Init(h)
	for i, vec := range ix.vectors {
		score := dot(qvec, vec)
		entry := scoredIdx{idx: i, score: score}
		if h.Len() < k {
			heap.Push(h, entry)
		} else if entry.better((*h)[0]) {
			(*h)[0] = entry
			heap.Fix(h, 0)
		}
	}

	results := make([]ScoredChunk, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		e := heap.Pop(h).(scoredIdx)
		results[i] = ScoredChunk{Chunk: ix.chunks[e.idx], Score: e.score}
	}
	return results, nil
}

// dot computes the inner product of two equal-length vectors. Both sides are
// already unit-normalized, so this is cosine similarity.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// scoredIdx tracks a candidate during the scan phase of Search.
type scoredIdx struct {
	idx   int
	score float32
}

// better reports whether e should displace o in the top-K set. Lower chunk
// index wins ties to keep results deterministic.
func (e scoredIdx) better(o scoredIdx) bool {
	if e.score != o.score {
		return e.score > o.score
	}
	return e.idx < o.idx
}

// chunkHeap is a min-heap of scoredIdx: the root is the weakest candidate.
type chunkHeap []scoredIdx

func (h chunkHeap) Len() int           { return len(h) }
func (h chunkHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h chunkHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *chunkHeap) Push(x any)        { *h = append(*h, x.(scoredIdx)) }
func (h *chunkHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
