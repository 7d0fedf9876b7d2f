package index

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// defaultMaxFeatures caps the TF-IDF feature space. Matches the corpus sizes
// this system targets (a few hundred chunks per document).
const defaultMaxFeatures = 5000

// Vectorizer converts text into L2-normalized TF-IDF vectors over unigrams
// and bigrams. The vocabulary is built once by fit and frozen afterwards:
// transform projects new text into the existing feature space and never
// expands it.
//
// TF-IDF is used instead of dense neural embeddings deliberately: it keeps
// memory and latency bounded without a GPU or a model download. The trade is
// lexical rather than semantic recall.
type Vectorizer struct {
	maxFeatures int
	vocab       map[string]int // term -> feature column
	terms       []string       // column -> term, for persistence
	idf         []float32      // column -> inverse document frequency
}

// NewVectorizer creates a Vectorizer with the given feature cap.
// If maxFeatures <= 0, the default (5000) is used.
func NewVectorizer(maxFeatures int) *Vectorizer {
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxFeatures
	}
	return &Vectorizer{maxFeatures: maxFeatures}
}

// Dimension returns the size of the fitted feature space (0 before fit).
func (v *Vectorizer) Dimension() int {
	return len(v.terms)
}

// fit builds the vocabulary and IDF weights from the corpus and returns the
// corpus vectors. Terms are ranked by total corpus frequency; ties break
// alphabetically so the feature space is deterministic.
func (v *Vectorizer) fit(docs []string) [][]float32 {
	df := make(map[string]int)  // documents containing term
	tcf := make(map[string]int) // total corpus frequency

	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		grams := ngrams(tokenize(doc))
		tokenized[i] = grams

		seen := make(map[string]bool, len(grams))
		for _, g := range grams {
			tcf[g]++
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}

	terms := make([]string, 0, len(tcf))
	for t := range tcf {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if tcf[terms[i]] != tcf[terms[j]] {
			return tcf[terms[i]] > tcf[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > v.maxFeatures {
		terms = terms[:v.maxFeatures]
	}
	// Stable column order within the selected set.
	sort.Strings(terms)

	v.terms = terms
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float32, len(terms))
	n := float64(len(docs))
	for col, t := range terms {
		v.vocab[t] = col
		// Smoothed IDF: ln((1+n)/(1+df)) + 1, so terms present in every
		// document still carry weight instead of vanishing.
		v.idf[col] = float32(math.Log((1+n)/(1+float64(df[t]))) + 1)
	}

	vectors := make([][]float32, len(docs))
	for i, grams := range tokenized {
		vectors[i] = v.vectorize(grams)
	}
	return vectors
}

// transform projects texts into the frozen feature space.
func (v *Vectorizer) transform(texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = v.vectorize(ngrams(tokenize(t)))
	}
	return vectors
}

// vectorize computes a single L2-normalized TF-IDF vector.
func (v *Vectorizer) vectorize(grams []string) []float32 {
	vec := make([]float32, len(v.terms))
	for _, g := range grams {
		if col, ok := v.vocab[g]; ok {
			vec[col] += v.idf[col]
		}
	}

	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// tokenize lowercases the text and splits it into alphanumeric tokens,
// dropping English stop words and single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// ngrams returns the unigrams plus adjacent bigrams of the token stream.
func ngrams(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	grams := make([]string, 0, 2*len(tokens)-1)
	grams = append(grams, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		grams = append(grams, tokens[i]+" "+tokens[i+1])
	}
	return grams
}

// stopWords is a compact English stop word list. Filtering these keeps the
// bigram space from filling up with function-word pairs.
var stopWords = func() map[string]bool {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "am", "an",
		"and", "any", "are", "as", "at", "be", "because", "been", "before",
		"being", "below", "between", "both", "but", "by", "can", "could",
		"did", "do", "does", "doing", "down", "during", "each", "few", "for",
		"from", "further", "had", "has", "have", "having", "he", "her",
		"here", "hers", "him", "his", "how", "i", "if", "in", "into", "is",
		"it", "its", "itself", "just", "me", "more", "most", "my", "no",
		"nor", "not", "now", "of", "off", "on", "once", "only", "or",
		"other", "our", "ours", "out", "over", "own", "same", "she",
		"should", "so", "some", "such", "than", "that", "the", "their",
		"theirs", "them", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "very", "was", "we",
		"were", "what", "when", "where", "which", "while", "who", "whom",
		"why", "will", "with", "would", "you", "your", "yours",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
