package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Artifact filenames inside a persisted index directory. The three files are
// written and read as a unit; a directory missing any of them is corrupt.
const (
	vocabularyFile = "vocabulary.json"
	chunksFile     = "chunks.json"
	vectorsFile    = "vectors.bin"
)

// vocabularyDoc is the JSON layout of the persisted vocabulary.
type vocabularyDoc struct {
	MaxFeatures int       `json:"max_features"`
	Terms       []string  `json:"terms"`
	IDF         []float32 `json:"idf"`
}

// Save writes the fitted index to dir as a directory-scoped bundle:
// vocabulary.json, chunks.json, and vectors.bin. Saving an unfit index
// returns ErrNotFitted.
func (ix *Index) Save(dir string) error {
	if !ix.fitted {
		return ErrNotFitted
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	vocab := vocabularyDoc{
		MaxFeatures: ix.vectorizer.maxFeatures,
		Terms:       ix.vectorizer.terms,
		IDF:         ix.vectorizer.idf,
	}
	if err := writeJSON(filepath.Join(dir, vocabularyFile), vocab); err != nil {
		return fmt.Errorf("writing vocabulary: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, chunksFile), ix.chunks); err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), encodeMatrix(ix.vectors), 0o644); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}
	return nil
}

// Load restores an index previously written by Save. A directory missing any
// artifact, or containing artifacts that do not agree with each other, fails
// with an error wrapping ErrCorruptState.
func Load(dir string) (*Index, error) {
	var vocab vocabularyDoc
	if err := readJSON(filepath.Join(dir, vocabularyFile), &vocab); err != nil {
		return nil, fmt.Errorf("%w: vocabulary: %v", ErrCorruptState, err)
	}
	if len(vocab.Terms) != len(vocab.IDF) {
		return nil, fmt.Errorf("%w: %d terms but %d idf weights", ErrCorruptState, len(vocab.Terms), len(vocab.IDF))
	}

	var chunks []string
	if err := readJSON(filepath.Join(dir, chunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("%w: chunks: %v", ErrCorruptState, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrCorruptState)
	}

	raw, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: vectors: %v", ErrCorruptState, err)
	}
	vectors, err := decodeMatrix(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: vectors: %v", ErrCorruptState, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrCorruptState, len(vectors), len(chunks))
	}
	for i, vec := range vectors {
		if len(vec) != len(vocab.Terms) {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, vocabulary has %d", ErrCorruptState, i, len(vec), len(vocab.Terms))
		}
	}

	v := NewVectorizer(vocab.MaxFeatures)
	v.terms = vocab.Terms
	v.idf = vocab.IDF
	v.vocab = make(map[string]int, len(vocab.Terms))
	for col, t := range vocab.Terms {
		v.vocab[t] = col
	}

	return &Index{
		vectorizer: v,
		chunks:     chunks,
		vectors:    vectors,
		fitted:     true,
	}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// encodeMatrix serializes vectors as little-endian float32 rows preceded by
// a (rows, cols) header.
func encodeMatrix(m [][]float32) []byte {
	cols := 0
	if len(m) > 0 {
		cols = len(m[0])
	}
	buf := make([]byte, 8+len(m)*cols*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(m)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(cols))
	off := 8
	for _, row := range m {
		for _, f := range row {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

// decodeMatrix reverses encodeMatrix, validating the byte length against the
// header before decoding.
func decodeMatrix(b []byte) ([][]float32, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("truncated header (%d bytes)", len(b))
	}
	rows := int(binary.LittleEndian.Uint32(b[0:]))
	cols := int(binary.LittleEndian.Uint32(b[4:]))
	want := 8 + rows*cols*4
	if len(b) != want {
		return nil, fmt.Errorf("expected %d bytes for %dx%d matrix, got %d", want, rows, cols, len(b))
	}

	m := make([][]float32, rows)
	off := 8
	for i := range m {
		row := make([]float32, cols)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
		m[i] = row
	}
	return m, nil
}
