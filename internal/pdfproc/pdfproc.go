// Package pdfproc extracts text from PDF documents and splits it into
// overlapping chunks sized for indexing. Chunk boundaries prefer paragraph,
// line, and sentence breaks over mid-word cuts.
package pdfproc

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 2000
	// DefaultChunkOverlap is carried between consecutive chunks so a fact
	// split across a boundary stays retrievable.
	DefaultChunkOverlap = 50
)

// Processor extracts and chunks PDF text. The zero-ish constructor values
// select the defaults above.
type Processor struct {
	chunkSize int
	overlap   int
}

// New creates a Processor. chunkSize and overlap <= 0 select defaults; an
// overlap that is not smaller than the chunk size is clamped.
func New(chunkSize, overlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Processor{chunkSize: chunkSize, overlap: overlap}
}

// ExtractText reads the PDF at path and returns its cleaned plain text.
// Pages whose text cannot be decoded are skipped rather than failing the
// whole document.
func (p *Processor) ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()
	return p.extract(r)
}

// ExtractFromReader extracts text from in-memory PDF content, as received
// from an upload.
func (p *Processor) ExtractFromReader(r io.ReaderAt, size int64) (string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	return p.extract(doc)
}

func (p *Processor) extract(r *pdf.Reader) (string, error) {
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	text := CleanText(sb.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}

// Process extracts, cleans, and chunks the PDF at path in one call.
func (p *Processor) Process(path string) ([]string, error) {
	text, err := p.ExtractText(path)
	if err != nil {
		return nil, err
	}
	return p.Chunk(text), nil
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
	controlRun = regexp.MustCompile("[\x00-\x08\x0b-\x1f\x7f]")
)

// CleanText normalizes extracted text: horizontal whitespace runs collapse
// to one space, three or more newlines collapse to a paragraph break, and
// control characters are removed.
func CleanText(text string) string {
	text = controlRun.ReplaceAllString(text, "")
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// chunk boundary preference, strongest first.
var boundaries = []string{"\n\n", "\n", ". ", " "}

// Chunk splits text into pieces of at most the configured chunk size. Each
// cut lands on the strongest boundary available inside the window, and the
// configured overlap from the end of one chunk starts the next.
func (p *Processor) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= p.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + p.chunkSize
		if end >= len(text) {
			if tail := strings.TrimSpace(text[start:]); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}
		cut := breakPoint(text, start, end)
		if piece := strings.TrimSpace(text[start:cut]); piece != "" {
			chunks = append(chunks, piece)
		}
		next := cut - p.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// breakPoint returns the cut position for the window [start, end): the end
// of the last occurrence of the strongest boundary present, or end when the
// window has no boundary at all.
func breakPoint(text string, start, end int) int {
	window := text[start:end]
	for _, sep := range boundaries {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	return end
}
