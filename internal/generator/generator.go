// Package generator sequences one generation request end to end: retrieve
// context, build prompts, call the model, parse and filter the response, and
// assemble the resulting run. Under-delivery is a degraded success; only
// config validation and model connectivity fail the request outright.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/quizforge/internal/corrector"
	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/index"
	"github.com/quizforge/quizforge/internal/parser"
	"github.com/quizforge/quizforge/internal/prompt"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/retrieval"
)

const (
	// topK chunks retrieved per topic query.
	topK = 5
	// contextBudget caps the assembled context string in characters.
	contextBudget = 4000
)

// Corpus is the view of a fitted document index the generator needs: topic
// search plus the raw chunk sequence for the no-topic fallback.
type Corpus interface {
	Search(query string, k int) ([]index.ScoredChunk, error)
	Chunks() []string
}

// Generator runs the retrieval-and-correction pipeline for one document.
// A Generator is safe for concurrent Generate calls; each run owns its own
// accumulator and the corpus is only read.
type Generator struct {
	engine    engine.Engine
	corpus    Corpus
	retriever *retrieval.Retriever
	logger    *slog.Logger

	// Source names the document the corpus was built from; it is copied
	// into run metadata.
	Source string

	// MaxRetries is the number of additional generation rounds issued when
	// filtering leaves fewer questions than requested. Default 1.
	MaxRetries int
}

// New creates a Generator over the given engine and document corpus.
func New(eng engine.Engine, corpus Corpus, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		engine:     eng,
		corpus:     corpus,
		retriever:  retrieval.New(corpus),
		logger:     logger,
		MaxRetries: 1,
	}
}

// Generate runs one request through the pipeline and returns the completed
// run. The config is validated before any retrieval or model call. If a
// shortfall round's model call fails after earlier rounds produced questions,
// the partial run is returned instead of the error.
func (g *Generator) Generate(ctx context.Context, cfg quiz.Config) (*quiz.GenerationRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	g.logger.Info("retrieving context", "topic", cfg.Topic, "type", cfg.QuestionType)
	contextText, err := g.retrieveContext(cfg.Topic)
	if err != nil {
		return nil, err
	}

	var accepted []quiz.Question
	generated := 0
	for round := 0; round <= g.MaxRetries; round++ {
		need := cfg.Count - len(accepted)
		if need <= 0 {
			break
		}
		system, user := prompt.Build(cfg, contextText, need)

		g.logger.Info("calling model", "model", cfg.Model, "round", round, "requesting", need)
		raw, err := g.engine.Chat(ctx, cfg.Model, []engine.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		})
		if err != nil {
			if len(accepted) > 0 {
				g.logger.Warn("model call failed on shortfall round, returning partial result",
					"round", round, "accepted", len(accepted), "error", err)
				break
			}
			return nil, err
		}

		parsed := parser.Parse(raw, cfg.QuestionType)
		generated += len(parsed)
		accepted = corrector.Filter(append(accepted, parsed...))
		g.logger.Info("round complete", "round", round, "parsed", len(parsed), "accepted", len(accepted))
	}
	if len(accepted) > cfg.Count {
		accepted = accepted[:cfg.Count]
	}
	if len(accepted) < cfg.Count {
		g.logger.Warn("under-delivered", "requested", cfg.Count, "delivered", len(accepted))
	}

	run := &quiz.GenerationRun{
		ID:        uuid.NewString(),
		Config:    cfg,
		Questions: accepted,
		Metadata: quiz.RunMetadata{
			PDFFilename:    g.Source,
			QuestionType:   cfg.QuestionType,
			Topic:          cfg.Topic,
			Difficulty:     cfg.Difficulty,
			Language:       cfg.Language,
			RequestedCount: cfg.Count,
			GeneratedCount: generated,
			FilteredCount:  len(accepted),
			Timestamp:      time.Now().UTC(),
		},
		Duration: time.Since(start),
	}
	return run, nil
}

// retrieveContext assembles the content the prompt is grounded in. A topic
// query that matches nothing falls back to the document's leading chunks, so
// a misspelled topic degrades to general questions instead of failing.
func (g *Generator) retrieveContext(topic string) (string, error) {
	if topic != "" {
		text, err := g.retriever.ForTopic(topic, topK, contextBudget)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
		g.logger.Warn("topic matched no chunks, using leading content", "topic", topic)
	}

	chunks := g.corpus.Chunks()
	if len(chunks) == 0 {
		return "", fmt.Errorf("generator: corpus has no chunks")
	}
	var sb strings.Builder
	for _, chunk := range chunks {
		need := len(chunk)
		if sb.Len() > 0 {
			need += 2
		}
		if sb.Len()+need > contextBudget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk)
	}
	if sb.Len() == 0 {
		// A single oversized leading chunk still has to yield something.
		chunk := chunks[0]
		if len(chunk) > contextBudget {
			chunk = chunk[:contextBudget]
		}
		return chunk, nil
	}
	return sb.String(), nil
}
