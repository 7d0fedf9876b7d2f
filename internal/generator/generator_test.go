package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/index"
	"github.com/quizforge/quizforge/internal/quiz"
)

// fakeEngine replays canned responses and records every Chat call.
type fakeEngine struct {
	responses []string
	err       error
	calls     []string // user prompt of each call
}

func (f *fakeEngine) Chat(_ context.Context, _ string, messages []engine.Message) (string, error) {
	f.calls = append(f.calls, messages[len(messages)-1].Content)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeEngine) IsRunning(context.Context) bool              { return true }
func (f *fakeEngine) ListModels(context.Context) ([]string, error) { return nil, nil }
func (f *fakeEngine) HasModel(context.Context, string) bool       { return true }

var _ engine.Engine = (*fakeEngine)(nil)

// mcBlocks renders n well-formed multiple-choice blocks with distinct texts.
func mcBlocks(prefix string, n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "Q%d. %s question %d?\n", i, prefix, i)
		sb.WriteString("A. first\nB. second\nC. third\nD. fourth\n")
		sb.WriteString("Correct Answer: B\n\n")
	}
	return sb.String()
}

func testCorpus(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New(0)
	err := ix.Fit([]string{
		"Gravity is the force that attracts objects toward one another.",
		"The gravitational constant appears in Newton's law of gravitation.",
		"Cells are the basic structural unit of living organisms.",
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return ix
}

func mcConfig(count int) quiz.Config {
	return quiz.Config{QuestionType: quiz.MultipleChoice, Count: count, Model: "llama3"}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	eng := &fakeEngine{}
	g := New(eng, testCorpus(t), nil)

	for _, count := range []int{0, 101} {
		cfg := mcConfig(count)
		_, err := g.Generate(context.Background(), cfg)
		var invalid *quiz.InvalidConfigError
		if !errors.As(err, &invalid) {
			t.Errorf("count %d: err = %v, want *InvalidConfigError", count, err)
		}
	}
	if len(eng.calls) != 0 {
		t.Errorf("model was called %d times before validation", len(eng.calls))
	}
}

func TestGenerate_FullDelivery(t *testing.T) {
	eng := &fakeEngine{responses: []string{mcBlocks("physics", 3)}}
	g := New(eng, testCorpus(t), nil)
	g.Source = "physics.pdf"

	run, err := g.Generate(context.Background(), mcConfig(3))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(run.Questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(run.Questions))
	}
	if len(eng.calls) != 1 {
		t.Errorf("model called %d times, want 1", len(eng.calls))
	}
	if run.ID == "" {
		t.Error("run has no ID")
	}
	m := run.Metadata
	if m.PDFFilename != "physics.pdf" || m.RequestedCount != 3 || m.GeneratedCount != 3 || m.FilteredCount != 3 {
		t.Errorf("metadata = %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Error("metadata timestamp not set")
	}
}

func TestGenerate_ShortfallRetry(t *testing.T) {
	// First round delivers 2 of 3; the retry supplies the deficit.
	eng := &fakeEngine{responses: []string{
		mcBlocks("first", 2),
		mcBlocks("second", 1),
	}}
	g := New(eng, testCorpus(t), nil)

	run, err := g.Generate(context.Background(), mcConfig(3))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(run.Questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(run.Questions))
	}
	if len(eng.calls) != 2 {
		t.Fatalf("model called %d times, want 2", len(eng.calls))
	}
	if !strings.HasPrefix(eng.calls[1], "Generate 1 ") {
		t.Errorf("retry prompt should request the deficit, got %q", eng.calls[1][:40])
	}
	if run.Metadata.GeneratedCount != 3 || run.Metadata.FilteredCount != 3 {
		t.Errorf("metadata counts = %+v", run.Metadata)
	}
}

func TestGenerate_PersistentShortfall(t *testing.T) {
	eng := &fakeEngine{responses: []string{
		mcBlocks("first", 1),
		mcBlocks("second", 1),
	}}
	g := New(eng, testCorpus(t), nil)

	run, err := g.Generate(context.Background(), mcConfig(5))
	if err != nil {
		t.Fatalf("under-delivery must not error, got %v", err)
	}
	if len(run.Questions) != 2 || run.Metadata.FilteredCount != 2 {
		t.Errorf("got %d questions, want the 2 actually produced", len(run.Questions))
	}
	if run.Metadata.RequestedCount != 5 {
		t.Errorf("requested_count = %d, want 5", run.Metadata.RequestedCount)
	}
}

func TestGenerate_RetryDeduplicates(t *testing.T) {
	// The retry round repeats an already-accepted question.
	eng := &fakeEngine{responses: []string{
		mcBlocks("same", 2),
		mcBlocks("same", 2),
	}}
	g := New(eng, testCorpus(t), nil)

	run, err := g.Generate(context.Background(), mcConfig(4))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(run.Questions) != 2 {
		t.Errorf("got %d questions, duplicates from the retry were not suppressed", len(run.Questions))
	}
}

func TestGenerate_NoRetryWhenDisabled(t *testing.T) {
	eng := &fakeEngine{responses: []string{mcBlocks("only", 1), mcBlocks("extra", 1)}}
	g := New(eng, testCorpus(t), nil)
	g.MaxRetries = 0

	run, err := g.Generate(context.Background(), mcConfig(3))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(eng.calls) != 1 {
		t.Errorf("model called %d times with retries disabled, want 1", len(eng.calls))
	}
	if len(run.Questions) != 1 {
		t.Errorf("got %d questions, want 1", len(run.Questions))
	}
}

func TestGenerate_ModelDown(t *testing.T) {
	eng := &fakeEngine{err: &engine.ModelUnavailableError{Model: "llama3", Err: errors.New("connection refused")}}
	g := New(eng, testCorpus(t), nil)

	_, err := g.Generate(context.Background(), mcConfig(3))
	var unavailable *engine.ModelUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want *ModelUnavailableError", err)
	}
}

func TestGenerate_ModelDownAfterPartial(t *testing.T) {
	// First round succeeds, the shortfall round hits a dead backend. The
	// partial result is returned rather than the error.
	eng := &fakeEngine{responses: []string{mcBlocks("partial", 2)}}
	failing := &failAfterFirst{inner: eng}
	g := New(failing, testCorpus(t), nil)

	run, err := g.Generate(context.Background(), mcConfig(5))
	if err != nil {
		t.Fatalf("partial result should win over retry failure, got %v", err)
	}
	if len(run.Questions) != 2 {
		t.Errorf("got %d questions, want the 2 from the first round", len(run.Questions))
	}
}

type failAfterFirst struct {
	inner *fakeEngine
	n     int
}

func (f *failAfterFirst) Chat(ctx context.Context, model string, messages []engine.Message) (string, error) {
	f.n++
	if f.n > 1 {
		return "", &engine.ModelUnavailableError{Model: model, Err: errors.New("connection refused")}
	}
	return f.inner.Chat(ctx, model, messages)
}

func (f *failAfterFirst) IsRunning(ctx context.Context) bool               { return f.inner.IsRunning(ctx) }
func (f *failAfterFirst) ListModels(ctx context.Context) ([]string, error) { return f.inner.ListModels(ctx) }
func (f *failAfterFirst) HasModel(ctx context.Context, name string) bool   { return f.inner.HasModel(ctx, name) }

func TestGenerate_TopicContext(t *testing.T) {
	eng := &fakeEngine{responses: []string{mcBlocks("gravity", 1)}}
	g := New(eng, testCorpus(t), nil)

	cfg := mcConfig(1)
	cfg.Topic = "gravity"
	if _, err := g.Generate(context.Background(), cfg); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	relevant := strings.Index(eng.calls[0], "Gravity is the force")
	if relevant < 0 {
		t.Fatal("user prompt does not carry the topic-relevant chunk")
	}
	if offTopic := strings.Index(eng.calls[0], "basic structural unit"); offTopic >= 0 && offTopic < relevant {
		t.Error("off-topic chunk ordered ahead of the relevant one")
	}
}

func TestGenerate_TopicFallback(t *testing.T) {
	// A topic with no vocabulary overlap falls back to leading chunks.
	eng := &fakeEngine{responses: []string{mcBlocks("fallback", 1)}}
	g := New(eng, testCorpus(t), nil)

	cfg := mcConfig(1)
	cfg.Topic = "zzzzqqqq"
	if _, err := g.Generate(context.Background(), cfg); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(eng.calls[0], "Gravity is the force") {
		t.Error("fallback context does not start with the leading chunk")
	}
}

func TestGenerate_NotFitted(t *testing.T) {
	eng := &fakeEngine{}
	g := New(eng, index.New(0), nil)

	cfg := mcConfig(1)
	cfg.Topic = "gravity"
	_, err := g.Generate(context.Background(), cfg)
	if !errors.Is(err, index.ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
	if len(eng.calls) != 0 {
		t.Error("model called despite unusable corpus")
	}
}
