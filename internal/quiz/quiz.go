package quiz

import (
	"fmt"
	"time"
)

// QuestionType identifies the structural variant of a question.
type QuestionType string

const (
	MultipleChoice    QuestionType = "multiple_choice"
	MultipleSelection QuestionType = "multiple_selection"
	TrueFalse         QuestionType = "true_false"
	ShortAnswer       QuestionType = "short_answer"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, MultipleSelection, TrueFalse, ShortAnswer:
		return true
	}
	return false
}

// Difficulty is the requested difficulty level for generated questions.
type Difficulty string

const (
	Low    Difficulty = "low"
	Medium Difficulty = "medium"
	High   Difficulty = "high"
)

// Valid reports whether d is a supported difficulty level.
func (d Difficulty) Valid() bool {
	switch d {
	case Low, Medium, High:
		return true
	}
	return false
}

const (
	// MinCount and MaxCount bound the number of questions per request.
	MinCount = 1
	MaxCount = 100
)

// Config describes a single generation request. It is created once per
// request and never mutated afterwards.
type Config struct {
	QuestionType QuestionType `json:"question_type"`
	Count        int          `json:"requested_count"`
	Topic        string       `json:"topic,omitempty"`
	Difficulty   Difficulty   `json:"difficulty"`
	Language     string       `json:"language"`
	Model        string       `json:"model"`
}

// InvalidConfigError reports a Config that fails validation. It is returned
// before any retrieval or model call happens.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Validate checks the config against the supported types, difficulty levels,
// and count range. Zero-value Difficulty and Language get defaults instead of
// errors so callers only need to fill in what they care about.
func (c *Config) Validate() error {
	if !c.QuestionType.Valid() {
		return &InvalidConfigError{Field: "question_type", Reason: fmt.Sprintf("unknown type %q", c.QuestionType)}
	}
	if c.Count < MinCount || c.Count > MaxCount {
		return &InvalidConfigError{Field: "requested_count", Reason: fmt.Sprintf("%d out of range [%d, %d]", c.Count, MinCount, MaxCount)}
	}
	if c.Difficulty == "" {
		c.Difficulty = Medium
	}
	if !c.Difficulty.Valid() {
		return &InvalidConfigError{Field: "difficulty", Reason: fmt.Sprintf("unknown level %q", c.Difficulty)}
	}
	if c.Language == "" {
		c.Language = "English"
	}
	return nil
}

// Option is a lettered answer choice for choice-style questions.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Question is a single parsed question record. Fields beyond Text and Type
// are populated per variant: Options and CorrectAnswer for multiple_choice,
// Options and CorrectAnswers for multiple_selection, CorrectAnswer
// ("True"/"False") for true_false, ModelAnswer for short_answer.
//
// Records are created by the parser and either accepted or discarded by the
// corrector; they are never mutated into an invalid state.
type Question struct {
	Text           string       `json:"question_text"`
	Type           QuestionType `json:"question_type"`
	Options        []Option     `json:"options,omitempty"`
	CorrectAnswer  string       `json:"correct_answer,omitempty"`
	CorrectAnswers []string     `json:"correct_answers,omitempty"`
	ModelAnswer    string       `json:"model_answer,omitempty"`
}

// HasOption reports whether the question carries an option with the given letter.
func (q *Question) HasOption(letter string) bool {
	for _, o := range q.Options {
		if o.Letter == letter {
			return true
		}
	}
	return false
}

// RunMetadata is the request/outcome summary attached to a completed run.
type RunMetadata struct {
	PDFFilename    string       `json:"pdf_filename,omitempty"`
	QuestionType   QuestionType `json:"question_type"`
	Topic          string       `json:"topic,omitempty"`
	Difficulty     Difficulty   `json:"difficulty"`
	Language       string       `json:"language"`
	RequestedCount int          `json:"requested_count"`
	GeneratedCount int          `json:"generated_count"`
	FilteredCount  int          `json:"filtered_count"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GenerationRun is one complete request-to-questions transaction. It is
// immutable once the orchestrator returns it; the monitor and storage layers
// only ever read it.
type GenerationRun struct {
	ID        string        `json:"id"`
	Config    Config        `json:"config"`
	Questions []Question    `json:"questions"`
	Metadata  RunMetadata   `json:"metadata"`
	Duration  time.Duration `json:"-"`
}

// Export is the stable JSON shape handed to callers for rendering and download.
type Export struct {
	Metadata  RunMetadata `json:"metadata"`
	Questions []Question  `json:"questions"`
}

// Export returns the run in its external JSON form.
func (r *GenerationRun) Export() Export {
	return Export{Metadata: r.Metadata, Questions: r.Questions}
}
