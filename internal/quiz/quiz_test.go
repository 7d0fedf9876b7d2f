package quiz

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string // "" means valid
	}{
		{"valid", Config{QuestionType: MultipleChoice, Count: 5}, ""},
		{"count at minimum", Config{QuestionType: TrueFalse, Count: 1}, ""},
		{"count at maximum", Config{QuestionType: ShortAnswer, Count: 100}, ""},
		{"count zero", Config{QuestionType: MultipleChoice, Count: 0}, "requested_count"},
		{"count above maximum", Config{QuestionType: MultipleChoice, Count: 101}, "requested_count"},
		{"unknown type", Config{QuestionType: "essay", Count: 5}, "question_type"},
		{"missing type", Config{Count: 5}, "question_type"},
		{"unknown difficulty", Config{QuestionType: MultipleChoice, Count: 5, Difficulty: "extreme"}, "difficulty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var invalid *InvalidConfigError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want *InvalidConfigError", err)
			}
			if invalid.Field != tt.wantField {
				t.Errorf("field = %q, want %q", invalid.Field, tt.wantField)
			}
		})
	}
}

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{QuestionType: MultipleChoice, Count: 5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Difficulty != Medium {
		t.Errorf("difficulty = %q, want default %q", cfg.Difficulty, Medium)
	}
	if cfg.Language != "English" {
		t.Errorf("language = %q, want default English", cfg.Language)
	}
}

func TestHasOption(t *testing.T) {
	q := Question{Options: []Option{{Letter: "A", Text: "one"}, {Letter: "B", Text: "two"}}}
	if !q.HasOption("A") || !q.HasOption("B") {
		t.Error("existing options not found")
	}
	if q.HasOption("C") {
		t.Error("missing option reported present")
	}
}

func TestExportShape(t *testing.T) {
	run := GenerationRun{
		ID: "test",
		Metadata: RunMetadata{
			PDFFilename:    "physics.pdf",
			QuestionType:   MultipleChoice,
			Topic:          "gravity",
			Difficulty:     Medium,
			Language:       "English",
			RequestedCount: 2,
			GeneratedCount: 2,
			FilteredCount:  1,
			Timestamp:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		Questions: []Question{{
			Text:          "What pulls objects together?",
			Type:          MultipleChoice,
			Options:       []Option{{Letter: "A", Text: "gravity"}, {Letter: "B", Text: "light"}},
			CorrectAnswer: "A",
		}},
	}

	raw, err := json.Marshal(run.Export())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc) != 2 {
		t.Errorf("export has %d top-level keys, want metadata and questions", len(doc))
	}

	var meta map[string]any
	if err := json.Unmarshal(doc["metadata"], &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	for _, key := range []string{
		"pdf_filename", "question_type", "topic", "difficulty", "language",
		"requested_count", "generated_count", "filtered_count", "timestamp",
	} {
		if _, ok := meta[key]; !ok {
			t.Errorf("metadata missing %q", key)
		}
	}

	var questions []map[string]any
	if err := json.Unmarshal(doc["questions"], &questions); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("got %d questions", len(questions))
	}
	q := questions[0]
	if q["question_text"] != "What pulls objects together?" || q["correct_answer"] != "A" {
		t.Errorf("question record = %v", q)
	}
	if _, ok := q["model_answer"]; ok {
		t.Error("empty model_answer serialized for a choice question")
	}
}
