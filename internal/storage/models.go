package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quizforge/quizforge/internal/quiz"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is an uploaded and indexed PDF.
type Document struct {
	ID         string
	Filename   string
	ChunkCount int
	IndexDir   string // directory holding the persisted index bundle
	CreatedAt  time.Time
}

// RunRecord is a completed generation run as persisted. Questions are stored
// as their JSON array; the config fields are denormalized into columns so
// runs can be listed without unmarshaling.
type RunRecord struct {
	ID             string
	DocumentID     string
	QuestionType   string
	Topic          string
	Difficulty     string
	Language       string
	Model          string
	RequestedCount int
	GeneratedCount int
	FilteredCount  int
	QuestionsJSON  string
	DurationMS     int64
	CreatedAt      time.Time
}

// NewRunRecord converts a completed run into its persisted form.
func NewRunRecord(documentID string, run *quiz.GenerationRun) (RunRecord, error) {
	questions, err := json.Marshal(run.Questions)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshaling questions: %w", err)
	}
	return RunRecord{
		ID:             run.ID,
		DocumentID:     documentID,
		QuestionType:   string(run.Config.QuestionType),
		Topic:          run.Config.Topic,
		Difficulty:     string(run.Config.Difficulty),
		Language:       run.Config.Language,
		Model:          run.Config.Model,
		RequestedCount: run.Metadata.RequestedCount,
		GeneratedCount: run.Metadata.GeneratedCount,
		FilteredCount:  run.Metadata.FilteredCount,
		QuestionsJSON:  string(questions),
		DurationMS:     run.Duration.Milliseconds(),
		CreatedAt:      run.Metadata.Timestamp,
	}, nil
}

// Questions unmarshals the stored question array.
func (r *RunRecord) Questions() ([]quiz.Question, error) {
	var questions []quiz.Question
	if err := json.Unmarshal([]byte(r.QuestionsJSON), &questions); err != nil {
		return nil, fmt.Errorf("unmarshaling questions for run %s: %w", r.ID, err)
	}
	return questions, nil
}
