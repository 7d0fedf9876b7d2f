// Package monitor aggregates metrics across generation runs. A single
// Monitor instance is shared by all requests in the process; every update
// happens under its mutex so concurrent Record calls never interleave
// partial counter updates.
package monitor

import (
	"sync"

	"github.com/quizforge/quizforge/internal/quiz"
)

// DefaultRetention is how many completed runs Recent keeps when no explicit
// retention is configured.
const DefaultRetention = 50

// Metrics is an aggregate snapshot across all recorded runs. Counters are
// monotonic; rates are recomputed from the counters at snapshot time.
type Metrics struct {
	TotalQuestionsGenerated int     `json:"total_questions_generated"`
	GenerationSuccessRate   float64 `json:"generation_success_rate"`
	FilterPassRate          float64 `json:"filter_pass_rate"`
	AverageQuestionLength   float64 `json:"average_question_length"`

	QuestionsByType       map[quiz.QuestionType]int `json:"questions_by_type"`
	QuestionsByDifficulty map[quiz.Difficulty]int   `json:"questions_by_difficulty"`
	QuestionsByLanguage   map[string]int            `json:"questions_by_language"`
}

// Monitor accumulates run outcomes and retains the most recent runs for the
// monitoring view. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	retention int
	runs      []*quiz.GenerationRun // oldest first

	totalRequested int
	totalParsed    int
	totalFiltered  int
	totalTextLen   int

	byType       map[quiz.QuestionType]int
	byDifficulty map[quiz.Difficulty]int
	byLanguage   map[string]int
}

// New creates a Monitor retaining the given number of recent runs; values
// <= 0 select DefaultRetention.
func New(retention int) *Monitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Monitor{
		retention:    retention,
		byType:       make(map[quiz.QuestionType]int),
		byDifficulty: make(map[quiz.Difficulty]int),
		byLanguage:   make(map[string]int),
	}
}

// Record folds a completed run into the aggregate and retains it for Recent.
// The oldest retained run is evicted on overflow.
func (m *Monitor) Record(run *quiz.GenerationRun) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequested += run.Metadata.RequestedCount
	m.totalParsed += run.Metadata.GeneratedCount
	m.totalFiltered += run.Metadata.FilteredCount
	for _, q := range run.Questions {
		m.totalTextLen += len(q.Text)
	}

	delivered := len(run.Questions)
	m.byType[run.Config.QuestionType] += delivered
	m.byDifficulty[run.Config.Difficulty] += delivered
	m.byLanguage[run.Config.Language] += delivered

	m.runs = append(m.runs, run)
	if len(m.runs) > m.retention {
		m.runs = m.runs[len(m.runs)-m.retention:]
	}
}

// Metrics returns the current aggregate snapshot. The returned maps are
// copies; callers may keep them without holding any lock.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Metrics{
		TotalQuestionsGenerated: m.totalFiltered,
		QuestionsByType:         copyMap(m.byType),
		QuestionsByDifficulty:   copyMap(m.byDifficulty),
		QuestionsByLanguage:     copyMap(m.byLanguage),
	}
	if m.totalRequested > 0 {
		snap.GenerationSuccessRate = float64(m.totalFiltered) / float64(m.totalRequested)
	}
	if m.totalParsed > 0 {
		snap.FilterPassRate = float64(m.totalFiltered) / float64(m.totalParsed)
	}
	if m.totalFiltered > 0 {
		snap.AverageQuestionLength = float64(m.totalTextLen) / float64(m.totalFiltered)
	}
	return snap
}

// Recent returns up to limit retained runs, most recent first. limit <= 0
// returns everything retained.
func (m *Monitor) Recent(limit int) []*quiz.GenerationRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*quiz.GenerationRun, n)
	for i := 0; i < n; i++ {
		out[i] = m.runs[len(m.runs)-1-i]
	}
	return out
}

func copyMap[K comparable](src map[K]int) map[K]int {
	dst := make(map[K]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
