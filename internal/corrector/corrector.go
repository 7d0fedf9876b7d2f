// Package corrector is the structural validation step between the parser and
// the caller. It guarantees every record surfaced downstream is well-formed
// for its question type; it cannot and does not verify factual correctness.
package corrector

import "github.com/quizforge/quizforge/internal/quiz"

// minModelAnswerLen is the informativeness floor for short answers. Anything
// shorter is a placeholder, not an answer.
const minModelAnswerLen = 10

// Filter returns the records that pass the per-variant structural rules, in
// their original order. It is a total function (never fails) and idempotent:
// filtering an already-filtered sequence changes nothing.
//
// Duplicate suppression is per call: a record whose question text exactly
// matches an earlier accepted record is rejected.
func Filter(records []quiz.Question) []quiz.Question {
	accepted := make([]quiz.Question, 0, len(records))
	seen := make(map[string]bool, len(records))

	for _, q := range records {
		if q.Text == "" || seen[q.Text] {
			continue
		}
		if !valid(&q) {
			continue
		}
		seen[q.Text] = true
		accepted = append(accepted, q)
	}
	return accepted
}

// valid applies the variant-specific rejection rules.
func valid(q *quiz.Question) bool {
	switch q.Type {
	case quiz.MultipleChoice:
		return validChoice(q)
	case quiz.MultipleSelection:
		return validSelection(q)
	case quiz.TrueFalse:
		return q.CorrectAnswer == "True" || q.CorrectAnswer == "False"
	case quiz.ShortAnswer:
		return len(q.ModelAnswer) >= minModelAnswerLen
	}
	return false
}

func validChoice(q *quiz.Question) bool {
	if len(q.Options) < 2 || hasDuplicateLetters(q.Options) {
		return false
	}
	return q.CorrectAnswer != "" && q.HasOption(q.CorrectAnswer)
}

func validSelection(q *quiz.Question) bool {
	if len(q.Options) < 2 || hasDuplicateLetters(q.Options) {
		return false
	}
	if len(q.CorrectAnswers) == 0 {
		return false
	}
	for _, a := range q.CorrectAnswers {
		if !q.HasOption(a) {
			return false
		}
	}
	return true
}

func hasDuplicateLetters(options []quiz.Option) bool {
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if seen[o.Letter] {
			return true
		}
		seen[o.Letter] = true
	}
	return false
}
