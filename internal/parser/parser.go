// Package parser converts raw model completions into structured question
// records. Malformed model output is the expected common case here, not an
// anomaly: segments that cannot be parsed are skipped, never surfaced as
// errors, and the corrector downstream rejects anything structurally
// incomplete that still slips through.
package parser

import (
	"regexp"
	"strings"

	"github.com/quizforge/quizforge/internal/quiz"
)

var (
	// questionRe matches a question header line: "Q1. text", "Q2) text",
	// "**Q3.** text". The second capture group is the question text.
	questionRe = regexp.MustCompile(`(?i)^\s*\**q\d+\**\s*[.):\-]\s*\**\s*(.*)$`)

	// optionRe matches an option line: "A. text", "B) text", "**C.** text".
	optionRe = regexp.MustCompile(`^\s*\**([A-Z])\**\s*[.)]\s+(.*)$`)

	// answerRe and friends match the answer declaration lines the prompt
	// requests, tolerating bold markers and varied spacing.
	multiAnswerRe = regexp.MustCompile(`(?i)^\s*\**correct\s+answers\s*\**\s*:\s*\**\s*(.*)$`)
	answerRe      = regexp.MustCompile(`(?i)^\s*\**correct\s+answer\s*\**\s*:\s*\**\s*(.*)$`)
	modelAnswerRe = regexp.MustCompile(`(?i)^\s*\**model\s+answer\s*\**\s*:\s*\**\s*(.*)$`)

	letterRe = regexp.MustCompile(`\b([A-Z])\b`)
)

// Parse extracts question records of the given type from raw model output.
// It never fails: unparseable segments are dropped and the result may be
// empty. The input format is the one the prompt package requests, but the
// matching is deliberately loose because models vary whitespace, add bold
// markers, and interleave commentary.
func Parse(raw string, qt quiz.QuestionType) []quiz.Question {
	var questions []quiz.Question
	for _, segment := range split(raw) {
		if q, ok := parseSegment(segment, qt); ok {
			questions = append(questions, q)
		}
	}
	return questions
}

// split cuts the raw output into per-question line groups. A new segment
// starts at each question header; text before the first header (preamble
// commentary) is discarded.
func split(raw string) [][]string {
	var segments [][]string
	var current []string

	for _, line := range strings.Split(raw, "\n") {
		if questionRe.MatchString(line) {
			if current != nil {
				segments = append(segments, current)
			}
			current = []string{line}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	if current != nil {
		segments = append(segments, current)
	}
	return segments
}

// parseSegment builds one question record from a segment. Returns false if
// the segment yields no question text.
func parseSegment(lines []string, qt quiz.QuestionType) (quiz.Question, bool) {
	m := questionRe.FindStringSubmatch(lines[0])
	if m == nil {
		return quiz.Question{}, false
	}
	text := cleanText(m[1])

	q := quiz.Question{Type: qt}
	for _, line := range lines[1:] {
		switch {
		case qt == quiz.MultipleSelection && multiAnswerRe.MatchString(line):
			q.CorrectAnswers = letters(multiAnswerRe.FindStringSubmatch(line)[1])
		case qt == quiz.ShortAnswer && modelAnswerRe.MatchString(line):
			q.ModelAnswer = cleanText(modelAnswerRe.FindStringSubmatch(line)[1])
		case (qt == quiz.MultipleChoice || qt == quiz.TrueFalse) && answerRe.MatchString(line):
			q.CorrectAnswer = parseAnswer(answerRe.FindStringSubmatch(line)[1], qt)
		case (qt == quiz.MultipleChoice || qt == quiz.MultipleSelection) && optionRe.MatchString(line):
			om := optionRe.FindStringSubmatch(line)
			q.Options = append(q.Options, quiz.Option{Letter: om[1], Text: cleanText(om[2])})
		case len(q.Options) == 0 && noFields(q) && strings.TrimSpace(line) != "":
			// Continuation of a multi-line question before any field.
			text = strings.TrimSpace(text + " " + cleanText(line))
		}
	}

	q.Text = strings.TrimSpace(text)
	if q.Text == "" {
		return quiz.Question{}, false
	}
	return q, true
}

func noFields(q quiz.Question) bool {
	return q.CorrectAnswer == "" && len(q.CorrectAnswers) == 0 && q.ModelAnswer == ""
}

// parseAnswer normalizes a single-answer declaration. For multiple choice it
// extracts the option letter; for true/false it canonicalizes to "True" or
// "False". Unrecognized answers come back empty and fail filtering.
func parseAnswer(s string, qt quiz.QuestionType) string {
	s = cleanText(s)
	switch qt {
	case quiz.MultipleChoice:
		if ls := letters(s); len(ls) > 0 {
			return ls[0]
		}
		return ""
	case quiz.TrueFalse:
		switch strings.ToLower(s) {
		case "true", "t":
			return "True"
		case "false", "f":
			return "False"
		}
		return ""
	}
	return s
}

// letters extracts the standalone capital letters from an answer list such
// as "A, C, E", "[A and C]", or "A,C". Order is preserved, duplicates kept
// (the corrector treats duplicate members as referencing the same option).
func letters(s string) []string {
	matches := letterRe.FindAllStringSubmatch(cleanText(s), -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// cleanText strips bracket wrapping and markdown bold markers the model
// sometimes copies from the format template.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}
