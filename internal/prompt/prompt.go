// Package prompt builds generation instructions for the language model. The
// output format it requests (question markers, option lines, answer labels)
// is the same format the parser package extracts; the two sides of that
// contract are covered by a shared test.
package prompt

import (
	"fmt"
	"strings"

	"github.com/quizforge/quizforge/internal/quiz"
)

// Field labels the model is instructed to emit. The parser matches these
// same labels case-insensitively.
const (
	AnswerLabel      = "Correct Answer:"
	MultiAnswerLabel = "Correct Answers:"
	ModelAnswerLabel = "Model Answer:"
)

// Build returns the system and user prompts for one generation round.
// count is passed separately from cfg because a shortfall retry requests
// fewer questions than the original config. Unknown question types are
// rejected by quiz.Config.Validate before this is ever called.
func Build(cfg quiz.Config, contextText string, count int) (system, user string) {
	system = systemPrompt(cfg, count)
	user = fmt.Sprintf("Generate %d %s questions based on the following content:\n\n%s",
		count, cfg.QuestionType, contextText)
	return system, user
}

func systemPrompt(cfg quiz.Config, count int) string {
	topic := cfg.Topic
	if topic == "" {
		topic = "general"
	}

	var sb strings.Builder
	sb.WriteString(header(cfg.QuestionType, count))
	sb.WriteString(requirements(cfg))
	sb.WriteString(difficultyGuidance(cfg.QuestionType, cfg.Difficulty))
	sb.WriteString(formatInstructions(cfg.QuestionType))
	sb.WriteString("\nEnsure questions are non-duplicative, clear, and test understanding rather than mere recall.\n")
	fmt.Fprintf(&sb, "Focus specifically on the topic: %s", topic)
	return sb.String()
}

func header(qt quiz.QuestionType, count int) string {
	label := map[quiz.QuestionType]string{
		quiz.MultipleChoice:    "multiple-choice",
		quiz.MultipleSelection: "multiple-selection",
		quiz.TrueFalse:         "true/false",
		quiz.ShortAnswer:       "short answer",
	}[qt]
	return fmt.Sprintf(
		"You are an expert question generator specializing in creating high-quality %s questions.\n"+
			"Your task is to generate %d %s questions based on the provided content.\n",
		label, count, label)
}

func requirements(cfg quiz.Config) string {
	var sb strings.Builder
	sb.WriteString("Each question must:\n")
	sb.WriteString("1. Be directly based on the provided content\n")
	switch cfg.QuestionType {
	case quiz.MultipleChoice:
		sb.WriteString("2. Have exactly 4 options (A, B, C, D)\n")
		sb.WriteString("3. Have exactly one correct answer\n")
		sb.WriteString("4. Have alternative options that are plausible but clearly incorrect\n")
	case quiz.MultipleSelection:
		sb.WriteString("2. Have exactly 5 options (A, B, C, D, E)\n")
		sb.WriteString("3. Have 2-3 correct answers\n")
		sb.WriteString("4. Have alternative options that are plausible but clearly incorrect\n")
	case quiz.TrueFalse:
		sb.WriteString("2. Have a clear true or false answer\n")
	case quiz.ShortAnswer:
		sb.WriteString("2. Be answerable in 1-3 sentences\n")
	}
	fmt.Fprintf(&sb, "5. Be at %s difficulty level\n", cfg.Difficulty)
	fmt.Fprintf(&sb, "6. Be written in %s\n\n", cfg.Language)
	return sb.String()
}

// difficultyGuidance expands the difficulty level into concrete instructions.
// Phrasing varies per question type: distractor advice only makes sense for
// choice-style questions.
func difficultyGuidance(qt quiz.QuestionType, d quiz.Difficulty) string {
	choiceStyle := qt == quiz.MultipleChoice || qt == quiz.MultipleSelection

	var sb strings.Builder
	switch d {
	case quiz.Low:
		sb.WriteString("For \"low\" difficulty:\n")
		sb.WriteString("- Focus on basic recall and understanding\n")
		sb.WriteString("- Use straightforward language\n")
		if choiceStyle {
			sb.WriteString("- Make incorrect options clearly different from the correct ones\n")
		}
	case quiz.Medium:
		sb.WriteString("For \"medium\" difficulty:\n")
		sb.WriteString("- Test application and analysis\n")
		sb.WriteString("- Include some nuance in the questions\n")
		if choiceStyle {
			sb.WriteString("- Make incorrect options somewhat similar to the correct ones\n")
		}
	case quiz.High:
		sb.WriteString("For \"high\" difficulty:\n")
		sb.WriteString("- Test evaluation and synthesis\n")
		sb.WriteString("- Use precise language where small details matter\n")
		if choiceStyle {
			sb.WriteString("- Make incorrect options very similar to the correct ones, requiring careful discrimination\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatInstructions(qt quiz.QuestionType) string {
	switch qt {
	case quiz.MultipleChoice:
		return "Format each question as follows:\n" +
			"Q1. [Question text]\n" +
			"A. [Option A]\n" +
			"B. [Option B]\n" +
			"C. [Option C]\n" +
			"D. [Option D]\n" +
			AnswerLabel + " [A/B/C/D]\n"
	case quiz.MultipleSelection:
		return "Format each question as follows:\n" +
			"Q1. [Question text] (Select all that apply)\n" +
			"A. [Option A]\n" +
			"B. [Option B]\n" +
			"C. [Option C]\n" +
			"D. [Option D]\n" +
			"E. [Option E]\n" +
			MultiAnswerLabel + " [List all correct options, e.g., A, C, E]\n"
	case quiz.TrueFalse:
		return "Format each question as follows:\n" +
			"Q1. [Statement]\n" +
			AnswerLabel + " [True/False]\n"
	case quiz.ShortAnswer:
		return "Format each question as follows:\n" +
			"Q1. [Question text]\n" +
			ModelAnswerLabel + " [Brief model answer that would be expected]\n"
	}
	return ""
}
