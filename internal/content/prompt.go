package content

import (
	"fmt"
	"strings"
)

const questionSystemPrompt = `You are writing assessment questions for an adaptive practice system.

Rules:
- Generate a single question on the given topic at the given difficulty.
- The question must be self-contained and have exactly one correct answer.
- Use one of the allowed formats only.
- For multiple_choice, give 2-5 options where exactly one matches the answer. Distractors should reflect common mistakes.
- For true_false, the answer is "true" or "false" and choices is empty.
- For short_answer, keep the expected answer short (a number, a word or a phrase) and choices empty.
- Name the single concept the question tests.
- Do not repeat any question from the "already asked" list.`

func buildQuestionMessage(req QuestionRequest, maxPrior int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&b, "Difficulty: %s\n", req.Difficulty)
	fmt.Fprintf(&b, "Allowed formats: %s\n", joinFormats(req))

	if req.Gap != nil {
		b.WriteString("\nThis is a follow-up after a mini-lesson. Test exactly this concept:\n")
		fmt.Fprintf(&b, "Concept: %s\n", req.Gap.Concept)
		if req.Gap.Description != "" {
			fmt.Fprintf(&b, "What the student missed: %s\n", req.Gap.Description)
		}
	}

	b.WriteString("\nAlready asked in this session:\n")
	b.WriteString(numbered(req.PriorQuestions, maxPrior))
	return b.String()
}

func joinFormats(req QuestionRequest) string {
	formats := req.Formats
	if len(formats) == 0 {
		return "any"
	}
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// numbered formats items as a numbered list, keeping only the most recent
// max entries. Returns "None" for an empty list.
func numbered(items []string, max int) string {
	if len(items) == 0 {
		return "None"
	}
	if max > 0 && len(items) > max {
		items = items[len(items)-max:]
	}

	var b strings.Builder
	for i, s := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}

const evaluateSystemPrompt = `You are grading a student's short answer. Accept answers that are equivalent in meaning to the expected answer, including synonyms, different word order and minor spelling mistakes. Reject answers that are incomplete or wrong.`

func buildEvaluateMessage(question, expected, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Expected answer: %s\n", expected)
	fmt.Fprintf(&b, "Student answer: %s\n", answer)
	return b.String()
}

const lessonSystemPrompt = `You are a patient tutor. A student just got a question wrong and needs a short, clear lesson on the concept they missed before trying again.`

func buildLessonMessage(concept, description string, related []string, lc LessonContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", lc.Topic)
	fmt.Fprintf(&b, "Difficulty: %s\n", lc.Difficulty)
	fmt.Fprintf(&b, "Concept missed: %s\n", concept)
	if description != "" {
		fmt.Fprintf(&b, "Details: %s\n", description)
	}
	if len(related) > 0 {
		fmt.Fprintf(&b, "Related topics: %s\n", strings.Join(related, ", "))
	}
	fmt.Fprintf(&b, "Student accuracy on this topic: %.0f%%\n", lc.Accuracy*100)

	if lc.QuestionText != "" {
		b.WriteString("\nThe question they missed:\n")
		fmt.Fprintf(&b, "%s\n", lc.QuestionText)
		fmt.Fprintf(&b, "Expected: %s\n", lc.CorrectAnswer)
		fmt.Fprintf(&b, "Student answered: %s\n", lc.StudentAnswer)
	}

	b.WriteString(`
Instructions:
1. Explain the concept in 3-5 sentences, addressing the specific mistake above.
2. Show a worked example on a similar (not identical) problem with numbered steps.
3. End with one easier practice prompt on the same concept.`)

	return b.String()
}
