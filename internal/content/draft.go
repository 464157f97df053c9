package content

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

const (
	maxQuestionLen = 1000
	minChoices     = 2
	maxChoices     = 5
)

// questionNamespace scopes name-based question ids.
var questionNamespace = uuid.MustParse("6f0b7c1e-3d2a-5b8e-9c41-2a7d5e8f1b30")

// CheckDraft rejects drafts that cannot be answered or checked.
func CheckDraft(d *QuestionDraft, req QuestionRequest) error {
	if d.Text == "" {
		return fmt.Errorf("question_text is empty")
	}
	if len(d.Text) > maxQuestionLen {
		return fmt.Errorf("question_text exceeds %d characters", maxQuestionLen)
	}
	if d.Answer == "" {
		return fmt.Errorf("answer is empty")
	}
	if !d.Format.Valid() {
		return fmt.Errorf("unknown format %q", d.Format)
	}
	if !req.Allows(d.Format) {
		return fmt.Errorf("format %q not allowed, want one of %s", d.Format, joinFormats(req))
	}

	switch d.Format {
	case store.FormatMultipleChoice:
		if len(d.Choices) < minChoices || len(d.Choices) > maxChoices {
			return fmt.Errorf("multiple_choice needs %d-%d choices, got %d", minChoices, maxChoices, len(d.Choices))
		}
		matches := 0
		seen := make(map[string]bool, len(d.Choices))
		for _, c := range d.Choices {
			key := normalizeText(c)
			if seen[key] {
				return fmt.Errorf("duplicate choice %q", c)
			}
			seen[key] = true
			if key == normalizeText(d.Answer) {
				matches++
			}
		}
		if matches != 1 {
			return fmt.Errorf("answer %q must match exactly one choice", d.Answer)
		}
	case store.FormatTrueFalse:
		if _, ok := parseBool(d.Answer); !ok {
			return fmt.Errorf("true_false answer must be true or false, got %q", d.Answer)
		}
		d.Choices = nil
	case store.FormatShortAnswer:
		d.Choices = nil
	}
	return nil
}

// NewQuestion gives d a stable id derived from its topic, difficulty,
// format and normalized text, so regenerating the same question yields the
// same id.
func NewQuestion(topicID int64, difficulty mastery.Tier, d *QuestionDraft) store.Question {
	key := fmt.Sprintf("%d|%s|%s|%s", topicID, difficulty, d.Format, normalizeText(d.Text))
	answer := d.Answer
	if d.Format == store.FormatTrueFalse {
		v, _ := parseBool(answer)
		answer = fmt.Sprint(v)
	}
	return store.Question{
		ID:          uuid.NewSHA1(questionNamespace, []byte(key)).String(),
		TopicID:     topicID,
		Difficulty:  difficulty,
		Format:      d.Format,
		Text:        d.Text,
		Answer:      answer,
		Choices:     d.Choices,
		Explanation: d.Explanation,
		Concept:     d.Concept,
	}
}

// BuildGap describes what an incorrect answer to q shows the student
// missed. The concept is never empty: it falls back to the question's
// concept and then to the topic name.
func BuildGap(q *store.Question, topic string, related []string, explanation string) store.KnowledgeGap {
	concept := ""
	for _, c := range []string{q.Concept, topic} {
		if c = strings.TrimSpace(c); c != "" {
			concept = c
			break
		}
	}
	if concept == "" {
		concept = fmt.Sprintf("topic %d", q.TopicID)
	}

	desc := strings.TrimSpace(explanation)
	if desc == "" {
		desc = strings.TrimSpace(q.Explanation)
	}
	if desc == "" {
		desc = fmt.Sprintf("Expected %q for: %s", q.Answer, q.Text)
	}

	if related == nil {
		related = []string{}
	}
	return store.KnowledgeGap{
		Concept:       concept,
		Description:   desc,
		RelatedTopics: related,
	}
}

// FallbackLesson builds a lesson from the gap alone, for when the provider
// cannot produce one.
func FallbackLesson(gap store.KnowledgeGap, q *store.Question) store.Lesson {
	l := store.Lesson{
		Title:       "Review: " + gap.Concept,
		Explanation: gap.Description,
		Degraded:    true,
	}
	if q != nil {
		l.WorkedExample = fmt.Sprintf("%s\nAnswer: %s", q.Text, q.Answer)
		if q.Explanation != "" {
			l.WorkedExample += "\n" + q.Explanation
		}
	}
	if len(gap.RelatedTopics) > 0 {
		l.Practice = "Revisit: " + strings.Join(gap.RelatedTopics, ", ")
	}
	return l
}
