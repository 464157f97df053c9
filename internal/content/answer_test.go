package content

import (
	"strings"
	"testing"

	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

func TestCheckAnswer(t *testing.T) {
	mc := &store.Question{Format: store.FormatMultipleChoice, Answer: "2/4", Choices: []string{"2/3", "2/4", "3/4"}}
	numericMC := &store.Question{Format: store.FormatMultipleChoice, Answer: "3", Choices: []string{"1", "2", "3"}}
	tf := &store.Question{Format: store.FormatTrueFalse, Answer: "true"}
	num := &store.Question{Format: store.FormatShortAnswer, Answer: "1/2"}
	word := &store.Question{Format: store.FormatShortAnswer, Answer: "Mitochondria"}

	tests := []struct {
		name string
		q    *store.Question
		raw  string
		want Match
	}{
		{"mc text", mc, "2/4", Correct},
		{"mc text case and space", mc, "  2/4 ", Correct},
		{"mc index", mc, "2", Correct},
		{"mc wrong index", mc, "1", Incorrect},
		{"mc letter", mc, "B", Correct},
		{"mc wrong letter", mc, "c", Incorrect},
		{"mc out of range", mc, "9", Incorrect},
		{"mc numeric options read as text", numericMC, "3", Correct},
		{"mc numeric wrong", numericMC, "1", Incorrect},
		{"tf true", tf, "True", Correct},
		{"tf yes", tf, "yes", Correct},
		{"tf false", tf, "f", Incorrect},
		{"tf garbage", tf, "maybe", Incorrect},
		{"numeric equal fraction", num, "2/4", Correct},
		{"numeric decimal", num, "0.50", Correct},
		{"numeric wrong", num, "0.6", Incorrect},
		{"numeric non-number", num, "half", Incorrect},
		{"word exact", word, "mitochondria.", Correct},
		{"word needs provider", word, "the mitochondrion", Undecided},
		{"empty", word, "   ", Incorrect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckAnswer(tt.q, tt.raw); got != tt.want {
				t.Fatalf("CheckAnswer(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCheckDraft(t *testing.T) {
	base := func() *QuestionDraft {
		return &QuestionDraft{
			Format:  store.FormatMultipleChoice,
			Text:    "Pick the even number",
			Answer:  "4",
			Choices: []string{"3", "4", "5"},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*QuestionDraft)
		wantErr string
	}{
		{"valid", func(*QuestionDraft) {}, ""},
		{"empty text", func(d *QuestionDraft) { d.Text = "" }, "question_text is empty"},
		{"long text", func(d *QuestionDraft) { d.Text = strings.Repeat("x", maxQuestionLen+1) }, "exceeds"},
		{"no answer", func(d *QuestionDraft) { d.Answer = "" }, "answer is empty"},
		{"bad format", func(d *QuestionDraft) { d.Format = "essay" }, "unknown format"},
		{"one choice", func(d *QuestionDraft) { d.Choices = []string{"4"} }, "choices"},
		{"answer not a choice", func(d *QuestionDraft) { d.Answer = "6" }, "exactly one choice"},
		{"duplicate choice", func(d *QuestionDraft) { d.Choices = []string{"4", "4", "5"} }, "duplicate choice"},
		{"tf bad answer", func(d *QuestionDraft) { d.Format = store.FormatTrueFalse; d.Answer = "4" }, "true or false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			err := CheckDraft(d, QuestionRequest{})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("CheckDraft() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewQuestion_StableID(t *testing.T) {
	d := &QuestionDraft{Format: store.FormatTrueFalse, Text: "Is 2 even?", Answer: "Yes"}
	a := NewQuestion(3, mastery.Easy, d)
	b := NewQuestion(3, mastery.Easy, &QuestionDraft{Format: store.FormatTrueFalse, Text: "  is 2   EVEN? ", Answer: "true"})
	if a.ID != b.ID {
		t.Fatalf("same question should get the same id: %s vs %s", a.ID, b.ID)
	}
	if a.Answer != "true" {
		t.Errorf("true/false answers are canonicalized, got %q", a.Answer)
	}

	other := NewQuestion(3, mastery.Medium, d)
	if other.ID == a.ID {
		t.Fatal("difficulty is part of the id")
	}
}

func TestBuildGap(t *testing.T) {
	q := &store.Question{TopicID: 9, Text: "2+2?", Answer: "4"}

	g := BuildGap(q, "Addition", nil, "")
	if g.Concept != "Addition" {
		t.Errorf("concept = %q, want topic fallback", g.Concept)
	}
	if g.Description == "" || g.RelatedTopics == nil {
		t.Errorf("gap should be fully populated: %+v", g)
	}

	q.Concept = "carrying"
	g = BuildGap(q, "Addition", []string{"Place value"}, "forgot to carry")
	if g.Concept != "carrying" || g.Description != "forgot to carry" || g.RelatedTopics[0] != "Place value" {
		t.Errorf("unexpected gap: %+v", g)
	}

	g = BuildGap(&store.Question{TopicID: 9}, "", nil, "")
	if g.Concept == "" {
		t.Error("concept must never be empty")
	}
}

func TestFallbackLesson(t *testing.T) {
	gap := store.KnowledgeGap{Concept: "carrying", Description: "forgot to carry", RelatedTopics: []string{"Place value"}}
	l := FallbackLesson(gap, &store.Question{Text: "19+5?", Answer: "24"})
	if !l.Degraded || !strings.Contains(l.Title, "carrying") || !strings.Contains(l.WorkedExample, "24") {
		t.Fatalf("unexpected fallback lesson: %+v", l)
	}
}
