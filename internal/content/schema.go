package content

import (
	"github.com/abhisek/ascend/internal/llm"
	"github.com/abhisek/ascend/internal/store"
)

// questionSchema returns the response schema for question generation with
// the format enum narrowed to formats.
func questionSchema(formats []store.Format) *llm.Schema {
	if len(formats) == 0 {
		formats = store.Formats()
	}
	enum := make([]any, 0, len(formats))
	for _, f := range formats {
		enum = append(enum, string(f))
	}

	return &llm.Schema{
		Name:        "assessment-question",
		Description: "A single assessment question with answer and explanation",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question_text": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The question prompt shown to the student",
				},
				"format": map[string]any{
					"type":        "string",
					"enum":        enum,
					"description": "How the student answers",
				},
				"answer": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The correct answer. For multiple_choice: the text of the correct option. For true_false: \"true\" or \"false\".",
				},
				"choices": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "2-5 options for multiple_choice. Empty array otherwise.",
				},
				"explanation": map[string]any{
					"type":        "string",
					"description": "Short worked solution shown after the student answers",
				},
				"concept": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The single concept this question tests, 2-6 words",
				},
			},
			"required":             []any{"question_text", "format", "answer", "choices", "explanation", "concept"},
			"additionalProperties": false,
		},
	}
}

// VerdictSchema is the response schema for free-text evaluation.
var VerdictSchema = &llm.Schema{
	Name:        "answer-verdict",
	Description: "Whether a student's short answer is correct",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correct": map[string]any{
				"type": "boolean",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "One or two sentences on why the answer is or is not correct",
			},
			"concept": map[string]any{
				"type":        "string",
				"description": "The concept the student missed, empty if correct",
			},
		},
		"required":             []any{"correct", "explanation", "concept"},
		"additionalProperties": false,
	},
}

// LessonSchema is the response schema for mini-lesson generation.
var LessonSchema = &llm.Schema{
	Name:        "mini-lesson",
	Description: "A mini-lesson with explanation, worked example and a practice prompt",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Short title for the lesson (3-8 words)",
			},
			"explanation": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Clear explanation of the concept (3-5 sentences)",
			},
			"worked_example": map[string]any{
				"type":        "string",
				"description": "Step-by-step solution to a similar problem",
			},
			"practice": map[string]any{
				"type":        "string",
				"description": "One easier practice prompt on the same concept",
			},
		},
		"required":             []any{"title", "explanation", "worked_example", "practice"},
		"additionalProperties": false,
	},
}
