package content

import (
	"context"
	"errors"
	"strings"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/llm"
	"github.com/abhisek/ascend/internal/store"
)

// Config controls the behavior of the LLMProvider.
type Config struct {
	// QuestionMaxTokens is the token budget for a generated question.
	QuestionMaxTokens int `yaml:"question_max_tokens"`

	// LessonMaxTokens is the token budget for a mini-lesson.
	LessonMaxTokens int `yaml:"lesson_max_tokens"`

	// EvalMaxTokens is the token budget for a free-text verdict.
	EvalMaxTokens int `yaml:"eval_max_tokens"`

	// Temperature controls question and lesson randomness (0.0-1.0).
	// Free-text evaluation always runs at 0.
	Temperature float64 `yaml:"temperature"`

	// MaxPriorQuestions is the maximum number of prior questions included
	// in the prompt for deduplication.
	MaxPriorQuestions int `yaml:"max_prior_questions"`
}

// DefaultConfig returns a Config with recommended defaults.
func DefaultConfig() Config {
	return Config{
		QuestionMaxTokens: 768,
		LessonMaxTokens:   1024,
		EvalMaxTokens:     256,
		Temperature:       0.7,
		MaxPriorQuestions: 8,
	}
}

// LLMProvider implements Provider on top of an llm.Provider. Transient
// failures are retried by the llm.Provider's retry policy; LLMProvider only
// classifies what is left.
type LLMProvider struct {
	llm llm.Provider
	cfg Config
}

// NewLLMProvider creates an LLMProvider.
func NewLLMProvider(p llm.Provider, cfg Config) *LLMProvider {
	return &LLMProvider{llm: p, cfg: cfg}
}

type questionOutput struct {
	QuestionText string   `json:"question_text"`
	Format       string   `json:"format"`
	Answer       string   `json:"answer"`
	Choices      []string `json:"choices"`
	Explanation  string   `json:"explanation"`
	Concept      string   `json:"concept"`
}

// GenerateQuestion produces one question for req.
func (p *LLMProvider) GenerateQuestion(ctx context.Context, req QuestionRequest) (*QuestionDraft, error) {
	const op = "generate question"
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestionGen)

	r := llm.Prompt(questionSystemPrompt, buildQuestionMessage(req, p.cfg.MaxPriorQuestions), questionSchema(req.Formats))
	r.MaxTokens, r.Temperature = p.cfg.QuestionMaxTokens, p.cfg.Temperature
	resp, err := p.llm.Generate(ctx, r)
	if err != nil {
		return nil, classify(op, err)
	}

	var raw questionOutput
	if err := resp.Decode(&raw); err != nil {
		return nil, classify(op, err)
	}

	d := &QuestionDraft{
		Format:      store.Format(raw.Format),
		Text:        strings.TrimSpace(raw.QuestionText),
		Answer:      strings.TrimSpace(raw.Answer),
		Choices:     raw.Choices,
		Explanation: raw.Explanation,
		Concept:     strings.TrimSpace(raw.Concept),
	}
	if err := CheckDraft(d, req); err != nil {
		return nil, apperr.Provider(apperr.CodeInvalidResponse, op, err)
	}
	if req.Gap != nil && d.Concept == "" {
		d.Concept = req.Gap.Concept
	}
	return d, nil
}

type verdictOutput struct {
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
	Concept     string `json:"concept"`
}

// EvaluateFreeText asks the model whether answer is acceptable for q.
func (p *LLMProvider) EvaluateFreeText(ctx context.Context, q *store.Question, answer string) (*FreeTextVerdict, error) {
	const op = "evaluate answer"
	ctx = llm.WithPurpose(ctx, llm.PurposeAnswerEval)

	r := llm.Prompt(evaluateSystemPrompt, buildEvaluateMessage(q.Text, q.Answer, answer), VerdictSchema)
	r.MaxTokens = p.cfg.EvalMaxTokens
	resp, err := p.llm.Generate(ctx, r)
	if err != nil {
		return nil, classify(op, err)
	}

	var raw verdictOutput
	if err := resp.Decode(&raw); err != nil {
		return nil, classify(op, err)
	}
	return &FreeTextVerdict{
		Correct:     raw.Correct,
		Explanation: raw.Explanation,
		Concept:     strings.TrimSpace(raw.Concept),
	}, nil
}

type lessonOutput struct {
	Title         string `json:"title"`
	Explanation   string `json:"explanation"`
	WorkedExample string `json:"worked_example"`
	Practice      string `json:"practice"`
}

// GenerateMiniLesson produces remediation content for gap.
func (p *LLMProvider) GenerateMiniLesson(ctx context.Context, gap store.KnowledgeGap, lc LessonContext) (*MiniLessonDraft, error) {
	const op = "generate mini-lesson"
	ctx = llm.WithPurpose(ctx, llm.PurposeLesson)

	r := llm.Prompt(lessonSystemPrompt, buildLessonMessage(gap.Concept, gap.Description, gap.RelatedTopics, lc), LessonSchema)
	r.MaxTokens, r.Temperature = p.cfg.LessonMaxTokens, p.cfg.Temperature
	resp, err := p.llm.Generate(ctx, r)
	if err != nil {
		return nil, classify(op, err)
	}

	var raw lessonOutput
	if err := resp.Decode(&raw); err != nil {
		return nil, classify(op, err)
	}
	return &MiniLessonDraft{
		Title:         raw.Title,
		Explanation:   raw.Explanation,
		WorkedExample: raw.WorkedExample,
		Practice:      raw.Practice,
	}, nil
}

// classify maps the typed llm errors onto the provider failure codes.
// Caller cancellation passes through untouched.
func classify(op string, err error) error {
	var (
		timeout *llm.ErrTimeout
		rate    *llm.ErrRateLimit
		invalid *llm.ErrInvalidResponse
		maxTok  *llm.ErrMaxTokensExceeded
	)
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.Provider(apperr.CodeTimeout, op, err)
	case errors.As(err, &rate):
		return apperr.Provider(apperr.CodeRateLimited, op, err)
	case errors.As(err, &invalid), errors.As(err, &maxTok):
		return apperr.Provider(apperr.CodeInvalidResponse, op, err)
	default:
		return apperr.Provider(apperr.CodeUnavailable, op, err)
	}
}
