package llm

import "context"

// Purpose labels what a generation request is for. It is recorded on every
// logged event so usage can be broken down per feature.
type Purpose string

const (
	PurposeQuestionGen Purpose = "question-gen"
	PurposeAnswerEval  Purpose = "answer-eval"
	PurposeLesson      Purpose = "lesson"
	PurposeUnknown     Purpose = "unknown"
)

type purposeKey struct{}

// WithPurpose tags ctx with p.
func WithPurpose(ctx context.Context, p Purpose) context.Context {
	return context.WithValue(ctx, purposeKey{}, p)
}

// PurposeFrom returns the purpose on ctx, or PurposeUnknown.
func PurposeFrom(ctx context.Context) Purpose {
	if p, ok := ctx.Value(purposeKey{}).(Purpose); ok && p != "" {
		return p
	}
	return PurposeUnknown
}
