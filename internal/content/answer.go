package content

import (
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/abhisek/ascend/internal/store"
)

// Match is the local verdict on an answer.
type Match int

const (
	// Incorrect: the answer does not match.
	Incorrect Match = iota
	// Correct: the answer matches after normalization.
	Correct
	// Undecided: a free-text answer that only the provider can judge.
	Undecided
)

// CheckAnswer compares raw against q's answer.
//
// Normalization rules:
//   - Whitespace is trimmed and collapsed, comparison is case-insensitive
//   - Multiple choice accepts the option text, its 1-based index or its letter;
//     option text takes precedence
//   - True/false accepts true/false, t/f, yes/no
//   - Numeric answers compare by value, so "0.5", "1/2" and "2/4" are equal
//   - A short answer whose expected value is not numeric and does not match
//     textually is Undecided
func CheckAnswer(q *store.Question, raw string) Match {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Incorrect
	}

	switch q.Format {
	case store.FormatMultipleChoice:
		return verdict(checkMultipleChoice(q, raw))
	case store.FormatTrueFalse:
		want, ok := parseBool(q.Answer)
		got, gotOK := parseBool(raw)
		return verdict(ok && gotOK && want == got)
	}

	if want, ok := parseNumber(q.Answer); ok {
		got, gotOK := parseNumber(raw)
		return verdict(gotOK && want.Cmp(got) == 0)
	}
	if normalizeText(raw) == normalizeText(q.Answer) {
		return Correct
	}
	return Undecided
}

func verdict(ok bool) Match {
	if ok {
		return Correct
	}
	return Incorrect
}

func checkMultipleChoice(q *store.Question, raw string) bool {
	want := normalizeText(q.Answer)

	// Option text wins over labels, so numeric options are not read as
	// indexes.
	if hasChoice(q.Choices, raw) {
		return normalizeText(raw) == want
	}
	if idx, err := strconv.Atoi(raw); err == nil && idx >= 1 && idx <= len(q.Choices) {
		return normalizeText(q.Choices[idx-1]) == want
	}
	if len(raw) == 1 {
		if r := unicode.ToLower(rune(raw[0])); r >= 'a' && int(r-'a') < len(q.Choices) {
			return normalizeText(q.Choices[r-'a']) == want
		}
	}
	return normalizeText(raw) == want
}

func hasChoice(choices []string, s string) bool {
	s = normalizeText(s)
	for _, c := range choices {
		if normalizeText(c) == s {
			return true
		}
	}
	return false
}

func parseBool(s string) (value, ok bool) {
	switch normalizeText(s) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	}
	return false, false
}

// parseNumber parses integers, decimals and fractions into an exact value.
func parseNumber(s string) (*big.Rat, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, false
	}
	return r, true
}

// normalizeText lowercases s, collapses whitespace and drops trailing
// sentence punctuation.
func normalizeText(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRight(s, ".!?")
}
