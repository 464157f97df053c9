package assessment

import (
	"fmt"

	"github.com/abhisek/ascend/internal/session"
)

// Config holds the orchestrator tunables.
type Config struct {
	// FormatWindow is the number of consecutive questions for a pair that
	// must contain at least two formats.
	FormatWindow int `yaml:"format_window"`

	// MaxDuplicateRetries bounds re-requests when the provider returns a
	// question already served in the session.
	MaxDuplicateRetries int `yaml:"max_duplicate_retries"`

	// CASRetries bounds re-reads when a mastery write loses a race.
	CASRetries int `yaml:"cas_retries"`

	// PriorQuestions is how many earlier question texts are sent to the
	// provider to steer it away from repeats.
	PriorQuestions int `yaml:"prior_questions"`

	// MaxAnswerLen caps a submitted answer, in bytes.
	MaxAnswerLen int `yaml:"max_answer_len"`

	// RecentQuestions is how many answered ids a restored session keeps.
	RecentQuestions int `yaml:"recent_questions"`
}

// DefaultConfig returns the tunables used when none are configured.
func DefaultConfig() Config {
	return Config{
		FormatWindow:        10,
		MaxDuplicateRetries: 3,
		CASRetries:          5,
		PriorQuestions:      8,
		MaxAnswerLen:        2000,
		RecentQuestions:     session.DefaultRecentQuestions,
	}
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	switch {
	case c.FormatWindow < 2:
		return fmt.Errorf("format_window must be at least 2, got %d", c.FormatWindow)
	case c.MaxDuplicateRetries < 0:
		return fmt.Errorf("max_duplicate_retries must not be negative")
	case c.CASRetries < 1:
		return fmt.Errorf("cas_retries must be at least 1")
	case c.PriorQuestions < 0:
		return fmt.Errorf("prior_questions must not be negative")
	case c.MaxAnswerLen < 1:
		return fmt.Errorf("max_answer_len must be positive")
	case c.RecentQuestions < 1:
		return fmt.Errorf("recent_questions must be positive")
	}
	return nil
}
