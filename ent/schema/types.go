package schema

// KnowledgeGap describes a concept a student failed to demonstrate. It is
// stored as JSON on answer events and pending lessons.
type KnowledgeGap struct {
	Concept       string   `json:"concept"`
	Description   string   `json:"description"`
	RelatedTopics []string `json:"related_topics"`
}

// Lesson is generated mini-lesson content cached on a pending lesson.
type Lesson struct {
	Title         string `json:"title"`
	Explanation   string `json:"explanation"`
	WorkedExample string `json:"worked_example"`
	Practice      string `json:"practice"`
	Degraded      bool   `json:"degraded,omitempty"`
}
