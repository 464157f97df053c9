package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/llm"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const fractionsQuestion = `{
	"question_text": "Which fraction equals 1/2?",
	"format": "multiple_choice",
	"answer": "2/4",
	"choices": ["2/3", "2/4", "3/4", "1/3"],
	"explanation": "Multiply top and bottom of 1/2 by 2.",
	"concept": "scaling numerator and denominator"
}`

type api struct {
	t     *testing.T
	h     http.Handler
	mock  *llm.MockProvider
	token string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v, err := identity.NewVerifier("test-secret", "ascend")
	require.NoError(t, err)
	token, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)

	mock := llm.NewMockProvider()
	orch := assessment.New(s, content.NewLLMProvider(mock, content.DefaultConfig()), nil, nil,
		assessment.DefaultConfig(), logger.Nop())
	srv := New(Deps{Store: s, Assessment: orch, Verifier: v, Log: logger.Nop()})
	return &api{t: t, h: srv.Handler(), mock: mock, token: token}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (a *api) do(method, path string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	if out != nil && rr.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

// failure sends a request expected to fail and returns its error body.
func (a *api) failure(method, path string, body any) (int, APIError) {
	a.t.Helper()
	var env ErrorEnvelope
	code := a.do(method, path, body, &env)
	return code, env.Error
}

func (a *api) topic(name, parent string) int64 {
	a.t.Helper()
	var tv topicView
	code := a.do(http.MethodPost, "/v1/topics", map[string]string{"name": name, "parent": parent}, &tv)
	require.Equal(a.t, http.StatusCreated, code)
	return tv.ID
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	a.token = ""
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestAuth(t *testing.T) {
	a := newAPI(t)

	a.token = ""
	code, e := a.failure(http.MethodPost, "/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", e.Code)

	a.token = "not-a-jwt"
	code, _ = a.failure(http.MethodPost, "/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	other, err := identity.NewVerifier("other-secret", "ascend")
	require.NoError(t, err)
	a.token, err = other.Issue("alice", time.Hour)
	require.NoError(t, err)
	code, _ = a.failure(http.MethodPost, "/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, code, "token signed with another key")
}

func TestSessionLifecycle(t *testing.T) {
	a := newAPI(t)

	var started struct {
		SessionID string `json:"session_id"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/sessions", nil, &started))
	require.NotEmpty(t, started.SessionID)

	code, e := a.failure(http.MethodPost, "/v1/sessions", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "session_already_open", e.Code)

	var restored struct {
		SessionID string `json:"session_id"`
		Open      bool   `json:"open"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/sessions/restore", nil, &restored))
	assert.Equal(t, started.SessionID, restored.SessionID)
	assert.True(t, restored.Open)

	var sum struct {
		SessionID      string `json:"session_id"`
		TotalQuestions int    `json:"total_questions"`
	}
	path := "/v1/sessions/" + started.SessionID + "/end"
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path, nil, &sum))
	assert.Equal(t, started.SessionID, sum.SessionID)
	assert.Zero(t, sum.TotalQuestions)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path, nil, &sum), "ending twice is harmless")
}

func TestTopics(t *testing.T) {
	a := newAPI(t)
	sums := a.topic("Column addition", "Arithmetic")
	carry := a.topic("Carrying", "")
	estimate := a.topic("Estimation", "")

	var tv topicView
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/topics/%d", sums), nil, &tv))
	assert.Equal(t, "Column addition", tv.Name)
	require.NotNil(t, tv.ParentID)

	link := func(parent, child int64, typ string) int {
		return a.do(http.MethodPost, fmt.Sprintf("/v1/topics/%d/relationships", parent),
			map[string]any{"child_id": child, "type": typ}, nil)
	}
	require.Equal(t, http.StatusCreated, link(carry, sums, "prerequisite"))
	require.Equal(t, http.StatusCreated, link(sums, estimate, "related"))

	code, e := a.failure(http.MethodPost, fmt.Sprintf("/v1/topics/%d/relationships", carry),
		map[string]any{"child_id": sums, "type": "prerequisite"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "constraint_violation", e.Code)

	code, e = a.failure(http.MethodPost, fmt.Sprintf("/v1/topics/%d/relationships", carry),
		map[string]any{"child_id": sums, "type": "sibling"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", e.Code)

	var prereqs struct {
		Topics []topicRef `json:"topics"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/topics/%d/prerequisites", sums), nil, &prereqs))
	assert.Equal(t, []topicRef{{ID: carry, Name: "Carrying"}}, prereqs.Topics)

	var related struct {
		Topics []topicRef `json:"topics"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/topics/%d/related", estimate), nil, &related))
	assert.Equal(t, []topicRef{{ID: sums, Name: "Column addition"}}, related.Topics, "related edges read both ways")

	var available struct {
		Topics []topicRef `json:"topics"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/available-topics", nil, &available))
	assert.Contains(t, available.Topics, topicRef{ID: carry, Name: "Carrying"})
	assert.Contains(t, available.Topics, topicRef{ID: estimate, Name: "Estimation"})
	assert.NotContains(t, available.Topics, topicRef{ID: sums, Name: "Column addition"}, "prerequisite not mastered")
}

func TestTopicErrors(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad id", http.MethodGet, "/v1/topics/abc", nil, http.StatusBadRequest, "invalid_input"},
		{"unknown topic", http.MethodGet, "/v1/topics/999", nil, http.StatusNotFound, "not_found"},
		{"unknown prerequisites", http.MethodGet, "/v1/topics/999/prerequisites", nil, http.StatusNotFound, "not_found"},
		{"missing name", http.MethodPost, "/v1/topics", map[string]string{"parent": "x"}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, e := a.failure(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestAssessmentFlow(t *testing.T) {
	a := newAPI(t)
	topic := a.topic("Equivalent fractions", "Fractions")
	questions := fmt.Sprintf("/v1/topics/%d/questions", topic)

	code, e := a.failure(http.MethodPost, questions, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_open_session", e.Code)

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/sessions", nil, nil))

	a.mock.AddResponse(llm.MockResponse{Content: json.RawMessage(fractionsQuestion)})
	var q assessment.Question
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, questions, nil, &q))
	assert.Equal(t, "Which fraction equals 1/2?", q.Text)
	assert.Len(t, q.Choices, 4)

	var raw map[string]any
	code = a.do(http.MethodPost, "/v1/answers", map[string]string{"question_id": q.ID, "answer": "2/3"}, &raw)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, raw["correct"])
	assert.Equal(t, "2/4", raw["correct_answer"])
	assert.Equal(t, string(assessment.ActionRemediate), raw["next_action"])
	assert.NotNil(t, raw["knowledge_gap"])

	code, e = a.failure(http.MethodPost, questions, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "mini_lesson_pending", e.Code)

	code, e = a.failure(http.MethodPost, fmt.Sprintf("/v1/topics/%d/mini-lesson/consume", topic), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "mini_lesson_not_served", e.Code)

	// The provider queue is empty, so the lesson is built from the gap.
	var lesson assessment.MiniLesson
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/topics/%d/mini-lesson", topic), nil, &lesson))
	assert.True(t, lesson.Degraded)
	assert.Equal(t, "scaling numerator and denominator", lesson.Gap.Concept)

	require.Equal(t, http.StatusNoContent,
		a.do(http.MethodPost, fmt.Sprintf("/v1/topics/%d/mini-lesson/consume", topic), nil, nil))

	var m assessment.MasteryView
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/topics/%d/mastery", topic), nil, &m))
	assert.Equal(t, 1, m.Attempted)
	assert.Zero(t, m.Correct)
	assert.Equal(t, "consumed", string(m.LessonStatus))
}

func TestProviderFailureIsGeneric(t *testing.T) {
	a := newAPI(t)
	topic := a.topic("Long division", "")
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/sessions", nil, nil))

	code, e := a.failure(http.MethodPost, fmt.Sprintf("/v1/topics/%d/questions", topic), nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "content_unavailable", e.Code)
	assert.Equal(t, "temporarily unavailable, retry later", e.Message)
}

func TestSubmitValidation(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/sessions", nil, nil))

	code, e := a.failure(http.MethodPost, "/v1/answers", map[string]string{"question_id": "q", "answer": " "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", e.Code)

	code, e = a.failure(http.MethodPost, "/v1/answers", map[string]string{"question_id": "never-served", "answer": "4"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", e.Code)

	code, e = a.failure(http.MethodGet, "/v1/topics/1/mini-lesson", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_pending_lesson", e.Code)
}
