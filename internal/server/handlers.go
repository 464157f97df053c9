package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/store"
)

func studentOf(c *gin.Context) string {
	id, _ := identity.StudentFrom(c.Request.Context())
	return id
}

func topicParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("parse topic id", "invalid topic id %q", c.Param("id"))
	}
	return id, nil
}

func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("decode request", "%v", err)
	}
	return nil
}

// POST /v1/sessions
func (s *Server) startSession(c *gin.Context) {
	id, err := s.sessions.StartSession(c.Request.Context(), studentOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// POST /v1/sessions/:id/end
func (s *Server) endSession(c *gin.Context) {
	sum, err := s.sessions.EndSession(c.Request.Context(), studentOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GET /v1/sessions/restore
func (s *Server) restoreSession(c *gin.Context) {
	st, err := s.sessions.RestoreSessionState(c.Request.Context(), studentOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type topicView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Children  []int64   `json:"children"`
	CreatedAt time.Time `json:"created_at"`
}

func viewTopic(t *store.Topic) topicView {
	children := t.Children
	if children == nil {
		children = []int64{}
	}
	return topicView{ID: t.ID, Name: t.Name, ParentID: t.ParentID, Children: children, CreatedAt: t.CreatedAt}
}

type topicRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// POST /v1/topics
func (s *Server) createTopic(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required"`
		Parent string `json:"parent"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	id, err := s.store.UpsertTopic(ctx, req.Name, req.Parent)
	if err != nil {
		s.fail(c, err)
		return
	}
	t, err := s.store.Topic(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewTopic(t))
}

// GET /v1/topics/:id
func (s *Server) getTopic(c *gin.Context) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	t, err := s.store.Topic(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTopic(t))
}

// POST /v1/topics/:id/relationships
// The path topic is the parent: for a prerequisite edge it must be
// learned before child_id.
func (s *Server) addRelationship(c *gin.Context) {
	parentID, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req struct {
		ChildID int64  `json:"child_id" binding:"required"`
		Type    string `json:"type" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	typ := store.RelType(req.Type)
	if err := s.store.AddRelationship(c.Request.Context(), parentID, req.ChildID, typ); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"parent_id": parentID, "child_id": req.ChildID, "type": typ})
}

// GET /v1/topics/:id/prerequisites
func (s *Server) prerequisites(c *gin.Context) {
	s.neighbours(c, s.store.PrerequisitesOf)
}

// GET /v1/topics/:id/related
func (s *Server) related(c *gin.Context) {
	s.neighbours(c, s.store.RelatedOf)
}

// GET /v1/available-topics
func (s *Server) availableTopics(c *gin.Context) {
	ids, err := s.engine.AvailableTopics(c.Request.Context(), studentOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.topicRefs(c, ids, gin.H{})
}

func (s *Server) neighbours(c *gin.Context, list func(ctx context.Context, id int64) ([]int64, error)) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.Topic(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	ids, err := list(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.topicRefs(c, ids, gin.H{"topic_id": id})
}

// topicRefs writes ids with their names under "topics" alongside body.
func (s *Server) topicRefs(c *gin.Context, ids []int64, body gin.H) {
	_, names, err := s.store.TopicNames(c.Request.Context(), ids)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]topicRef, 0, len(ids))
	for _, n := range ids {
		out = append(out, topicRef{ID: n, Name: names[n]})
	}
	body["topics"] = out
	c.JSON(http.StatusOK, body)
}

// POST /v1/topics/:id/questions
func (s *Server) requestQuestion(c *gin.Context) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := s.engine.RequestQuestion(c.Request.Context(), studentOf(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// POST /v1/answers
func (s *Server) submitAnswer(c *gin.Context) {
	var req struct {
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.engine.SubmitAnswer(c.Request.Context(), studentOf(c), req.QuestionID, req.Answer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /v1/topics/:id/mini-lesson
func (s *Server) miniLesson(c *gin.Context) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	l, err := s.engine.MiniLesson(c.Request.Context(), studentOf(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// POST /v1/topics/:id/mini-lesson/consume
func (s *Server) consumeMiniLesson(c *gin.Context) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.engine.ConsumeMiniLesson(c.Request.Context(), studentOf(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/topics/:id/mastery
func (s *Server) mastery(c *gin.Context) {
	id, err := topicParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	v, err := s.engine.Mastery(c.Request.Context(), studentOf(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
