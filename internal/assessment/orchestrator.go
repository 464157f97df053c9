// Package assessment runs the question and answer loop: it picks what to
// ask, judges answers, folds them into mastery and gates progress behind
// remediation.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/keylock"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/session"
	"github.com/abhisek/ascend/internal/store"
)

// errDuplicates means every generated question was already served in the
// session.
var errDuplicates = errors.New("provider kept returning questions already served")

// Orchestrator coordinates the store, the content provider and the
// session tracker. Work on one (student, topic) pair is serialized by a
// key lock; different pairs run in parallel.
type Orchestrator struct {
	store   *store.Store
	content content.Provider
	tracker *session.Tracker
	locks   keylock.Locker
	cfg     Config
	log     *logger.Logger

	lessons singleflight.Group
}

// New builds an Orchestrator. A nil tracker or locker gets a default one
// over s.
func New(s *store.Store, p content.Provider, tr *session.Tracker, locks keylock.Locker, cfg Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if tr == nil {
		tr = session.NewTracker(s, cfg.RecentQuestions, log)
	}
	if locks == nil {
		locks = keylock.NewLocal()
	}
	return &Orchestrator{
		store:   s,
		content: p,
		tracker: tr,
		locks:   locks,
		cfg:     cfg,
		log:     log.With("component", "assessment"),
	}
}

// Tracker returns the session tracker the orchestrator records into.
func (o *Orchestrator) Tracker() *session.Tracker { return o.tracker }

func pairKey(studentID string, topicID int64) string {
	return fmt.Sprintf("%s/%d", studentID, topicID)
}

// RequestQuestion serves the next question on the topic for the student's
// open session.
func (o *Orchestrator) RequestQuestion(ctx context.Context, studentID string, topicID int64) (*Question, error) {
	const op = "request question"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	sess, err := o.tracker.OpenSession(ctx, studentID)
	if err != nil {
		return nil, err
	}
	topic, err := o.store.Topic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	unlock, err := o.locks.Lock(ctx, pairKey(studentID, topicID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := o.store.EnsureMastery(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}
	if rec.Mastered {
		return nil, apperr.State(apperr.CodeTopicMastered, op, "topic %q is mastered", topic.Name)
	}

	pl, err := o.store.PendingLesson(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}
	if pl.Blocking() {
		return nil, apperr.State(apperr.CodeMiniLessonPending, op, "a mini-lesson on %q must be consumed first", pl.Gap.Concept)
	}
	followUp := pl != nil && pl.Status == store.LessonConsumed

	req := content.QuestionRequest{
		TopicID:    topicID,
		Topic:      topic.Name,
		Difficulty: rec.Difficulty,
	}
	if followUp {
		gap := pl.Gap
		req.Gap = &gap
	}
	var overused store.Format
	req.Formats, overused, err = o.allowedFormats(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}

	servedIDs, err := o.store.SessionQuestionIDs(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	served := make(map[string]bool, len(servedIDs))
	for _, id := range servedIDs {
		served[id] = true
	}
	req.PriorQuestions, err = o.priorTexts(ctx, servedIDs, topicID)
	if err != nil {
		return nil, err
	}

	q, genErr := o.generate(ctx, req, served)
	cached := false
	if genErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(genErr, errDuplicates) && apperr.KindOf(genErr) != apperr.KindProvider {
			return nil, genErr
		}
		o.log.Warn("question generation failed; trying the bank",
			"student_id", studentID, "topic_id", topicID, "error", genErr)

		var exclude []store.Format
		if overused != "" {
			exclude = append(exclude, overused)
		}
		q, err = o.fromBank(ctx, topicID, rec.Difficulty, sess.ID, req.Gap, exclude)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, apperr.Provider(apperr.CodeContentUnavailable, op, genErr)
		}
		cached = true
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cached {
		if err := o.store.SaveQuestion(ctx, *q); err != nil {
			return nil, err
		}
		// The bank keeps the first copy of a question id.
		if q, err = o.store.Question(ctx, q.ID); err != nil {
			return nil, err
		}
	}

	sq := &store.ServedQuestion{
		SessionID:  sess.ID,
		QuestionID: q.ID,
		StudentID:  studentID,
		TopicID:    topicID,
		Format:     q.Format,
		FollowUp:   followUp,
	}
	if err := o.store.ServeQuestion(ctx, sq, followUp); err != nil {
		return nil, err
	}

	o.log.Info("question served",
		"student_id", studentID, "session_id", sess.ID, "topic_id", topicID,
		"question_id", q.ID, "difficulty", q.Difficulty, "format", q.Format,
		"follow_up", followUp, "cached", cached)
	return viewOf(q, sess.ID, followUp, cached), nil
}

// allowedFormats returns the formats the next question may use. When the
// last FormatWindow-1 questions for the pair all share a format, that
// format is excluded and returned as overused.
func (o *Orchestrator) allowedFormats(ctx context.Context, studentID string, topicID int64) ([]store.Format, store.Format, error) {
	n := o.cfg.FormatWindow - 1
	recent, err := o.store.RecentFormats(ctx, studentID, topicID, n)
	if err != nil {
		return nil, "", err
	}
	if n <= 0 || len(recent) < n {
		return nil, "", nil
	}
	for _, f := range recent[1:] {
		if f != recent[0] {
			return nil, "", nil
		}
	}

	var allowed []store.Format
	for _, f := range store.Formats() {
		if f != recent[0] {
			allowed = append(allowed, f)
		}
	}
	return allowed, recent[0], nil
}

// priorTexts returns the text of the last questions on the topic served in
// the session, oldest first.
func (o *Orchestrator) priorTexts(ctx context.Context, servedIDs []string, topicID int64) ([]string, error) {
	var texts []string
	for i := len(servedIDs) - 1; i >= 0 && len(texts) < o.cfg.PriorQuestions; i-- {
		q, err := o.store.Question(ctx, servedIDs[i])
		if err != nil {
			return nil, err
		}
		if q.TopicID == topicID {
			texts = append(texts, q.Text)
		}
	}
	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts, nil
}

// generate asks the provider for a question not yet served in the session.
func (o *Orchestrator) generate(ctx context.Context, req content.QuestionRequest, served map[string]bool) (*store.Question, error) {
	for attempt := 0; attempt <= o.cfg.MaxDuplicateRetries; attempt++ {
		draft, err := o.content.GenerateQuestion(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := content.CheckDraft(draft, req); err != nil {
			return nil, apperr.Provider(apperr.CodeInvalidResponse, "generate question", err)
		}
		if req.Gap != nil {
			// A follow-up is filed under the gap it remediates.
			draft.Concept = req.Gap.Concept
		}

		q := content.NewQuestion(req.TopicID, req.Difficulty, draft)
		fits, err := o.fitsGap(ctx, &q, req.Gap)
		if err != nil {
			return nil, err
		}
		if !served[q.ID] && fits {
			return &q, nil
		}
		o.log.Debug("duplicate question generated", "topic_id", req.TopicID, "question_id", q.ID, "attempt", attempt+1)
		req.PriorQuestions = append(req.PriorQuestions, q.Text)
	}
	return nil, errDuplicates
}

// fitsGap reports whether q can follow up on gap. The bank keeps the first
// copy of a question id, so a copy banked under another concept cannot.
func (o *Orchestrator) fitsGap(ctx context.Context, q *store.Question, gap *store.KnowledgeGap) (bool, error) {
	if gap == nil {
		return true, nil
	}
	banked, err := o.store.Question(ctx, q.ID)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return sameConcept(banked.Concept, gap.Concept), nil
}

func sameConcept(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// fromBank picks a stored question for the pair that the session has not
// seen. A follow-up only takes a question on the gap's concept; with none
// banked it returns nil.
func (o *Orchestrator) fromBank(ctx context.Context, topicID int64, d mastery.Tier, sessionID string, gap *store.KnowledgeGap, exclude []store.Format) (*store.Question, error) {
	qs, err := o.store.CachedQuestions(ctx, topicID, d, sessionID, exclude...)
	if err != nil || len(qs) == 0 {
		return nil, err
	}
	if gap == nil {
		return &qs[0], nil
	}
	for i := range qs {
		if sameConcept(qs[i].Concept, gap.Concept) {
			return &qs[i], nil
		}
	}
	return nil, nil
}
