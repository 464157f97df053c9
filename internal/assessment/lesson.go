package assessment

import (
	"context"
	"fmt"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/graph"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// MiniLesson returns the remediation content for the pair's outstanding
// gap. Content is generated once and cached on the pending lesson;
// concurrent callers share one generation. If the provider cannot produce
// a lesson, a degraded one built from the gap is returned and not cached.
// Returning the lesson, degraded or not, unlocks ConsumeMiniLesson.
func (o *Orchestrator) MiniLesson(ctx context.Context, studentID string, topicID int64) (*MiniLesson, error) {
	const op = "mini lesson"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	pl, err := o.store.PendingLesson(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}
	if pl == nil || pl.Status == store.LessonResolved {
		return nil, apperr.State(apperr.CodeNoPendingLesson, op, "no lesson pending for topic %d", topicID)
	}
	lesson, err := o.lessonContent(ctx, pl)
	if err != nil {
		return nil, err
	}
	if !pl.Served {
		if err := o.store.MarkLessonServed(ctx, studentID, topicID, pl.AnswerSeq); err != nil {
			return nil, err
		}
	}
	return lessonView(pl, lesson), nil
}

// lessonContent returns the cached content of pl, generating it once.
func (o *Orchestrator) lessonContent(ctx context.Context, pl *store.PendingLesson) (store.Lesson, error) {
	if pl.Lesson != nil {
		return *pl.Lesson, nil
	}
	key := fmt.Sprintf("%s/%d/%d", pl.StudentID, pl.TopicID, pl.AnswerSeq)
	ch := o.lessons.DoChan(key, func() (any, error) {
		// Generation outlives a caller that gives up; the result is cached.
		return o.generateLesson(context.WithoutCancel(ctx), pl)
	})
	select {
	case <-ctx.Done():
		return store.Lesson{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return store.Lesson{}, res.Err
		}
		return res.Val.(store.Lesson), nil
	}
}

func lessonView(pl *store.PendingLesson, l store.Lesson) *MiniLesson {
	return &MiniLesson{TopicID: pl.TopicID, Gap: pl.Gap, Status: pl.Status, Lesson: l}
}

func (o *Orchestrator) generateLesson(ctx context.Context, pl *store.PendingLesson) (store.Lesson, error) {
	missed, err := o.answerAt(ctx, pl)
	if err != nil {
		return store.Lesson{}, err
	}
	var q *store.Question
	if missed != nil {
		if q, err = o.store.Question(ctx, missed.QuestionID); err != nil {
			return store.Lesson{}, err
		}
	}

	topic, err := o.store.Topic(ctx, pl.TopicID)
	if err != nil {
		return store.Lesson{}, err
	}
	lc := content.LessonContext{Topic: topic.Name}
	if missed != nil {
		lc.Difficulty = missed.Difficulty
		lc.StudentAnswer = missed.Answer
	}
	if q != nil {
		lc.QuestionText = q.Text
		lc.CorrectAnswer = q.Answer
	}
	rec, err := o.store.ReadMastery(ctx, pl.StudentID, pl.TopicID)
	if err != nil {
		return store.Lesson{}, err
	}
	if rec != nil && rec.Attempted > 0 {
		lc.Accuracy = float64(rec.Correct) / float64(rec.Attempted)
	}

	draft, err := o.content.GenerateMiniLesson(ctx, pl.Gap, lc)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindProvider {
			return store.Lesson{}, err
		}
		o.log.Warn("lesson generation failed; serving the gap",
			"student_id", pl.StudentID, "topic_id", pl.TopicID, "error", err)
		return content.FallbackLesson(pl.Gap, q), nil
	}

	lesson := draft.Lesson()
	if err := o.store.SaveLessonContent(ctx, pl.StudentID, pl.TopicID, pl.AnswerSeq, lesson); err != nil {
		return store.Lesson{}, err
	}
	o.log.Info("lesson generated", "student_id", pl.StudentID, "topic_id", pl.TopicID, "concept", pl.Gap.Concept)
	return lesson, nil
}

// answerAt returns the incorrect answer that created pl, or nil if the log
// no longer holds it.
func (o *Orchestrator) answerAt(ctx context.Context, pl *store.PendingLesson) (*store.AnswerEvent, error) {
	events, err := o.store.AnswersSince(ctx, pl.StudentID, pl.TopicID, pl.AnswerSeq-1)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 && events[0].Seq == pl.AnswerSeq {
		return &events[0], nil
	}
	return nil, nil
}

// ConsumeMiniLesson records that the student went through the lesson. The
// lesson must have been returned by MiniLesson first. The next question on
// the topic follows up on the same concept.
func (o *Orchestrator) ConsumeMiniLesson(ctx context.Context, studentID string, topicID int64) error {
	const op = "consume lesson"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return err
	}
	unlock, err := o.locks.Lock(ctx, pairKey(studentID, topicID))
	if err != nil {
		return err
	}
	defer unlock()

	pl, err := o.store.MarkLessonConsumed(ctx, studentID, topicID)
	if err != nil {
		return err
	}
	o.log.Info("lesson consumed", "student_id", studentID, "topic_id", topicID, "concept", pl.Gap.Concept)
	return nil
}

// Mastery returns the student's mastery of a topic. A topic never
// attempted reports the starting record without creating it.
func (o *Orchestrator) Mastery(ctx context.Context, studentID string, topicID int64) (*MasteryView, error) {
	const op = "read mastery"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.Topic(ctx, topicID); err != nil {
		return nil, err
	}
	rec, err := o.store.ReadMastery(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = mastery.NewRecord(studentID, topicID)
	}
	pl, err := o.store.PendingLesson(ctx, studentID, topicID)
	if err != nil {
		return nil, err
	}
	return masteryView(rec, pl), nil
}

// ResetTopic starts the student over on a topic at easy. Logged answers
// stay in the log but no longer count toward mastery. It is an operator
// action.
func (o *Orchestrator) ResetTopic(ctx context.Context, studentID string, topicID int64) error {
	const op = "reset topic"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return err
	}
	if _, err := o.store.Topic(ctx, topicID); err != nil {
		return err
	}
	unlock, err := o.locks.Lock(ctx, pairKey(studentID, topicID))
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.store.ResetMastery(ctx, studentID, topicID); err != nil {
		return err
	}
	o.tracker.Forget(studentID)
	o.log.Info("topic reset", "student_id", studentID, "topic_id", topicID)
	return nil
}

// AvailableTopics returns the topics the student can move on to: not yet
// mastered, with every prerequisite mastered. Topics come back in
// prerequisite order.
func (o *Orchestrator) AvailableTopics(ctx context.Context, studentID string) ([]int64, error) {
	const op = "available topics"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	g, err := graph.Load(ctx, o.store)
	if err != nil {
		return nil, err
	}
	recs, err := o.store.MasteryForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	mastered := make(map[int64]bool, len(recs))
	for _, r := range recs {
		mastered[r.TopicID] = r.Mastered
	}
	return g.Available(mastered), nil
}
