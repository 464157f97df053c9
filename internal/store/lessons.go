package store

import (
	"context"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/pendinglesson"
	"github.com/abhisek/ascend/internal/apperr"
)

// PendingLesson returns the remediation marker for the pair, or nil if the
// pair never needed one.
func (s *Store) PendingLesson(ctx context.Context, studentID string, topicID int64) (*PendingLesson, error) {
	pl, err := readPendingLesson(ctx, s.client, studentID, topicID)
	return pl, mapErr("read pending lesson", err)
}

func readPendingLesson(ctx context.Context, c *ent.Client, studentID string, topicID int64) (*PendingLesson, error) {
	row, err := c.PendingLesson.Query().
		Where(pendinglesson.StudentID(studentID), pendinglesson.TopicID(topicID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &PendingLesson{
		StudentID: row.StudentID,
		TopicID:   row.TopicID,
		Status:    LessonStatus(row.Status),
		Gap:       row.Gap,
		AnswerSeq: row.AnswerSeq,
		Lesson:    row.Lesson,
		Served:    row.Served,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// putPendingLesson replaces the pair's marker with a fresh pending one.
// Content generated for an earlier gap is dropped.
func (s *Store) putPendingLesson(ctx context.Context, c *ent.Client, pl *PendingLesson) error {
	if pl.UpdatedAt.IsZero() {
		pl.UpdatedAt = s.now()
	}
	pl.Status = LessonPending
	pl.Lesson = nil
	pl.Served = false

	if _, err := c.PendingLesson.Delete().
		Where(pendinglesson.StudentID(pl.StudentID), pendinglesson.TopicID(pl.TopicID)).
		Exec(ctx); err != nil {
		return err
	}
	return c.PendingLesson.Create().
		SetStudentID(pl.StudentID).
		SetTopicID(pl.TopicID).
		SetStatus(string(pl.Status)).
		SetGap(pl.Gap).
		SetAnswerSeq(pl.AnswerSeq).
		SetServed(false).
		SetUpdatedAt(pl.UpdatedAt.UTC()).
		Exec(ctx)
}

// SaveLessonContent caches generated content on the marker created for
// answerSeq. Content for a superseded answer is discarded.
func (s *Store) SaveLessonContent(ctx context.Context, studentID string, topicID, answerSeq int64, lesson Lesson) error {
	err := s.client.PendingLesson.Update().
		Where(
			pendinglesson.StudentID(studentID),
			pendinglesson.TopicID(topicID),
			pendinglesson.AnswerSeq(answerSeq),
		).
		SetLesson(&lesson).
		Exec(ctx)
	return mapErr("save lesson", err)
}

// MarkLessonServed records that the lesson created for answerSeq was shown
// to the student, whether generated, cached or degraded.
func (s *Store) MarkLessonServed(ctx context.Context, studentID string, topicID, answerSeq int64) error {
	err := s.client.PendingLesson.Update().
		Where(
			pendinglesson.StudentID(studentID),
			pendinglesson.TopicID(topicID),
			pendinglesson.AnswerSeq(answerSeq),
			pendinglesson.Served(false),
		).
		SetServed(true).
		SetUpdatedAt(s.stamp()).
		Exec(ctx)
	return mapErr("mark lesson served", err)
}

// MarkLessonConsumed moves the pair's pending lesson to consumed. Consuming
// an already consumed lesson is a no-op. With nothing outstanding it fails
// with no_pending_lesson, and before the lesson was served it fails with
// mini_lesson_not_served.
func (s *Store) MarkLessonConsumed(ctx context.Context, studentID string, topicID int64) (*PendingLesson, error) {
	const op = "consume lesson"
	var pl *PendingLesson
	err := s.inTx(ctx, op, func(tx *ent.Tx) error {
		var err error
		pl, err = readPendingLesson(ctx, tx.Client(), studentID, topicID)
		if err != nil {
			return err
		}
		switch {
		case pl == nil || pl.Status == LessonResolved:
			return apperr.State(apperr.CodeNoPendingLesson, op, "no lesson pending for topic %d", topicID)
		case pl.Status == LessonConsumed:
			return nil
		case !pl.Served:
			return apperr.State(apperr.CodeMiniLessonNotServed, op, "the lesson on %q has not been viewed", pl.Gap.Concept)
		}

		pl.Status = LessonConsumed
		pl.UpdatedAt = s.stamp()
		return tx.PendingLesson.Update().
			Where(
				pendinglesson.StudentID(studentID),
				pendinglesson.TopicID(topicID),
				pendinglesson.Status(string(LessonPending)),
			).
			SetStatus(string(pl.Status)).
			SetUpdatedAt(pl.UpdatedAt).
			Exec(ctx)
	})
	if err != nil {
		return nil, err
	}
	return pl, nil
}
