package store

import (
	"context"
	"fmt"
	"slices"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/pendinglesson"
	"github.com/abhisek/ascend/ent/predicate"
	"github.com/abhisek/ascend/ent/question"
	"github.com/abhisek/ascend/ent/servedquestion"
	"github.com/abhisek/ascend/ent/studysession"
	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/mastery"
)

func toQuestion(row *ent.Question) (*Question, error) {
	tier, err := mastery.ParseTier(row.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", row.ID, err)
	}
	choices := row.Choices
	if choices == nil {
		choices = []string{}
	}
	return &Question{
		ID:          row.ID,
		TopicID:     row.TopicID,
		Difficulty:  tier,
		Format:      Format(row.Format),
		Text:        row.Text,
		Answer:      row.Answer,
		Choices:     choices,
		Explanation: row.Explanation,
		Concept:     row.Concept,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

// SaveQuestion adds q to the bank. Question ids are derived from content,
// so saving the same question twice keeps the first copy.
func (s *Store) SaveQuestion(ctx context.Context, q Question) error {
	const op = "save question"
	if q.ID == "" || q.Text == "" {
		return apperr.Validation(op, "question needs id and text")
	}
	if !q.Format.Valid() {
		return apperr.Validation(op, "unknown format %q", q.Format)
	}
	if !q.Difficulty.IsDifficulty() {
		return apperr.Validation(op, "question difficulty %s", q.Difficulty)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	choices := q.Choices
	if choices == nil {
		choices = []string{}
	}

	err := s.client.Question.Create().
		SetID(q.ID).
		SetTopicID(q.TopicID).
		SetDifficulty(q.Difficulty.String()).
		SetFormat(string(q.Format)).
		SetText(q.Text).
		SetAnswer(q.Answer).
		SetChoices(choices).
		SetExplanation(q.Explanation).
		SetConcept(q.Concept).
		SetCreatedAt(q.CreatedAt.UTC()).
		Exec(ctx)
	if isConstraint(err) {
		return nil
	}
	return mapErr(op, err)
}

// Question returns a bank question by id.
func (s *Store) Question(ctx context.Context, id string) (*Question, error) {
	row, err := s.client.Question.Get(ctx, id)
	if ent.IsNotFound(err) {
		return nil, apperr.NotFound("read question", "question %s not found", id)
	}
	if err != nil {
		return nil, mapErr("read question", err)
	}
	q, err := toQuestion(row)
	return q, mapErr("read question", err)
}

// ServeQuestion records that sq was returned to the student. The session
// must be open and belong to the student. With resolveLesson set, a
// consumed pending lesson for the pair is marked resolved in the same
// transaction. A question already served in the session fails with
// ErrAlreadyServed.
func (s *Store) ServeQuestion(ctx context.Context, sq *ServedQuestion, resolveLesson bool) error {
	const op = "serve question"
	if sq.ServedAt.IsZero() {
		sq.ServedAt = s.now()
	}
	sq.ServedAt = sq.ServedAt.UTC()
	return s.inTx(ctx, op, func(tx *ent.Tx) error {
		open, err := tx.StudySession.Query().
			Where(
				studysession.ID(sq.SessionID),
				studysession.StudentID(sq.StudentID),
				studysession.EndedAtIsNil(),
			).
			Exist(ctx)
		if err != nil {
			return err
		}
		if !open {
			return apperr.State(apperr.CodeSessionEnded, op, "session %s is not open", sq.SessionID)
		}

		row, err := tx.ServedQuestion.Create().
			SetSessionID(sq.SessionID).
			SetQuestionID(sq.QuestionID).
			SetStudentID(sq.StudentID).
			SetTopicID(sq.TopicID).
			SetFormat(string(sq.Format)).
			SetFollowUp(sq.FollowUp).
			SetServedAt(sq.ServedAt).
			Save(ctx)
		if isConstraint(err) {
			return ErrAlreadyServed
		}
		if err != nil {
			return err
		}
		sq.Seq = row.ID

		if !resolveLesson {
			return nil
		}
		return tx.PendingLesson.Update().
			Where(
				pendinglesson.StudentID(sq.StudentID),
				pendinglesson.TopicID(sq.TopicID),
				pendinglesson.Status(string(LessonConsumed)),
			).
			SetStatus(string(LessonResolved)).
			SetUpdatedAt(sq.ServedAt).
			Exec(ctx)
	})
}

// ServedIn returns the serving of questionID in the session, or nil.
func (s *Store) ServedIn(ctx context.Context, sessionID, questionID string) (*ServedQuestion, error) {
	row, err := s.client.ServedQuestion.Query().
		Where(
			servedquestion.SessionID(sessionID),
			servedquestion.QuestionID(questionID),
		).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("read served question", err)
	}
	return &ServedQuestion{
		Seq:        row.ID,
		SessionID:  row.SessionID,
		QuestionID: row.QuestionID,
		StudentID:  row.StudentID,
		TopicID:    row.TopicID,
		Format:     Format(row.Format),
		FollowUp:   row.FollowUp,
		ServedAt:   row.ServedAt.UTC(),
	}, nil
}

// RecentFormats returns the formats of the last n questions served for
// the pair across sessions, most-recent-last.
func (s *Store) RecentFormats(ctx context.Context, studentID string, topicID int64, n int) ([]Format, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.client.ServedQuestion.Query().
		Where(servedquestion.StudentID(studentID), servedquestion.TopicID(topicID)).
		Order(ent.Desc(servedquestion.FieldID)).
		Limit(n).
		All(ctx)
	if err != nil {
		return nil, mapErr("recent formats", err)
	}
	out := make([]Format, len(rows))
	for i, row := range rows {
		out[i] = Format(row.Format)
	}
	slices.Reverse(out)
	return out, nil
}

// SessionQuestionIDs returns the ids of questions served in the session,
// oldest first.
func (s *Store) SessionQuestionIDs(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.client.ServedQuestion.Query().
		Where(servedquestion.SessionID(sessionID)).
		Order(ent.Asc(servedquestion.FieldID)).
		Select(servedquestion.FieldQuestionID).
		Strings(ctx)
	return ids, mapErr("session questions", err)
}

// notServedIn keeps bank questions the session has not seen.
func notServedIn(sessionID string) predicate.Question {
	return func(sel *entsql.Selector) {
		served := entsql.Select(servedquestion.FieldQuestionID).
			From(entsql.Table(servedquestion.Table)).
			Where(entsql.EQ(servedquestion.FieldSessionID, sessionID))
		sel.Where(entsql.NotIn(sel.C(question.FieldID), served))
	}
}

// CachedQuestions returns bank questions for the topic at the difficulty
// that were not served in the session, oldest first. Formats in exclude
// are skipped.
func (s *Store) CachedQuestions(ctx context.Context, topicID int64, d mastery.Tier, sessionID string, exclude ...Format) ([]Question, error) {
	const op = "cached questions"
	preds := []predicate.Question{
		question.TopicID(topicID),
		question.Difficulty(d.String()),
		notServedIn(sessionID),
	}
	if len(exclude) > 0 {
		fs := make([]string, len(exclude))
		for i, f := range exclude {
			fs[i] = string(f)
		}
		preds = append(preds, question.FormatNotIn(fs...))
	}
	rows, err := s.client.Question.Query().
		Where(preds...).
		Order(ent.Asc(question.FieldCreatedAt), ent.Asc(question.FieldID)).
		All(ctx)
	if err != nil {
		return nil, mapErr(op, err)
	}
	out := make([]Question, 0, len(rows))
	for _, row := range rows {
		q, err := toQuestion(row)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, *q)
	}
	return out, nil
}
