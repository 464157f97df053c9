package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/answerevent"
	"github.com/abhisek/ascend/ent/predicate"
	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/mastery"
)

// MasteryAnswer returns the part of the event the mastery fold consumes.
func (e *AnswerEvent) MasteryAnswer() mastery.Answer {
	return mastery.Answer{Seq: e.Seq, Correct: e.Correct, Timestamp: e.Timestamp}
}

func toAnswer(row *ent.AnswerEvent) (*AnswerEvent, error) {
	tier, err := mastery.ParseTier(row.DifficultyAtTime)
	if err != nil {
		return nil, fmt.Errorf("answer %d: %w", row.ID, err)
	}
	return &AnswerEvent{
		Seq:         row.ID,
		StudentID:   row.StudentID,
		QuestionID:  row.QuestionID,
		TopicID:     row.TopicID,
		SessionID:   row.SessionID,
		Difficulty:  tier,
		Correct:     row.IsCorrect,
		Answer:      row.Answer,
		Explanation: row.Explanation,
		Gap:         row.Gap,
		Timestamp:   row.Timestamp.UTC(),
	}, nil
}

func answerPair(studentID string, topicID int64) predicate.AnswerEvent {
	return answerevent.And(answerevent.StudentID(studentID), answerevent.TopicID(topicID))
}

func answerServing(studentID, sessionID, questionID string) predicate.AnswerEvent {
	return answerevent.And(
		answerevent.StudentID(studentID),
		answerevent.SessionID(sessionID),
		answerevent.QuestionID(questionID),
	)
}

// AppendAnswer adds ev to the log and returns the stored event. An answer
// to the same question in the same session is recorded once: a repeat
// returns the event already stored and created is false.
func (s *Store) AppendAnswer(ctx context.Context, ev AnswerEvent) (stored *AnswerEvent, created bool, err error) {
	const op = "append answer"
	if ev.StudentID == "" || ev.SessionID == "" || ev.QuestionID == "" {
		return nil, false, apperr.Validation(op, "answer needs student, session and question")
	}
	if !ev.Difficulty.IsDifficulty() {
		return nil, false, apperr.Validation(op, "answer difficulty %s", ev.Difficulty)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	err = s.inTx(ctx, op, func(tx *ent.Tx) error {
		row, err := tx.AnswerEvent.Query().
			Where(answerServing(ev.StudentID, ev.SessionID, ev.QuestionID)).
			Only(ctx)
		if err == nil {
			stored, err = toAnswer(row)
			return err
		}
		if !ent.IsNotFound(err) {
			return err
		}

		create := tx.AnswerEvent.Create().
			SetStudentID(ev.StudentID).
			SetQuestionID(ev.QuestionID).
			SetTopicID(ev.TopicID).
			SetSessionID(ev.SessionID).
			SetDifficultyAtTime(ev.Difficulty.String()).
			SetIsCorrect(ev.Correct).
			SetAnswer(ev.Answer).
			SetExplanation(ev.Explanation).
			SetTimestamp(ev.Timestamp.UTC())
		if ev.Gap != nil {
			create.SetGap(ev.Gap)
		}
		if row, err = create.Save(ctx); err != nil {
			return err
		}
		created = true
		stored, err = toAnswer(row)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// AnswerFor returns the answer a student gave to a question in a session,
// or nil if there is none.
func (s *Store) AnswerFor(ctx context.Context, studentID, sessionID, questionID string) (*AnswerEvent, error) {
	row, err := s.client.AnswerEvent.Query().
		Where(answerServing(studentID, sessionID, questionID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("read answer", err)
	}
	ev, err := toAnswer(row)
	return ev, mapErr("read answer", err)
}

// RecentAnswers returns up to n answers for the pair with seq below
// beforeSeq (zero means no bound), most-recent-last.
func (s *Store) RecentAnswers(ctx context.Context, studentID string, topicID int64, beforeSeq int64, n int) ([]AnswerEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	preds := []predicate.AnswerEvent{answerPair(studentID, topicID)}
	if beforeSeq > 0 {
		preds = append(preds, answerevent.IDLT(beforeSeq))
	}
	rows, err := s.client.AnswerEvent.Query().
		Where(preds...).
		Order(ent.Desc(answerevent.FieldID)).
		Limit(n).
		All(ctx)
	if err != nil {
		return nil, mapErr("recent answers", err)
	}
	out, err := toAnswers(rows)
	if err != nil {
		return nil, mapErr("recent answers", err)
	}
	slices.Reverse(out)
	return out, nil
}

// AnswersSince returns the answers for the pair with seq above afterSeq,
// oldest first.
func (s *Store) AnswersSince(ctx context.Context, studentID string, topicID int64, afterSeq int64) ([]AnswerEvent, error) {
	out, err := answersWhere(ctx, s.client, answerPair(studentID, topicID), answerevent.IDGT(afterSeq))
	return out, mapErr("answers since", err)
}

// SessionAnswers returns the answers logged in a session, oldest first.
func (s *Store) SessionAnswers(ctx context.Context, sessionID string) ([]AnswerEvent, error) {
	out, err := answersWhere(ctx, s.client, answerevent.SessionID(sessionID))
	return out, mapErr("session answers", err)
}

// LatestAnswer returns the student's most recent answer on any topic, or
// nil if the student never answered.
func (s *Store) LatestAnswer(ctx context.Context, studentID string) (*AnswerEvent, error) {
	row, err := s.client.AnswerEvent.Query().
		Where(answerevent.StudentID(studentID)).
		Order(ent.Desc(answerevent.FieldID)).
		First(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("latest answer", err)
	}
	ev, err := toAnswer(row)
	return ev, mapErr("latest answer", err)
}

func answersWhere(ctx context.Context, c *ent.Client, preds ...predicate.AnswerEvent) ([]AnswerEvent, error) {
	rows, err := c.AnswerEvent.Query().
		Where(preds...).
		Order(ent.Asc(answerevent.FieldID)).
		All(ctx)
	if err != nil {
		return nil, err
	}
	return toAnswers(rows)
}

func toAnswers(rows []*ent.AnswerEvent) ([]AnswerEvent, error) {
	out := make([]AnswerEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toAnswer(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, nil
}
