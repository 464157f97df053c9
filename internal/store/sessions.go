package store

import (
	"context"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/answerevent"
	"github.com/abhisek/ascend/ent/predicate"
	"github.com/abhisek/ascend/ent/servedquestion"
	"github.com/abhisek/ascend/ent/studysession"
	"github.com/abhisek/ascend/internal/apperr"
)

// StartSession opens a new session for the student. A student holds at
// most one open session; a second start fails with ErrSessionAlreadyOpen.
func (s *Store) StartSession(ctx context.Context, studentID string) (*Session, error) {
	const op = "start session"
	if studentID == "" {
		return nil, apperr.Validation(op, "student id is required")
	}
	sess := &Session{
		ID:        uuid.NewString(),
		StudentID: studentID,
		StartedAt: s.stamp(),
	}
	err := s.client.StudySession.Create().
		SetID(sess.ID).
		SetStudentID(sess.StudentID).
		SetStartedAt(sess.StartedAt).
		Exec(ctx)
	if isConstraint(err) {
		return nil, mapErr(op, ErrSessionAlreadyOpen)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sess, nil
}

// EndSession closes the session. Ending an ended session is a no-op that
// returns it unchanged.
func (s *Store) EndSession(ctx context.Context, studentID, sessionID string) (*Session, error) {
	const op = "end session"
	err := s.client.StudySession.Update().
		Where(
			studysession.ID(sessionID),
			studysession.StudentID(studentID),
			studysession.EndedAtIsNil(),
		).
		SetEndedAt(s.stamp()).
		Exec(ctx)
	if err != nil {
		return nil, mapErr(op, err)
	}
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, apperr.NotFound(op, "session %s not found", sessionID)
	}
	return sess, nil
}

// Session returns a session with the topics touched in it.
func (s *Store) Session(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.sessionWhere(ctx, studysession.ID(sessionID))
	if err != nil {
		return nil, mapErr("read session", err)
	}
	if sess == nil {
		return nil, apperr.NotFound("read session", "session %s not found", sessionID)
	}
	return sess, nil
}

// OpenSession returns the student's open session, or nil if none is open.
func (s *Store) OpenSession(ctx context.Context, studentID string) (*Session, error) {
	sess, err := s.sessionWhere(ctx, studysession.StudentID(studentID), studysession.EndedAtIsNil())
	return sess, mapErr("open session", err)
}

// LatestSession returns the student's most recently started session, open
// or not, or nil if the student never studied.
func (s *Store) LatestSession(ctx context.Context, studentID string) (*Session, error) {
	sess, err := s.sessionWhere(ctx, studysession.StudentID(studentID))
	return sess, mapErr("latest session", err)
}

// byInsertion breaks start-time ties in favour of the later row.
func byInsertion(sel *entsql.Selector) {
	sel.OrderBy(entsql.Desc(sel.C("rowid")))
}

func (s *Store) sessionWhere(ctx context.Context, preds ...predicate.StudySession) (*Session, error) {
	row, err := s.client.StudySession.Query().
		Where(preds...).
		Order(ent.Desc(studysession.FieldStartedAt), byInsertion).
		First(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        row.ID,
		StudentID: row.StudentID,
		StartedAt: row.StartedAt.UTC(),
	}
	if row.EndedAt != nil {
		t := row.EndedAt.UTC()
		sess.EndedAt = &t
	}

	served, err := s.client.ServedQuestion.Query().
		Where(servedquestion.SessionID(sess.ID)).
		Unique(true).
		Select(servedquestion.FieldTopicID).
		Ints(ctx)
	if err != nil {
		return nil, err
	}
	answered, err := s.client.AnswerEvent.Query().
		Where(answerevent.SessionID(sess.ID)).
		Unique(true).
		Select(answerevent.FieldTopicID).
		Ints(ctx)
	if err != nil {
		return nil, err
	}
	topics := make([]int64, 0, len(served)+len(answered))
	for _, id := range append(served, answered...) {
		topics = append(topics, int64(id))
	}
	slices.Sort(topics)
	sess.Topics = slices.Compact(topics)
	return sess, nil
}
