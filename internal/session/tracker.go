// Package session tracks study sessions and where each student left off.
// The durable truth is the answer log and the mastery records; the tracker
// keeps a live copy per student for the current process.
package session

import (
	"context"
	"sync"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// Store is the persistence the tracker needs.
type Store interface {
	StartSession(ctx context.Context, studentID string) (*store.Session, error)
	EndSession(ctx context.Context, studentID, sessionID string) (*store.Session, error)
	OpenSession(ctx context.Context, studentID string) (*store.Session, error)
	LatestSession(ctx context.Context, studentID string) (*store.Session, error)
	AppendAnswer(ctx context.Context, ev store.AnswerEvent) (*store.AnswerEvent, bool, error)
	RecentAnswers(ctx context.Context, studentID string, topicID int64, beforeSeq int64, n int) ([]store.AnswerEvent, error)
	SessionAnswers(ctx context.Context, sessionID string) ([]store.AnswerEvent, error)
	LatestAnswer(ctx context.Context, studentID string) (*store.AnswerEvent, error)
	ReadMastery(ctx context.Context, studentID string, topicID int64) (*mastery.Record, error)
}

// Tracker opens and closes sessions and records answers.
type Tracker struct {
	store  Store
	log    *logger.Logger
	recent int

	mu   sync.Mutex
	live map[string]*State
}

// NewTracker returns a Tracker keeping recent answered question ids per
// state; recent <= 0 uses DefaultRecentQuestions.
func NewTracker(s Store, recent int, log *logger.Logger) *Tracker {
	if recent <= 0 {
		recent = DefaultRecentQuestions
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		store:  s,
		log:    log.With("component", "session"),
		recent: recent,
		live:   make(map[string]*State),
	}
}

// StartSession opens a session and returns its id. A student has at most
// one open session; starting another fails with session_already_open.
func (t *Tracker) StartSession(ctx context.Context, studentID string) (string, error) {
	studentID, err := identity.Require("start session", studentID)
	if err != nil {
		return "", err
	}
	sess, err := t.store.StartSession(ctx, studentID)
	if err != nil {
		return "", err
	}

	st, err := t.restore(ctx, studentID, sess)
	if err != nil {
		// The session exists; the live view is rebuilt on demand.
		t.log.Warn("seed live state", "student_id", studentID, "error", err)
		t.forget(studentID)
	} else {
		t.mu.Lock()
		t.live[studentID] = st
		t.mu.Unlock()
	}

	t.log.Info("session started", "student_id", studentID, "session_id", sess.ID)
	return sess.ID, nil
}

// EndSession closes the session and summarizes it. Ending a session that
// already ended returns the same summary.
func (t *Tracker) EndSession(ctx context.Context, studentID, sessionID string) (*Summary, error) {
	studentID, err := identity.Require("end session", studentID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, apperr.Validation("end session", "session id is required")
	}
	sess, err := t.store.EndSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := t.store.SessionAnswers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if st, ok := t.live[studentID]; ok && st.SessionID == sess.ID {
		st.Open = false
	}
	t.mu.Unlock()

	t.log.Info("session ended", "student_id", studentID, "session_id", sess.ID, "answers", len(answers))
	return BuildSummary(sess, answers), nil
}

// OpenSession returns the student's open session, or a no_open_session
// error.
func (t *Tracker) OpenSession(ctx context.Context, studentID string) (*store.Session, error) {
	const op = "open session"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	sess, err := t.store.OpenSession(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.State(apperr.CodeNoOpenSession, op, "no open session")
	}
	return sess, nil
}

// RecordAnswer appends ev to the answer log. Recording the same serving
// twice returns the event already stored.
func (t *Tracker) RecordAnswer(ctx context.Context, ev store.AnswerEvent) (*store.AnswerEvent, error) {
	stored, created, err := t.store.AppendAnswer(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !created {
		t.log.Debug("answer already recorded", "student_id", ev.StudentID, "seq", stored.Seq)
	}
	return stored, nil
}

// RecentResults returns the correctness of the last n answers for the
// pair, most-recent-last.
func (t *Tracker) RecentResults(ctx context.Context, studentID string, topicID int64, n int) ([]bool, error) {
	studentID, err := identity.Require("recent results", studentID)
	if err != nil {
		return nil, err
	}
	events, err := t.store.RecentAnswers(ctx, studentID, topicID, 0, n)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(events))
	for i, e := range events {
		out[i] = e.Correct
	}
	return out, nil
}

// Observe updates the live state after ev and its mastery record were
// committed.
func (t *Tracker) Observe(ev *store.AnswerEvent, rec *mastery.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.live[ev.StudentID]
	if !ok || st.SessionID != ev.SessionID {
		return
	}
	st.observe(ev, rec, t.recent)
}

// Live returns a copy of the in-memory state of the student, if this
// process has seen the student's current session start.
func (t *Tracker) Live(studentID string) (*State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.live[studentID]
	if !ok {
		return nil, false
	}
	return st.clone(), true
}

// Forget drops the live state of a student, for example after an operator
// reset rewrote their history.
func (t *Tracker) Forget(studentID string) {
	t.forget(studentID)
}

func (t *Tracker) forget(studentID string) {
	t.mu.Lock()
	delete(t.live, studentID)
	t.mu.Unlock()
}

// RestoreSessionState rebuilds where the student left off from the answer
// log and mastery records alone.
func (t *Tracker) RestoreSessionState(ctx context.Context, studentID string) (*State, error) {
	studentID, err := identity.Require("restore session", studentID)
	if err != nil {
		return nil, err
	}
	sess, err := t.store.LatestSession(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return t.restore(ctx, studentID, sess)
}

func (t *Tracker) restore(ctx context.Context, studentID string, sess *store.Session) (*State, error) {
	st := newState(sess)

	var last *store.AnswerEvent
	if sess != nil {
		answers, err := t.store.SessionAnswers(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		for i := range answers {
			st.remember(answers[i].Seq, answers[i].QuestionID, t.recent)
		}
		if n := len(answers); n > 0 {
			last = &answers[n-1]
		}
	}
	if last == nil {
		ev, err := t.store.LatestAnswer(ctx, studentID)
		if err != nil {
			return nil, err
		}
		last = ev
	}
	if last == nil {
		return st, nil
	}

	rec, err := t.store.ReadMastery(ctx, studentID, last.TopicID)
	if err != nil {
		return nil, err
	}
	st.lastSeq = last.Seq
	st.CurrentTopic = last.TopicID
	if rec != nil {
		st.CurrentDifficulty = rec.Difficulty
		st.Mastered = rec.Mastered
	}
	return st, nil
}
