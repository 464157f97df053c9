package assessment

import (
	"context"
	"errors"
	"strings"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// SubmitAnswer judges the student's answer to a question served in their
// open session, records it and folds it into the pair's mastery before
// returning. Submitting again for the same serving returns the outcome of
// the first submission.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, studentID, questionID, rawAnswer string) (*EvaluationResult, error) {
	const op = "submit answer"
	studentID, err := identity.Require(op, studentID)
	if err != nil {
		return nil, err
	}
	questionID = strings.TrimSpace(questionID)
	answer := strings.TrimSpace(rawAnswer)
	switch {
	case questionID == "":
		return nil, apperr.Validation(op, "question id is required")
	case answer == "":
		return nil, apperr.Validation(op, "answer is empty")
	case len(rawAnswer) > o.cfg.MaxAnswerLen:
		return nil, apperr.Validation(op, "answer longer than %d bytes", o.cfg.MaxAnswerLen)
	}

	sess, err := o.tracker.OpenSession(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sq, err := o.store.ServedIn(ctx, sess.ID, questionID)
	if err != nil {
		return nil, err
	}
	if sq == nil || sq.StudentID != studentID {
		return nil, apperr.NotFound(op, "question %s was not served in this session", questionID)
	}
	q, err := o.store.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}

	unlock, err := o.locks.Lock(ctx, pairKey(studentID, sq.TopicID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	ev, err := o.store.AnswerFor(ctx, studentID, sess.ID, questionID)
	if err != nil {
		return nil, err
	}
	duplicate := ev != nil
	degraded := false

	if !duplicate {
		rec, err := o.store.EnsureMastery(ctx, studentID, sq.TopicID)
		if err != nil {
			return nil, err
		}
		if rec.Mastered {
			return nil, apperr.State(apperr.CodeTopicMastered, op, "topic %d is mastered", sq.TopicID)
		}

		var v verdict
		v, err = o.evaluate(ctx, q, answer)
		if err != nil {
			return nil, err
		}
		degraded = v.degraded

		draft := store.AnswerEvent{
			StudentID:   studentID,
			QuestionID:  questionID,
			TopicID:     sq.TopicID,
			SessionID:   sess.ID,
			Difficulty:  rec.Difficulty,
			Correct:     v.correct,
			Answer:      answer,
			Explanation: v.explanation,
		}
		if !v.correct {
			gap, err := o.buildGap(ctx, q, v)
			if err != nil {
				return nil, err
			}
			draft.Gap = &gap
		}
		if ev, err = o.tracker.RecordAnswer(ctx, draft); err != nil {
			return nil, err
		}
	}

	rec, step, err := o.commit(ctx, ev)
	if err != nil {
		return nil, err
	}
	o.tracker.Observe(ev, rec)

	res := &EvaluationResult{
		QuestionID:         questionID,
		Correct:            ev.Correct,
		CorrectAnswer:      q.Answer,
		Explanation:        ev.Explanation,
		Gap:                ev.Gap,
		Mastery:            rec.Level,
		Difficulty:         rec.Difficulty,
		PreviousDifficulty: ev.Difficulty,
		Mastered:           rec.Mastered,
		Streak:             rec.Streak,
		Degraded:           degraded,
		Duplicate:          duplicate,
	}
	if step != nil {
		res.NextAction = actionFor(step.Outcome)
	} else {
		res.NextAction = deriveAction(ev, rec)
	}

	o.log.Info("answer evaluated",
		"student_id", studentID, "session_id", sess.ID, "topic_id", sq.TopicID,
		"question_id", questionID, "correct", ev.Correct, "mastery", rec.Level,
		"difficulty", rec.Difficulty, "next", res.NextAction, "duplicate", duplicate)
	return res, nil
}

// deriveAction reconstructs the next action of an answer folded earlier.
func deriveAction(ev *store.AnswerEvent, rec *mastery.Record) NextAction {
	switch {
	case !ev.Correct:
		return ActionRemediate
	case rec.Mastered:
		return ActionMastered
	case rec.Difficulty > ev.Difficulty:
		return ActionAdvance
	default:
		return ActionContinue
	}
}

type verdict struct {
	correct     bool
	explanation string
	concept     string
	degraded    bool
}

// evaluate judges answer locally and asks the provider only for free text
// the local check cannot decide. When the provider is unavailable the
// local strict match stands.
func (o *Orchestrator) evaluate(ctx context.Context, q *store.Question, answer string) (verdict, error) {
	v := verdict{explanation: q.Explanation}
	switch content.CheckAnswer(q, answer) {
	case content.Correct:
		v.correct = true
		return v, nil
	case content.Incorrect:
		return v, nil
	}

	judged, err := o.content.EvaluateFreeText(ctx, q, answer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		if apperr.KindOf(err) != apperr.KindProvider {
			return v, err
		}
		o.log.Warn("free-text evaluation unavailable; using exact match",
			"question_id", q.ID, "error", err)
		v.degraded = true
		return v, nil
	}

	v.correct = judged.Correct
	v.concept = judged.Concept
	if judged.Explanation != "" {
		v.explanation = judged.Explanation
	}
	return v, nil
}

// buildGap names what an incorrect answer missed, with the topic's
// prerequisites and related topics as context.
func (o *Orchestrator) buildGap(ctx context.Context, q *store.Question, v verdict) (store.KnowledgeGap, error) {
	topic, err := o.store.Topic(ctx, q.TopicID)
	if err != nil {
		return store.KnowledgeGap{}, err
	}
	prereqs, err := o.store.PrerequisitesOf(ctx, q.TopicID)
	if err != nil {
		return store.KnowledgeGap{}, err
	}
	related, err := o.store.RelatedOf(ctx, q.TopicID)
	if err != nil {
		return store.KnowledgeGap{}, err
	}
	ids := append(prereqs, related...)
	_, byID, err := o.store.TopicNames(ctx, ids)
	if err != nil {
		return store.KnowledgeGap{}, err
	}

	names := make([]string, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			names = append(names, name)
		}
	}

	subject := *q
	if v.concept != "" {
		subject.Concept = v.concept
	}
	return content.BuildGap(&subject, topic.Name, names, v.explanation), nil
}

// commit folds every logged answer of the pair the record has not seen,
// ending with ev, and writes the record together with the remediation ev
// requires. Answers logged before the pair's last reset never count, not
// even toward the bonus window. A lost compare-and-swap is retried from a
// fresh read. The returned step is nil when ev had already been folded.
func (o *Orchestrator) commit(ctx context.Context, ev *store.AnswerEvent) (*mastery.Record, *mastery.Step, error) {
	const op = "commit answer"
	for attempt := 1; ; attempt++ {
		cur, err := o.store.EnsureMastery(ctx, ev.StudentID, ev.TopicID)
		if err != nil {
			return nil, nil, err
		}
		if cur.LastEventSeq >= ev.Seq {
			return cur, nil, nil
		}

		pending, err := o.store.AnswersSince(ctx, ev.StudentID, ev.TopicID, cur.LastEventSeq)
		if err != nil {
			return nil, nil, err
		}
		window, err := o.store.RecentAnswers(ctx, ev.StudentID, ev.TopicID, cur.LastEventSeq+1, mastery.BonusWindow-1)
		if err != nil {
			return nil, nil, err
		}
		flags := make([]bool, 0, len(window))
		for _, w := range window {
			if w.Seq > cur.ResetSeq {
				flags = append(flags, w.Correct)
			}
		}
		answers := make([]mastery.Answer, len(pending))
		for i := range pending {
			answers[i] = pending[i].MasteryAnswer()
		}

		next, step, err := mastery.CatchUp(*cur, flags, answers)
		if errors.Is(err, mastery.ErrTerminal) {
			return nil, nil, apperr.State(apperr.CodeTopicMastered, op, "topic %d is mastered", ev.TopicID)
		}
		if err != nil {
			return nil, nil, err
		}

		var lesson *store.PendingLesson
		if n := len(pending); n > 0 {
			if last := pending[n-1]; !last.Correct && last.Gap != nil {
				lesson = &store.PendingLesson{
					StudentID: last.StudentID,
					TopicID:   last.TopicID,
					Gap:       *last.Gap,
					AnswerSeq: last.Seq,
				}
			}
		}

		err = o.store.CommitAnswer(ctx, &next, lesson)
		if err == nil {
			if len(pending) > 1 {
				o.log.Info("caught up unapplied answers", "student_id", ev.StudentID, "topic_id", ev.TopicID, "count", len(pending))
			}
			return &next, &step, nil
		}
		if !errors.Is(err, store.ErrStaleRecord) || attempt >= o.cfg.CASRetries {
			return nil, nil, err
		}
		o.log.Debug("mastery record changed; retrying", "student_id", ev.StudentID, "topic_id", ev.TopicID, "attempt", attempt)
	}
}
