package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/answerevent"
	"github.com/abhisek/ascend/ent/masteryrecord"
	"github.com/abhisek/ascend/ent/pendinglesson"
	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/mastery"
)

func toRecord(row *ent.MasteryRecord) (*mastery.Record, error) {
	tier, err := mastery.ParseTier(row.CurrentDifficulty)
	if err != nil {
		return nil, fmt.Errorf("record %s/%d: %w", row.StudentID, row.TopicID, err)
	}
	return &mastery.Record{
		StudentID:    row.StudentID,
		TopicID:      row.TopicID,
		Level:        row.MasteryLevel,
		Attempted:    row.QuestionsAttempted,
		Correct:      row.QuestionsCorrect,
		Difficulty:   tier,
		Mastered:     row.Mastered,
		Streak:       row.Streak,
		LastEventSeq: row.LastEventSeq,
		ResetSeq:     row.ResetSeq,
		Version:      row.Version,
		UpdatedAt:    row.LastUpdated.UTC(),
	}, nil
}

// ReadMastery returns the record for the pair, or nil if the pair was never
// attempted.
func (s *Store) ReadMastery(ctx context.Context, studentID string, topicID int64) (*mastery.Record, error) {
	rec, err := readMastery(ctx, s.client, studentID, topicID)
	return rec, mapErr("read mastery", err)
}

func readMastery(ctx context.Context, c *ent.Client, studentID string, topicID int64) (*mastery.Record, error) {
	row, err := c.MasteryRecord.Query().
		Where(masteryrecord.StudentID(studentID), masteryrecord.TopicID(topicID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(row)
}

// EnsureMastery returns the record for the pair, creating the default one
// if absent.
func (s *Store) EnsureMastery(ctx context.Context, studentID string, topicID int64) (*mastery.Record, error) {
	const op = "ensure mastery"
	var rec *mastery.Record
	err := s.inTx(ctx, op, func(tx *ent.Tx) error {
		var err error
		if rec, err = readMastery(ctx, tx.Client(), studentID, topicID); err != nil || rec != nil {
			return err
		}
		rec = mastery.NewRecord(studentID, topicID)
		return s.writeMastery(ctx, tx.Client(), rec)
	})
	return rec, err
}

// WriteMastery stores rec if nobody wrote the pair since rec was read. A
// zero Version inserts; otherwise the row must still carry rec.Version. On
// success rec.Version holds the new token. A lost race returns
// ErrStaleRecord classified as a constraint violation.
func (s *Store) WriteMastery(ctx context.Context, rec *mastery.Record) error {
	return s.inTx(ctx, "write mastery", func(tx *ent.Tx) error {
		return s.writeMastery(ctx, tx.Client(), rec)
	})
}

func (s *Store) writeMastery(ctx context.Context, c *ent.Client, rec *mastery.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	next := *rec
	next.Version = rec.Version + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.now()
	}
	next.UpdatedAt = next.UpdatedAt.UTC()

	if rec.Version == 0 {
		err := c.MasteryRecord.Create().
			SetStudentID(next.StudentID).
			SetTopicID(next.TopicID).
			SetMasteryLevel(next.Level).
			SetQuestionsAttempted(next.Attempted).
			SetQuestionsCorrect(next.Correct).
			SetCurrentDifficulty(next.Difficulty.String()).
			SetMastered(next.Mastered).
			SetStreak(next.Streak).
			SetLastEventSeq(next.LastEventSeq).
			SetResetSeq(next.ResetSeq).
			SetVersion(next.Version).
			SetLastUpdated(next.UpdatedAt).
			Exec(ctx)
		if isConstraint(err) {
			return ErrStaleRecord
		}
		if err != nil {
			return err
		}
		*rec = next
		return nil
	}

	n, err := c.MasteryRecord.Update().
		Where(
			masteryrecord.StudentID(rec.StudentID),
			masteryrecord.TopicID(rec.TopicID),
			masteryrecord.Version(rec.Version),
		).
		SetMasteryLevel(next.Level).
		SetQuestionsAttempted(next.Attempted).
		SetQuestionsCorrect(next.Correct).
		SetCurrentDifficulty(next.Difficulty.String()).
		SetMastered(next.Mastered).
		SetStreak(next.Streak).
		SetLastEventSeq(next.LastEventSeq).
		SetResetSeq(next.ResetSeq).
		SetVersion(next.Version).
		SetLastUpdated(next.UpdatedAt).
		Save(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleRecord
	}
	*rec = next
	return nil
}

func validateRecord(r *mastery.Record) error {
	const op = "write mastery"
	switch {
	case r.StudentID == "":
		return apperr.Validation(op, "record without student")
	case !r.Difficulty.IsDifficulty():
		return apperr.Validation(op, "record difficulty %s", r.Difficulty)
	case r.Level < 0 || r.Level > mastery.MaxLevel:
		return apperr.Validation(op, "mastery level %v out of range", r.Level)
	case r.Correct < 0 || r.Correct > r.Attempted:
		return apperr.Validation(op, "counts %d/%d", r.Correct, r.Attempted)
	case r.LastEventSeq < r.ResetSeq:
		return apperr.Validation(op, "last event %d precedes reset %d", r.LastEventSeq, r.ResetSeq)
	}
	return nil
}

// CommitAnswer writes the updated record and, when lesson is set, the
// pending remediation for the pair in one transaction.
func (s *Store) CommitAnswer(ctx context.Context, rec *mastery.Record, lesson *PendingLesson) error {
	return s.inTx(ctx, "commit answer", func(tx *ent.Tx) error {
		if err := s.writeMastery(ctx, tx.Client(), rec); err != nil {
			return err
		}
		if lesson == nil {
			return nil
		}
		return s.putPendingLesson(ctx, tx.Client(), lesson)
	})
}

// MasteryForStudent returns every record of a student ordered by topic.
func (s *Store) MasteryForStudent(ctx context.Context, studentID string) ([]mastery.Record, error) {
	const op = "list mastery"
	rows, err := s.client.MasteryRecord.Query().
		Where(masteryrecord.StudentID(studentID)).
		Order(ent.Asc(masteryrecord.FieldTopicID)).
		All(ctx)
	if err != nil {
		return nil, mapErr(op, err)
	}
	out := make([]mastery.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ResetMastery starts the pair over at easy and drops its pending lesson.
// The answer log is kept: the record's reset watermark moves past every
// logged answer, so folds and rebuilds skip them while a repeated
// submission still finds the answer it repeats.
func (s *Store) ResetMastery(ctx context.Context, studentID string, topicID int64) error {
	return s.inTx(ctx, "reset mastery", func(tx *ent.Tx) error {
		c := tx.Client()
		if _, err := c.PendingLesson.Delete().
			Where(pendinglesson.StudentID(studentID), pendinglesson.TopicID(topicID)).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete pending lesson: %w", err)
		}

		last, err := lastAnswerSeq(ctx, c, studentID, topicID)
		if err != nil {
			return err
		}
		cur, err := readMastery(ctx, c, studentID, topicID)
		if err != nil {
			return err
		}
		if cur == nil && last == 0 {
			return nil
		}

		fresh := mastery.NewRecord(studentID, topicID)
		fresh.LastEventSeq, fresh.ResetSeq = last, last
		if cur != nil {
			fresh.Version = cur.Version
		}
		return s.writeMastery(ctx, c, fresh)
	})
}

// lastAnswerSeq returns the sequence of the pair's newest answer, or zero.
func lastAnswerSeq(ctx context.Context, c *ent.Client, studentID string, topicID int64) (int64, error) {
	seq, err := c.AnswerEvent.Query().
		Where(answerevent.StudentID(studentID), answerevent.TopicID(topicID)).
		Order(ent.Desc(answerevent.FieldID)).
		FirstID(ctx)
	if ent.IsNotFound(err) {
		return 0, nil
	}
	return seq, err
}

// RebuildMastery replaces the pair's record with one replayed from the
// answers logged after its last reset. The version token keeps increasing
// so in-flight writers holding the old record fail their compare-and-swap.
func (s *Store) RebuildMastery(ctx context.Context, studentID string, topicID int64) (*mastery.Record, error) {
	var rebuilt mastery.Record
	err := s.inTx(ctx, "rebuild mastery", func(tx *ent.Tx) error {
		c := tx.Client()
		cur, err := readMastery(ctx, c, studentID, topicID)
		if err != nil {
			return err
		}
		var floor int64
		if cur != nil {
			floor = cur.ResetSeq
		}

		events, err := answersWhere(ctx, c, answerPair(studentID, topicID), answerevent.IDGT(floor))
		if err != nil {
			return err
		}
		history := make([]mastery.Answer, len(events))
		for i, e := range events {
			history[i] = e.MasteryAnswer()
		}
		rebuilt = mastery.Replay(studentID, topicID, history)
		rebuilt.ResetSeq = floor
		rebuilt.LastEventSeq = max(rebuilt.LastEventSeq, floor)
		if rebuilt.UpdatedAt.IsZero() {
			rebuilt.UpdatedAt = s.now()
		}
		if cur != nil {
			rebuilt.Version = cur.Version
		}
		return s.writeMastery(ctx, c, &rebuilt)
	})
	if err != nil {
		return nil, err
	}
	return &rebuilt, nil
}

// Pair identifies a (student, topic) mastery pair.
type Pair struct {
	StudentID string `json:"student_id"`
	TopicID   int64  `json:"topic_id"`
}

// AnswerPairs returns every pair with at least one logged answer, ordered
// by student then topic.
func (s *Store) AnswerPairs(ctx context.Context) ([]Pair, error) {
	var out []Pair
	err := s.client.AnswerEvent.Query().
		GroupBy(answerevent.FieldStudentID, answerevent.FieldTopicID).
		Scan(ctx, &out)
	if err != nil {
		return nil, mapErr("answer pairs", err)
	}
	slices.SortFunc(out, func(a, b Pair) int {
		if c := strings.Compare(a.StudentID, b.StudentID); c != 0 {
			return c
		}
		return cmp.Compare(a.TopicID, b.TopicID)
	})
	return out, nil
}
