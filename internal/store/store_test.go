package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/ascend/internal/apperr"
	"github.com/abhisek/ascend/internal/mastery"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{
		"topics", "topic_relationships", "mastery_records", "answer_events",
		"study_sessions", "questions", "served_questions", "pending_lessons",
		"llm_request_events",
	} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascend.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.UpsertTopic(context.Background(), "Fractions", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	topics, err := s.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Len(t, topics, 1)
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("env override", func(t *testing.T) {
		t.Setenv("ASCEND_DB", filepath.Join(dir, "custom", "x.db"))
		p, err := DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "custom", "x.db"), p)
		_, err = os.Stat(filepath.Join(dir, "custom"))
		assert.NoError(t, err)
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv("ASCEND_DB", "")
		t.Setenv("XDG_DATA_HOME", dir)
		p, err := DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "ascend", "ascend.db"), p)
	})
}

func TestUpsertTopic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertTopic(ctx, "Long Division", "Arithmetic")
	require.NoError(t, err)

	again, err := s.UpsertTopic(ctx, "  Long   Division ", "")
	require.NoError(t, err)
	assert.Equal(t, id, again, "upsert is idempotent by name")

	topic, err := s.Topic(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, topic.ParentID)

	parent, err := s.TopicByName(ctx, "Arithmetic")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, *topic.ParentID)
	assert.Equal(t, []int64{id}, parent.Children)
	assert.Nil(t, parent.ParentID)
}

func TestChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertTopic(ctx, "Fractions", "Numbers")
	require.NoError(t, err)
	b, err := s.UpsertTopic(ctx, "Decimals", "Numbers")
	require.NoError(t, err)
	numbers, err := s.TopicByName(ctx, "Numbers")
	require.NoError(t, err)

	kids, err := s.Children(ctx, numbers.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, kids)

	leaf, err := s.Children(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, leaf)
}

func TestUpsertTopicAdoptsParentOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Seen first as a root.
	id, err := s.UpsertTopic(ctx, "Algebra", "")
	require.NoError(t, err)

	_, err = s.UpsertTopic(ctx, "Algebra", "Math")
	require.NoError(t, err)
	topic, err := s.Topic(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, topic.ParentID)
	math, err := s.TopicByName(ctx, "Math")
	require.NoError(t, err)
	assert.Equal(t, math.ID, *topic.ParentID)

	// An existing parent is never replaced.
	_, err = s.UpsertTopic(ctx, "Algebra", "Science")
	require.NoError(t, err)
	topic, err = s.Topic(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, math.ID, *topic.ParentID)
}

func TestUpsertTopicValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name, topic, parent string
	}{
		{"empty", "   ", ""},
		{"self parent", "Graphs", "Graphs"},
		{"too long", strings.Repeat("x", MaxTopicNameLen+1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpsertTopic(ctx, tt.topic, tt.parent)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestTopicNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Topic(context.Background(), 42)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

func TestAddRelationship(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	add, err := s.UpsertTopic(ctx, "Addition", "")
	require.NoError(t, err)
	mul, err := s.UpsertTopic(ctx, "Multiplication", "")
	require.NoError(t, err)
	sub, err := s.UpsertTopic(ctx, "Subtraction", "")
	require.NoError(t, err)

	require.NoError(t, s.AddRelationship(ctx, add, mul, RelPrerequisite))
	require.NoError(t, s.AddRelationship(ctx, add, sub, RelRelated))
	// Same pair, different type is a different edge.
	require.NoError(t, s.AddRelationship(ctx, add, mul, RelRelated))

	err = s.AddRelationship(ctx, add, mul, RelPrerequisite)
	assert.ErrorIs(t, err, ErrDuplicateEdge)
	assert.True(t, apperr.HasCode(err, apperr.CodeConstraintViolation))

	prereqs, err := s.PrerequisitesOf(ctx, mul)
	require.NoError(t, err)
	assert.Equal(t, []int64{add}, prereqs)

	related, err := s.RelatedOf(ctx, add)
	require.NoError(t, err)
	assert.Equal(t, []int64{mul, sub}, related)

	related, err = s.RelatedOf(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, []int64{add}, related, "related edges are symmetric for lookup")

	edges, err := s.Relationships(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestAddRelationshipRejectsBadInput(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.UpsertTopic(ctx, "A", "")
	require.NoError(t, err)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(s.AddRelationship(ctx, a, a, RelRelated)))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(s.AddRelationship(ctx, a, a+1, "sibling")))
	assert.True(t, apperr.HasCode(s.AddRelationship(ctx, a, 999, RelPrerequisite), apperr.CodeNotFound))
}

func TestCyclesAreStored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.UpsertTopic(ctx, "A", "")
	b, _ := s.UpsertTopic(ctx, "B", "")

	require.NoError(t, s.AddRelationship(ctx, a, b, RelPrerequisite))
	require.NoError(t, s.AddRelationship(ctx, b, a, RelPrerequisite))
}

func seedTopic(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	id, err := s.UpsertTopic(context.Background(), name, "")
	require.NoError(t, err)
	return id
}

func TestMasteryReadWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	rec, err := s.ReadMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Nil(t, rec, "never-attempted pair has no record")

	rec, err = s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, mastery.Easy, rec.Difficulty)
	assert.Equal(t, int64(1), rec.Version)

	rec.Attempted, rec.Correct, rec.Level = 1, 1, 100
	require.NoError(t, s.WriteMastery(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	got, err := s.ReadMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempted)
	assert.Equal(t, 100.0, got.Level)
	assert.Equal(t, int64(2), got.Version)
}

func TestWriteMasteryDetectsStaleRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	first, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	second := *first

	first.Attempted = 1
	require.NoError(t, s.WriteMastery(ctx, first))

	second.Attempted, second.Correct = 1, 1
	err = s.WriteMastery(ctx, &second)
	assert.ErrorIs(t, err, ErrStaleRecord)

	got, err := s.ReadMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Correct, "losing writer changed nothing")
}

func TestWriteMasteryValidates(t *testing.T) {
	s := openTestStore(t)
	topic := seedTopic(t, s, "Fractions")
	rec := mastery.NewRecord("alice", topic)
	rec.Attempted, rec.Correct = 1, 2
	err := s.WriteMastery(context.Background(), rec)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMasteryIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	_, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)

	recs, err := s.MasteryForStudent(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.MasteryForStudent(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCommitAnswerWritesLesson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	rec, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	rec.Attempted = 1

	gap := KnowledgeGap{Concept: "common denominators", Description: "added numerators only"}
	require.NoError(t, s.CommitAnswer(ctx, rec, &PendingLesson{
		StudentID: "alice", TopicID: topic, Gap: gap, AnswerSeq: 7,
	}))

	pl, err := s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	require.NotNil(t, pl)
	assert.True(t, pl.Blocking())
	assert.Equal(t, gap.Concept, pl.Gap.Concept)
	assert.Equal(t, int64(7), pl.AnswerSeq)

	// A stale commit writes neither the record nor the lesson.
	stale := *rec
	stale.Version = 1
	err = s.CommitAnswer(ctx, &stale, &PendingLesson{StudentID: "alice", TopicID: topic, AnswerSeq: 8})
	assert.ErrorIs(t, err, ErrStaleRecord)
	pl, err = s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pl.AnswerSeq)
}

func TestLessonLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	_, err := s.MarkLessonConsumed(ctx, "alice", topic)
	assert.True(t, apperr.HasCode(err, apperr.CodeNoPendingLesson))

	rec, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	require.NoError(t, s.CommitAnswer(ctx, rec, &PendingLesson{
		StudentID: "alice", TopicID: topic, AnswerSeq: 3,
		Gap: KnowledgeGap{Concept: "denominators"},
	}))

	require.NoError(t, s.SaveLessonContent(ctx, "alice", topic, 3, Lesson{Title: "Denominators"}))
	// Content for a superseded answer is ignored.
	require.NoError(t, s.SaveLessonContent(ctx, "alice", topic, 2, Lesson{Title: "Old"}))

	pl, err := s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	require.NotNil(t, pl.Lesson)
	assert.Equal(t, "Denominators", pl.Lesson.Title)

	assert.False(t, pl.Served)

	_, err = s.MarkLessonConsumed(ctx, "alice", topic)
	assert.True(t, apperr.HasCode(err, apperr.CodeMiniLessonNotServed), "lesson must be shown first")

	// Serving is recorded only for the current answer.
	require.NoError(t, s.MarkLessonServed(ctx, "alice", topic, 2))
	pl, err = s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	assert.False(t, pl.Served)

	require.NoError(t, s.MarkLessonServed(ctx, "alice", topic, 3))
	pl, err = s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	assert.True(t, pl.Served)

	pl, err = s.MarkLessonConsumed(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, LessonConsumed, pl.Status)
	assert.False(t, pl.Blocking())

	// Consuming twice is harmless.
	_, err = s.MarkLessonConsumed(ctx, "alice", topic)
	require.NoError(t, err)
}

func TestAppendAnswerIsIdempotentPerServing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	ev := AnswerEvent{
		StudentID: "alice", QuestionID: "q1", TopicID: topic, SessionID: "s1",
		Difficulty: mastery.Easy, Correct: false, Answer: "3/5",
		Gap: &KnowledgeGap{Concept: "denominators", RelatedTopics: []string{}},
	}
	first, created, err := s.AppendAnswer(ctx, ev)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Positive(t, first.Seq)
	require.NotNil(t, first.Gap)
	assert.Equal(t, "denominators", first.Gap.Concept)

	ev.Correct = true
	again, created, err := s.AppendAnswer(ctx, ev)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Seq, again.Seq)
	assert.False(t, again.Correct, "first answer wins")

	got, err := s.AnswerFor(ctx, "alice", "s1", "q1")
	require.NoError(t, err)
	assert.Equal(t, first.Seq, got.Seq)

	none, err := s.AnswerFor(ctx, "bob", "s1", "q1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAnswerQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")
	other := seedTopic(t, s, "Decimals")

	var seqs []int64
	for i := range 6 {
		ev, _, err := s.AppendAnswer(ctx, AnswerEvent{
			StudentID: "alice", QuestionID: fmt.Sprintf("q%d", i), TopicID: topic,
			SessionID: "s1", Difficulty: mastery.Easy, Correct: i%2 == 0,
		})
		require.NoError(t, err)
		seqs = append(seqs, ev.Seq)
	}
	_, _, err := s.AppendAnswer(ctx, AnswerEvent{
		StudentID: "alice", QuestionID: "d0", TopicID: other,
		SessionID: "s2", Difficulty: mastery.Medium,
	})
	require.NoError(t, err)

	recent, err := s.RecentAnswers(ctx, "alice", topic, 0, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, seqs[3:], []int64{recent[0].Seq, recent[1].Seq, recent[2].Seq}, "most-recent-last")

	before, err := s.RecentAnswers(ctx, "alice", topic, seqs[2], 5)
	require.NoError(t, err)
	assert.Len(t, before, 2)

	since, err := s.AnswersSince(ctx, "alice", topic, seqs[3])
	require.NoError(t, err)
	assert.Len(t, since, 2)

	sess, err := s.SessionAnswers(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, sess, 6)

	latest, err := s.LatestAnswer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "d0", latest.QuestionID)

	pairs, err := s.AnswerPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"alice", topic}, {"alice", other}}, pairs)
}

func TestRebuildMasteryMatchesReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	var history []mastery.Answer
	for i := range 7 {
		ev, _, err := s.AppendAnswer(ctx, AnswerEvent{
			StudentID: "alice", QuestionID: fmt.Sprintf("q%d", i), TopicID: topic,
			SessionID: "s1", Difficulty: mastery.Easy, Correct: i != 3,
		})
		require.NoError(t, err)
		history = append(history, ev.MasteryAnswer())
	}

	// Corrupt the stored record.
	rec, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	rec.Level, rec.Attempted = 0, 0
	require.NoError(t, s.WriteMastery(ctx, rec))

	rebuilt, err := s.RebuildMastery(ctx, "alice", topic)
	require.NoError(t, err)

	want := mastery.Replay("alice", topic, history)
	assert.Equal(t, want.Level, rebuilt.Level)
	assert.Equal(t, want.Difficulty, rebuilt.Difficulty)
	assert.Equal(t, want.Streak, rebuilt.Streak)
	assert.Equal(t, 7, rebuilt.Attempted)
	assert.Greater(t, rebuilt.Version, rec.Version)
}

func TestResetMastery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	var last int64
	for i := range 3 {
		ev, _, err := s.AppendAnswer(ctx, AnswerEvent{
			StudentID: "alice", QuestionID: fmt.Sprintf("q%d", i), TopicID: topic,
			SessionID: "s", Difficulty: mastery.Easy, Correct: true,
		})
		require.NoError(t, err)
		last = ev.Seq
	}
	rec, err := s.RebuildMastery(ctx, "alice", topic)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Attempted)
	require.NoError(t, s.CommitAnswer(ctx, rec, &PendingLesson{
		StudentID: "alice", TopicID: topic, AnswerSeq: last,
		Gap: KnowledgeGap{Concept: "denominators"},
	}))

	require.NoError(t, s.ResetMastery(ctx, "alice", topic))

	got, err := s.ReadMastery(ctx, "alice", topic)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.Attempted)
	assert.Zero(t, got.Level)
	assert.Equal(t, mastery.Easy, got.Difficulty)
	assert.Equal(t, last, got.ResetSeq)
	assert.Equal(t, last, got.LastEventSeq)
	assert.Greater(t, got.Version, rec.Version)

	pl, err := s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Nil(t, pl)

	// The log is kept, so a repeated submission still finds its answer.
	recent, err := s.RecentAnswers(ctx, "alice", topic, 0, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	prior, err := s.AnswerFor(ctx, "alice", "s", "q0")
	require.NoError(t, err)
	assert.NotNil(t, prior)

	// Rebuilding skips answers logged before the reset.
	rebuilt, err := s.RebuildMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Zero(t, rebuilt.Attempted)
	assert.Equal(t, last, rebuilt.ResetSeq)

	ev, _, err := s.AppendAnswer(ctx, AnswerEvent{
		StudentID: "alice", QuestionID: "q9", TopicID: topic,
		SessionID: "s2", Difficulty: mastery.Easy, Correct: true,
	})
	require.NoError(t, err)
	rebuilt, err = s.RebuildMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilt.Attempted)
	assert.Equal(t, ev.Seq, rebuilt.LastEventSeq)
}

func TestResetMasteryUntouchedPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	require.NoError(t, s.ResetMastery(ctx, "alice", topic))
	rec, err := s.ReadMastery(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestWriteMasteryRejectsSeqBelowReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")

	rec := mastery.NewRecord("alice", topic)
	rec.ResetSeq, rec.LastEventSeq = 5, 4
	err := s.WriteMastery(ctx, rec)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	open, err := s.OpenSession(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, open)

	sess, err := s.StartSession(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, sess.Open())

	_, err = s.StartSession(ctx, "alice")
	assert.ErrorIs(t, err, ErrSessionAlreadyOpen)
	assert.True(t, apperr.HasCode(err, apperr.CodeSessionAlreadyOpen))

	// Another student is unaffected.
	_, err = s.StartSession(ctx, "bob")
	require.NoError(t, err)

	ended, err := s.EndSession(ctx, "alice", sess.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)

	again, err := s.EndSession(ctx, "alice", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, ended.EndedAt, again.EndedAt, "ending twice is a no-op")

	_, err = s.EndSession(ctx, "bob", sess.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound), "sessions are private")

	latest, err := s.LatestSession(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, latest.ID)

	next, err := s.StartSession(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID)
}

func TestServeQuestion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")
	sess, err := s.StartSession(ctx, "alice")
	require.NoError(t, err)

	q := Question{
		ID: "q1", TopicID: topic, Difficulty: mastery.Easy, Format: FormatTrueFalse,
		Text: "1/2 equals 2/4", Answer: "true",
	}
	require.NoError(t, s.SaveQuestion(ctx, q))
	require.NoError(t, s.SaveQuestion(ctx, q), "saving twice keeps the first copy")

	sq := &ServedQuestion{SessionID: sess.ID, QuestionID: "q1", StudentID: "alice", TopicID: topic, Format: q.Format}
	require.NoError(t, s.ServeQuestion(ctx, sq, false))
	assert.Positive(t, sq.Seq)

	err = s.ServeQuestion(ctx, &ServedQuestion{SessionID: sess.ID, QuestionID: "q1", StudentID: "alice", TopicID: topic, Format: q.Format}, false)
	assert.ErrorIs(t, err, ErrAlreadyServed)

	got, err := s.ServedIn(ctx, sess.ID, "q1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.StudentID)

	formats, err := s.RecentFormats(ctx, "alice", topic, 9)
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatTrueFalse}, formats)

	ids, err := s.SessionQuestionIDs(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, ids)

	withTopics, err := s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{topic}, withTopics.Topics)

	// Bob cannot serve into Alice's session.
	err = s.ServeQuestion(ctx, &ServedQuestion{SessionID: sess.ID, QuestionID: "q1", StudentID: "bob", TopicID: topic, Format: q.Format}, false)
	assert.True(t, apperr.HasCode(err, apperr.CodeSessionEnded))
}

func TestServeQuestionResolvesConsumedLesson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")
	sess, err := s.StartSession(ctx, "alice")
	require.NoError(t, err)

	rec, err := s.EnsureMastery(ctx, "alice", topic)
	require.NoError(t, err)
	require.NoError(t, s.CommitAnswer(ctx, rec, &PendingLesson{StudentID: "alice", TopicID: topic, AnswerSeq: 1}))
	require.NoError(t, s.MarkLessonServed(ctx, "alice", topic, 1))
	_, err = s.MarkLessonConsumed(ctx, "alice", topic)
	require.NoError(t, err)

	require.NoError(t, s.SaveQuestion(ctx, Question{
		ID: "f1", TopicID: topic, Difficulty: mastery.Easy, Format: FormatShortAnswer, Text: "?", Answer: "x",
	}))
	require.NoError(t, s.ServeQuestion(ctx, &ServedQuestion{
		SessionID: sess.ID, QuestionID: "f1", StudentID: "alice", TopicID: topic,
		Format: FormatShortAnswer, FollowUp: true,
	}, true))

	pl, err := s.PendingLesson(ctx, "alice", topic)
	require.NoError(t, err)
	assert.Equal(t, LessonResolved, pl.Status)
}

func TestCachedQuestions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	topic := seedTopic(t, s, "Fractions")
	sess, err := s.StartSession(ctx, "alice")
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range []Format{FormatMultipleChoice, FormatTrueFalse, FormatShortAnswer} {
		require.NoError(t, s.SaveQuestion(ctx, Question{
			ID: fmt.Sprintf("q%d", i), TopicID: topic, Difficulty: mastery.Easy, Format: f,
			Text: "t", Answer: "a", Choices: []string{"a", "b"}, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.SaveQuestion(ctx, Question{
		ID: "hard", TopicID: topic, Difficulty: mastery.Hard, Format: FormatTrueFalse, Text: "t", Answer: "true",
	}))
	require.NoError(t, s.ServeQuestion(ctx, &ServedQuestion{
		SessionID: sess.ID, QuestionID: "q0", StudentID: "alice", TopicID: topic, Format: FormatMultipleChoice,
	}, false))

	qs, err := s.CachedQuestions(ctx, topic, mastery.Easy, sess.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "q1", qs[0].ID)

	qs, err = s.CachedQuestions(ctx, topic, mastery.Easy, sess.ID, FormatTrueFalse)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "q2", qs[0].ID)
}

func TestLLMEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		data := LLMRequestEventData{Provider: "mock", Model: "m", Purpose: "question-gen", InputTokens: i, Success: true}
		if i == 1 {
			data.Success, data.ErrorMessage = false, "boom"
		}
		require.NoError(t, s.EventRepo().AppendLLMRequest(ctx, data))
	}

	events, err := s.QueryLLMEvents(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.False(t, events[1].Success)
	assert.Equal(t, "boom", events[1].ErrorMessage)

	page, err := s.QueryLLMEvents(ctx, QueryOpts{After: events[0].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, events[1].ID, page[0].ID)
}

func TestMapErr(t *testing.T) {
	assert.Nil(t, mapErr("op", nil))
	assert.True(t, apperr.HasCode(mapErr("op", context.DeadlineExceeded), apperr.CodeQueryTimeout))
	assert.True(t, apperr.HasCode(mapErr("op", errors.New("disk gone")), apperr.CodeConnectionFailure))

	orig := apperr.Validation("inner", "bad")
	assert.Same(t, orig, mapErr("outer", orig))
}
