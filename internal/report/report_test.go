package report_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/report"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func at(minAgo float64) *time.Time {
	t := now.Add(-time.Duration(minAgo * float64(time.Minute)))
	return &t
}

func f(v float64) *float64 { return &v }

func TestStatus(t *testing.T) {
	sess := exam.TestSession{TimeLimitMinutes: 60}
	tests := []struct {
		name string
		inst exam.TestInstance
		want report.ParticipantStatus
	}{
		{name: "never opened", inst: exam.TestInstance{}, want: report.StatusNotStarted},
		{name: "within limit", inst: exam.TestInstance{StartedAt: at(30)}, want: report.StatusInProgress},
		{name: "exactly at limit", inst: exam.TestInstance{StartedAt: at(60)}, want: report.StatusInProgress},
		{name: "over limit", inst: exam.TestInstance{StartedAt: at(70)}, want: report.StatusTimedOut},
		{name: "completed late is still completed", inst: exam.TestInstance{StartedAt: at(500), CompletedAt: at(1)}, want: report.StatusCompleted},
		{name: "completed without start", inst: exam.TestInstance{CompletedAt: at(1)}, want: report.StatusCompleted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := report.Status(tc.inst, sess, now); got != tc.want {
				t.Fatalf("Status = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestStatistics_Example(t *testing.T) {
	participants := []report.Participant{
		{Status: report.StatusCompleted, TotalScore: f(85), MaxScore: f(100)},
		{Status: report.StatusCompleted, TotalScore: f(92), MaxScore: f(100)},
		{Status: report.StatusCompleted, TotalScore: f(78), MaxScore: f(100)},
		{Status: report.StatusInProgress},
		{Status: report.StatusNotStarted},
	}
	got := report.Statistics(participants)
	want := report.Stats{
		TotalParticipants: 5,
		CompletedCount:    3,
		InProgressCount:   1,
		NotStartedCount:   1,
		CompletionRate:    0.6,
		AverageScore:      85,
		HighestScore:      92,
		LowestScore:       78,
	}
	if got != want {
		t.Fatalf("Statistics = %+v, want %+v", got, want)
	}
}

func TestStatistics_EdgeCases(t *testing.T) {
	if got := report.Statistics(nil); got != (report.Stats{}) {
		t.Fatalf("empty stats = %+v", got)
	}

	got := report.Statistics([]report.Participant{
		{Status: report.StatusCompleted}, // finished without submitting
		{Status: report.StatusCompleted, TotalScore: f(40)},
		{Status: report.StatusTimedOut},
	})
	if got.CompletedCount != 2 || got.NotStartedCount != 1 {
		t.Fatalf("counts = %+v", got)
	}
	if got.AverageScore != 40 || got.LowestScore != 40 || got.HighestScore != 40 {
		t.Fatalf("unsubmitted participant leaked into score aggregates: %+v", got)
	}
	if math.Abs(got.CompletionRate-2.0/3) > 1e-9 {
		t.Fatalf("completion rate = %v", got.CompletionRate)
	}
}

func question(id, text, correct string) exam.Question {
	return exam.Question{
		ID:              id,
		Text:            text,
		CorrectAnswerID: correct,
		Answers:         []exam.Answer{{ID: correct, Text: "answer " + correct}, {ID: "no", Text: "nope"}},
	}
}

func instance(id string, completed bool, answers exam.Answers, qs ...exam.Question) exam.TestInstance {
	inst := exam.TestInstance{
		ID:      id,
		Answers: answers,
		TestContent: exam.TestContentPackage{Sections: []exam.MaterializedSection{
			{PoolID: "p", Points: 10, Questions: qs},
		}},
		StartedAt: at(30),
	}
	if completed {
		inst.CompletedAt = at(5)
	}
	return inst
}

func TestQuestionAnalysis_MergesAcrossParticipants(t *testing.T) {
	q1 := question("q1", "Bravo", "a")
	q2 := question("q2", "Alpha", "b")
	q3 := question("q3", "Charlie", "c")

	got := report.QuestionAnalysis([]exam.TestInstance{
		instance("A", true, exam.Answers{"q1": "a", "q2": "b"}, q1, q2),
		instance("B", true, exam.Answers{"q2": "no"}, q2, q3),
		instance("C", false, exam.Answers{"q2": "b"}, q2), // not completed, ignored
	})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}

	// Sorted by content: Alpha(q2), Bravo(q1), Charlie(q3).
	wantOrder := []string{"q2", "q1", "q3"}
	for i, st := range got {
		if st.QuestionID != wantOrder[i] || st.QuestionNumber != i+1 {
			t.Fatalf("position %d = %s/#%d, want %s/#%d", i, st.QuestionID, st.QuestionNumber, wantOrder[i], i+1)
		}
	}

	q2s := got[0]
	if q2s.ParticipantsCount != 2 || q2s.TotalResponses != 2 || q2s.CorrectResponses != 1 || q2s.CorrectPercentage != 50 {
		t.Fatalf("q2 stats = %+v", q2s)
	}
	if q2s.Points != 5 || q2s.CorrectAnswer != "answer b" {
		t.Fatalf("q2 points/answer = %v/%q", q2s.Points, q2s.CorrectAnswer)
	}

	q3s := got[2]
	if q3s.ParticipantsCount != 1 || q3s.TotalResponses != 0 || q3s.CorrectPercentage != 0 {
		t.Fatalf("unanswered q3 stats = %+v", q3s)
	}
}

func TestQuestionAnalysis_FirstSightingWins(t *testing.T) {
	first := question("q1", "Original", "a")
	edited := question("q1", "Edited", "a")
	got := report.QuestionAnalysis([]exam.TestInstance{
		instance("A", true, exam.Answers{"q1": "a"}, first),
		instance("B", true, exam.Answers{"q1": "a"}, edited, question("q9", "Other", "z")),
	})
	if got[0].QuestionID != "q1" || got[0].QuestionContent != "Original" || got[0].Points != 10 {
		t.Fatalf("first sighting not kept: %+v", got[0])
	}
	if got[0].ParticipantsCount != 2 || got[0].CorrectResponses != 2 {
		t.Fatalf("counters = %+v", got[0])
	}
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	sess := exam.TestSession{ID: "s1", TemplateID: "tpl", TimeLimitMinutes: 60, Status: exam.SessionOpen}
	_ = store.SaveSession(ctx, sess)

	done := instance("i1", true, exam.Answers{"q1": "a"}, question("q1", "Only", "a"))
	done.SessionID, done.Identifier, done.TotalScore, done.MaxScore = "s1", "alice", f(10), f(10)
	late := exam.TestInstance{ID: "i2", SessionID: "s1", Identifier: "bob", StartedAt: at(90)}
	idle := exam.TestInstance{ID: "i3", SessionID: "s1", Identifier: "carol"}
	other := exam.TestInstance{ID: "i4", SessionID: "s2", Identifier: "dave"}
	for _, inst := range []exam.TestInstance{done, late, idle, other} {
		_ = store.SaveInstance(ctx, inst)
	}

	b := report.NewBuilder(store, store, report.WithClock(func() time.Time { return now }))
	rep, err := b.Build(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Participants) != 3 {
		t.Fatalf("participants = %d, want 3", len(rep.Participants))
	}
	statuses := map[string]report.ParticipantStatus{}
	for _, p := range rep.Participants {
		statuses[p.Identifier] = p.Status
	}
	if statuses["alice"] != report.StatusCompleted || statuses["bob"] != report.StatusTimedOut || statuses["carol"] != report.StatusNotStarted {
		t.Fatalf("statuses = %v", statuses)
	}
	if rep.Statistics.CompletedCount != 1 || rep.Statistics.NotStartedCount != 2 {
		t.Fatalf("stats = %+v", rep.Statistics)
	}
	if len(rep.Questions) != 1 || rep.Questions[0].CorrectPercentage != 100 {
		t.Fatalf("questions = %+v", rep.Questions)
	}
	if !rep.GeneratedAt.Equal(now) {
		t.Fatalf("generated at = %v", rep.GeneratedAt)
	}

	if _, err := b.Build(ctx, "missing"); !errors.Is(err, exam.ErrSessionNotFound) {
		t.Fatalf("missing session err = %v", err)
	}
}
