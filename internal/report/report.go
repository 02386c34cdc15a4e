// Package report aggregates the participants of a test session into
// per-participant status, session statistics and per-question analytics.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
)

type ParticipantStatus string

const (
	StatusNotStarted ParticipantStatus = "not_started"
	StatusInProgress ParticipantStatus = "in_progress"
	StatusCompleted  ParticipantStatus = "completed"
	StatusTimedOut   ParticipantStatus = "timed_out"
)

// Status classifies an instance. Completion wins over everything, then a
// missing start, then an exceeded time limit.
func Status(inst exam.TestInstance, sess exam.TestSession, now time.Time) ParticipantStatus {
	switch {
	case inst.CompletedAt != nil:
		return StatusCompleted
	case inst.StartedAt == nil:
		return StatusNotStarted
	case now.Sub(*inst.StartedAt).Minutes() > float64(sess.TimeLimitMinutes):
		return StatusTimedOut
	default:
		return StatusInProgress
	}
}

type Participant struct {
	InstanceID       string            `json:"instance_id"`
	Identifier       string            `json:"identifier"`
	AccessCode       string            `json:"access_code"`
	Status           ParticipantStatus `json:"status"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	TotalScore       *float64          `json:"total_score,omitempty"`
	MaxScore         *float64          `json:"max_score,omitempty"`
	Percentage       *float64          `json:"percentage,omitempty"`
	TimeTakenMinutes *float64          `json:"time_taken_minutes,omitempty"`
}

func NewParticipant(inst exam.TestInstance, sess exam.TestSession, now time.Time) Participant {
	p := Participant{
		InstanceID:       inst.ID,
		Identifier:       inst.Identifier,
		AccessCode:       inst.AccessCode,
		Status:           Status(inst, sess, now),
		StartedAt:        inst.StartedAt,
		CompletedAt:      inst.CompletedAt,
		TotalScore:       inst.TotalScore,
		MaxScore:         inst.MaxScore,
		TimeTakenMinutes: inst.TimeTakenMinutes,
	}
	if inst.TotalScore != nil && inst.MaxScore != nil && *inst.MaxScore > 0 {
		pct := 100 * *inst.TotalScore / *inst.MaxScore
		p.Percentage = &pct
	}
	return p
}

type Stats struct {
	TotalParticipants int     `json:"total_participants"`
	CompletedCount    int     `json:"completed_count"`
	InProgressCount   int     `json:"in_progress_count"`
	NotStartedCount   int     `json:"not_started_count"`
	CompletionRate    float64 `json:"completion_rate"`
	AverageScore      float64 `json:"average_score"`
	HighestScore      float64 `json:"highest_score"`
	LowestScore       float64 `json:"lowest_score"`
}

// Statistics counts timed out participants as not started. Score aggregates only
// cover completed participants that submitted answers; they are zero when
// there are none.
func Statistics(participants []Participant) Stats {
	st := Stats{TotalParticipants: len(participants)}
	var (
		sum    float64
		scored int
	)
	for _, p := range participants {
		switch p.Status {
		case StatusCompleted:
			st.CompletedCount++
			if p.TotalScore == nil {
				continue
			}
			s := *p.TotalScore
			if scored == 0 || s > st.HighestScore {
				st.HighestScore = s
			}
			if scored == 0 || s < st.LowestScore {
				st.LowestScore = s
			}
			sum += s
			scored++
		case StatusInProgress:
			st.InProgressCount++
		case StatusNotStarted, StatusTimedOut:
			st.NotStartedCount++
		}
	}
	if st.TotalParticipants > 0 {
		st.CompletionRate = float64(st.CompletedCount) / float64(st.TotalParticipants)
	}
	if scored > 0 {
		st.AverageScore = sum / float64(scored)
	}
	return st
}

type QuestionStat struct {
	QuestionID        string  `json:"question_id"`
	QuestionNumber    int     `json:"question_number"`
	QuestionContent   string  `json:"question_content"`
	CorrectAnswer     string  `json:"correct_answer"`
	Points            float64 `json:"points"`
	CorrectResponses  int     `json:"correct_responses"`
	TotalResponses    int     `json:"total_responses"`
	CorrectPercentage float64 `json:"correct_percentage"`
	ParticipantsCount int     `json:"participants_count"`
}

// QuestionAnalysis merges questions by id across completed instances, since
// participants may have drawn different subsets of a pool. The first sighting
// of a question fixes its content, answer and points. The result is ordered by
// question text and numbered from 1 in that order.
func QuestionAnalysis(instances []exam.TestInstance) []QuestionStat {
	byID := map[string]*QuestionStat{}
	order := make([]string, 0)

	for _, inst := range instances {
		if inst.CompletedAt == nil {
			continue
		}
		for _, sec := range inst.TestContent.Sections {
			per := sec.PointsPerQuestion()
			for _, q := range sec.Questions {
				st, ok := byID[q.ID]
				if !ok {
					st = &QuestionStat{
						QuestionID:      q.ID,
						QuestionContent: q.Text,
						CorrectAnswer:   correctAnswerText(q),
						Points:          per,
					}
					byID[q.ID] = st
					order = append(order, q.ID)
				}
				st.ParticipantsCount++
				resp, answered := inst.Answers[q.ID]
				if !answered {
					continue
				}
				st.TotalResponses++
				if resp == q.CorrectAnswerID {
					st.CorrectResponses++
				}
			}
		}
	}

	out := make([]QuestionStat, 0, len(order))
	for _, id := range order {
		st := byID[id]
		if st.TotalResponses > 0 {
			st.CorrectPercentage = 100 * float64(st.CorrectResponses) / float64(st.TotalResponses)
		}
		out = append(out, *st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QuestionContent < out[j].QuestionContent })
	for i := range out {
		out[i].QuestionNumber = i + 1
	}
	return out
}

func correctAnswerText(q exam.Question) string {
	for _, a := range q.Answers {
		if a.ID == q.CorrectAnswerID {
			return a.Text
		}
	}
	return q.CorrectAnswerID
}

type SessionReport struct {
	Session      exam.TestSession `json:"session"`
	Participants []Participant    `json:"participants"`
	Statistics   Stats            `json:"statistics"`
	Questions    []QuestionStat   `json:"questions"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option { return func(b *Builder) { b.now = now } }

type Builder struct {
	sessions  exam.SessionStore
	instances exam.InstanceStore
	now       func() time.Time
}

func NewBuilder(sessions exam.SessionStore, instances exam.InstanceStore, opts ...Option) *Builder {
	b := &Builder{sessions: sessions, instances: instances, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) Build(ctx context.Context, sessionID string) (SessionReport, error) {
	sess, err := b.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	instances, err := b.instances.ListInstancesBySession(ctx, sessionID)
	if err != nil {
		return SessionReport{}, err
	}

	now := b.now()
	participants := make([]Participant, 0, len(instances))
	for _, inst := range instances {
		participants = append(participants, NewParticipant(inst, sess, now))
	}
	return SessionReport{
		Session:      sess,
		Participants: participants,
		Statistics:   Statistics(participants),
		Questions:    QuestionAnalysis(instances),
		GeneratedAt:  now,
	}, nil
}
