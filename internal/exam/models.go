package exam

import "time"

type Answer struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Question is a bank record. Materialized packages hold frozen copies made by Clone.
type Question struct {
	ID              string    `json:"id" yaml:"id"`
	Text            string    `json:"text" yaml:"text"`
	Answers         []Answer  `json:"answers" yaml:"answers"`
	CorrectAnswerID string    `json:"correct_answer_id,omitempty" yaml:"correct_answer_id"`
	Tags            []string  `json:"tags,omitempty" yaml:"tags"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy that shares no mutable state with q.
func (q Question) Clone() Question {
	out := q
	if q.Answers != nil {
		out.Answers = make([]Answer, len(q.Answers))
		copy(out.Answers, q.Answers)
	}
	if q.Tags != nil {
		out.Tags = make([]string, len(q.Tags))
		copy(out.Tags, q.Tags)
	}
	// time.Time is a value; the struct copy above already detached the timestamps.
	return out
}

// Pool draws QuestionsToDraw questions out of QuestionIDs. Points is the value of
// the whole pool, split evenly between the drawn questions.
type Pool struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	QuestionsToDraw int      `json:"questions_to_draw" yaml:"questions_to_draw"`
	Points          float64  `json:"points" yaml:"points"`
	QuestionIDs     []string `json:"question_ids" yaml:"question_ids"`
}

type Template struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Pools       []Pool    `json:"pools" yaml:"pools"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func (t Template) Clone() Template {
	out := t
	out.Pools = make([]Pool, len(t.Pools))
	for i, p := range t.Pools {
		p.QuestionIDs = append([]string(nil), p.QuestionIDs...)
		out.Pools[i] = p
	}
	return out
}

type MaterializedSection struct {
	PoolID    string     `json:"pool_id"`
	PoolName  string     `json:"pool_name"`
	Points    float64    `json:"points"`
	Questions []Question `json:"questions"`
}

// PointsPerQuestion is zero for a section without questions.
func (s MaterializedSection) PointsPerQuestion() float64 {
	if len(s.Questions) == 0 {
		return 0
	}
	return s.Points / float64(len(s.Questions))
}

// TestContentPackage is the immutable content snapshot owned by one TestInstance.
type TestContentPackage struct {
	ID         string                `json:"id"`
	TemplateID string                `json:"template_id"`
	Sections   []MaterializedSection `json:"sections"`
	CreatedAt  time.Time             `json:"created_at"`
}

func (p TestContentPackage) QuestionCount() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Questions)
	}
	return n
}

func (p TestContentPackage) Clone() TestContentPackage {
	out := p
	if p.Sections == nil {
		return out
	}
	out.Sections = make([]MaterializedSection, len(p.Sections))
	for i, s := range p.Sections {
		qs := make([]Question, len(s.Questions))
		for j, q := range s.Questions {
			qs[j] = q.Clone()
		}
		s.Questions = qs
		out.Sections[i] = s
	}
	return out
}

// ParticipantView hides the correct answers so the package can be shown to the examinee.
func (p TestContentPackage) ParticipantView() TestContentPackage {
	out := p.Clone()
	for i := range out.Sections {
		for j := range out.Sections[i].Questions {
			out.Sections[i].Questions[j].CorrectAnswerID = ""
		}
	}
	return out
}

// Answers maps question id -> selected answer id.
type Answers map[string]string

func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type TestInstance struct {
	ID               string             `json:"id"`
	SessionID        string             `json:"session_id"`
	Identifier       string             `json:"identifier"`
	AccessCode       string             `json:"access_code"`
	TestContent      TestContentPackage `json:"test_content"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	Answers          Answers            `json:"answers,omitempty"`
	TotalScore       *float64           `json:"total_score,omitempty"`
	MaxScore         *float64           `json:"max_score,omitempty"`
	TimeTakenMinutes *float64           `json:"time_taken_minutes,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

func (i TestInstance) Clone() TestInstance {
	out := i
	out.TestContent = i.TestContent.Clone()
	out.StartedAt = cloneTime(i.StartedAt)
	out.CompletedAt = cloneTime(i.CompletedAt)
	out.Answers = i.Answers.Clone()
	out.TotalScore = cloneFloat(i.TotalScore)
	out.MaxScore = cloneFloat(i.MaxScore)
	out.TimeTakenMinutes = cloneFloat(i.TimeTakenMinutes)
	return out
}

type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionCompleted, SessionAborted:
		return true
	}
	return false
}

type TestSession struct {
	ID               string        `json:"id"`
	TemplateID       string        `json:"template_id"`
	ExaminerID       string        `json:"examiner_id"`
	TimeLimitMinutes int           `json:"time_limit_minutes"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
