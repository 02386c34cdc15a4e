package selection

import (
	"errors"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/seedrand"
)

// DefaultMaxAnswers caps the options shown for one question.
const DefaultMaxAnswers = 4

var ErrCorrectAnswerMissing = errors.New("correct answer id not among answers")

// Pick draws n items uniformly without replacement: Fisher-Yates over a copy,
// then the first n. n is clipped to len(items).
func Pick[T any](r seedrand.Source, items []T, n int) []T {
	cpy := Shuffle(r, items)
	if n < 0 {
		n = 0
	}
	if n > len(cpy) {
		n = len(cpy)
	}
	return cpy[:n]
}

// Shuffle returns a shuffled copy; items is left untouched.
func Shuffle[T any](r seedrand.Source, items []T) []T {
	cpy := make([]T, len(items))
	copy(cpy, items)
	r.Shuffle(len(cpy), func(i, j int) { cpy[i], cpy[j] = cpy[j], cpy[i] })
	return cpy
}

type Option func(*Engine)

func WithMaxAnswers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAnswers = n
		}
	}
}

// WithStrict turns a missing correct answer into an error instead of the
// first-N fallback.
func WithStrict(b bool) Option { return func(e *Engine) { e.strict = b } }

// Engine selects questions and reduces answer sets. It never keeps or mutates
// the values it is given.
type Engine struct {
	rnd        seedrand.Source
	maxAnswers int
	strict     bool
}

// New builds an engine drawing from r; a nil r uses seedrand.Global.
func New(r seedrand.Source, opts ...Option) *Engine {
	if r == nil {
		r = seedrand.Global()
	}
	e := &Engine{rnd: r, maxAnswers: DefaultMaxAnswers}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SelectQuestions returns deep copies of n randomly chosen questions. Having
// fewer than n questions is the caller's problem; the result is then shorter.
func (e *Engine) SelectQuestions(bank []exam.Question, n int) []exam.Question {
	picked := Pick(e.rnd, bank, n)
	out := make([]exam.Question, len(picked))
	for i, q := range picked {
		out[i] = q.Clone()
	}
	return out
}

// SelectAndShuffleAnswers keeps every answer when there are at most maxAnswers,
// otherwise the correct one plus maxAnswers-1 random others. The result is
// always shuffled.
func (e *Engine) SelectAndShuffleAnswers(answers []exam.Answer, correctID string) ([]exam.Answer, error) {
	if len(answers) <= e.maxAnswers {
		return Shuffle(e.rnd, answers), nil
	}

	correctIdx := -1
	for i, a := range answers {
		if a.ID == correctID {
			correctIdx = i
			break
		}
	}
	if correctIdx < 0 {
		if e.strict {
			return nil, ErrCorrectAnswerMissing
		}
		return Shuffle(e.rnd, answers[:e.maxAnswers]), nil
	}

	incorrect := make([]exam.Answer, 0, len(answers)-1)
	for i, a := range answers {
		if i != correctIdx {
			incorrect = append(incorrect, a)
		}
	}
	chosen := append([]exam.Answer{answers[correctIdx]}, Pick(e.rnd, incorrect, e.maxAnswers-1)...)
	return Shuffle(e.rnd, chosen), nil
}

// Freeze produces the snapshot stored in a content package: an independent
// copy of q with its answer set reduced and shuffled.
func (e *Engine) Freeze(q exam.Question) (exam.Question, error) {
	out := q.Clone()
	if e.strict && !hasAnswer(q.Answers, q.CorrectAnswerID) {
		return exam.Question{}, &exam.DataIntegrityError{QuestionID: q.ID, Reason: ErrCorrectAnswerMissing.Error()}
	}
	answers, err := e.SelectAndShuffleAnswers(q.Answers, q.CorrectAnswerID)
	if err != nil {
		return exam.Question{}, &exam.DataIntegrityError{QuestionID: q.ID, Reason: err.Error()}
	}
	out.Answers = answers
	return out, nil
}

func hasAnswer(answers []exam.Answer, id string) bool {
	for _, a := range answers {
		if a.ID == id {
			return true
		}
	}
	return false
}
