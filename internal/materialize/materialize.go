// Package materialize turns a template into a participant's frozen content package.
package materialize

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/selection"
)

type Option func(*Materializer)

func WithClock(now func() time.Time) Option { return func(m *Materializer) { m.now = now } }

func WithIDGenerator(newID func() string) Option { return func(m *Materializer) { m.newID = newID } }

// WithStrict reports unresolved question ids as DataIntegrityError instead of
// dropping them.
func WithStrict(b bool) Option { return func(m *Materializer) { m.strict = b } }

type Materializer struct {
	templates exam.TemplateStore
	questions exam.QuestionStore
	engine    *selection.Engine
	now       func() time.Time
	newID     func() string
	strict    bool
}

func New(templates exam.TemplateStore, questions exam.QuestionStore, engine *selection.Engine, opts ...Option) *Materializer {
	if engine == nil {
		engine = selection.New(nil)
	}
	m := &Materializer{
		templates: templates,
		questions: questions,
		engine:    engine,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Materialize builds a new content package for templateID. Every call draws
// again, so each participant must get their own call. Either the whole package
// is returned or an error; there is no partial result.
func (m *Materializer) Materialize(ctx context.Context, templateID string) (exam.TestContentPackage, error) {
	tpl, err := m.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return exam.TestContentPackage{}, err
	}

	sections := make([]exam.MaterializedSection, 0, len(tpl.Pools))
	for _, pool := range tpl.Pools {
		sec, err := m.materializePool(ctx, pool)
		if err != nil {
			return exam.TestContentPackage{}, err
		}
		sections = append(sections, sec)
	}

	return exam.TestContentPackage{
		ID:         m.newID(),
		TemplateID: tpl.ID,
		Sections:   sections,
		CreatedAt:  m.now(),
	}, nil
}

func (m *Materializer) materializePool(ctx context.Context, pool exam.Pool) (exam.MaterializedSection, error) {
	available, required := len(pool.QuestionIDs), pool.QuestionsToDraw
	if available < required {
		return exam.MaterializedSection{}, &exam.InsufficientQuestionsError{
			PoolID:    pool.ID,
			Required:  required,
			Available: available,
		}
	}

	resolved, err := m.questions.GetQuestions(ctx, pool.QuestionIDs)
	if err != nil {
		return exam.MaterializedSection{}, fmt.Errorf("pool %s: fetch questions: %w", pool.ID, err)
	}
	if m.strict && len(resolved) != len(pool.QuestionIDs) {
		return exam.MaterializedSection{}, &exam.DataIntegrityError{
			PoolID:     pool.ID,
			QuestionID: firstMissing(pool.QuestionIDs, resolved),
			Reason:     "question id does not resolve to a bank question",
		}
	}

	picked := m.engine.SelectQuestions(resolved, required)
	frozen := make([]exam.Question, 0, len(picked))
	for _, q := range picked {
		fq, err := m.engine.Freeze(q)
		if err != nil {
			if di, ok := err.(*exam.DataIntegrityError); ok {
				di.PoolID = pool.ID
			}
			return exam.MaterializedSection{}, err
		}
		frozen = append(frozen, fq)
	}

	return exam.MaterializedSection{
		PoolID:    pool.ID,
		PoolName:  pool.Name,
		Points:    pool.Points,
		Questions: frozen,
	}, nil
}

func firstMissing(ids []string, got []exam.Question) string {
	have := make(map[string]bool, len(got))
	for _, q := range got {
		have[q.ID] = true
	}
	for _, id := range ids {
		if !have[id] {
			return id
		}
	}
	return ""
}
