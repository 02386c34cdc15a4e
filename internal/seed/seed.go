// Package seed loads a question bank and its templates from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
)

// Bank is the content of a seed file:
//
//	questions:
//	  - id: q1
//	    text: "2 + 2 = ?"
//	    correct_answer_id: a
//	    answers: [{id: a, text: "4"}, {id: b, text: "5"}]
//	templates:
//	  - id: basics
//	    name: Basics
//	    pools:
//	      - {id: p1, name: Arithmetic, questions_to_draw: 1, points: 10, question_ids: [q1]}
type Bank struct {
	Questions []exam.Question `yaml:"questions"`
	Templates []exam.Template `yaml:"templates"`
}

type Writer interface {
	PutQuestion(ctx context.Context, q exam.Question) error
	PutTemplate(ctx context.Context, t exam.Template) error
}

func Load(path string) (Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bank{}, err
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			log.Printf("[seed] close %s: %v", path, err)
		}
	}(f)
	return Parse(f)
}

func Parse(r io.Reader) (Bank, error) {
	var b Bank
	if err := yaml.NewDecoder(r).Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return Bank{}, fmt.Errorf("decode bank: %w", err)
	}
	if err := b.validate(); err != nil {
		return Bank{}, err
	}
	return b, nil
}

// validate rejects structurally broken banks. Dangling question references and
// missing correct answers are only logged; materialization decides what to do
// with them.
func (b Bank) validate() error {
	known := make(map[string]struct{}, len(b.Questions))
	for i, q := range b.Questions {
		if q.ID == "" {
			return fmt.Errorf("question #%d has no id", i+1)
		}
		if _, dup := known[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		known[q.ID] = struct{}{}
		if !hasAnswer(q) {
			log.Printf("[seed] question %s: correct answer %q is not among its answers", q.ID, q.CorrectAnswerID)
		}
	}
	templates := make(map[string]struct{}, len(b.Templates))
	for i, t := range b.Templates {
		if t.ID == "" {
			return fmt.Errorf("template #%d has no id", i+1)
		}
		if _, dup := templates[t.ID]; dup {
			return fmt.Errorf("duplicate template id %q", t.ID)
		}
		templates[t.ID] = struct{}{}
		for _, p := range t.Pools {
			if p.QuestionsToDraw < 0 || p.Points < 0 {
				return fmt.Errorf("template %s pool %s: negative draw count or points", t.ID, p.ID)
			}
			for _, id := range p.QuestionIDs {
				if _, ok := known[id]; !ok {
					log.Printf("[seed] template %s pool %s references unknown question %s", t.ID, p.ID, id)
				}
			}
		}
	}
	return nil
}

func hasAnswer(q exam.Question) bool {
	for _, a := range q.Answers {
		if a.ID == q.CorrectAnswerID {
			return true
		}
	}
	return false
}

// Apply upserts the bank, questions first. Missing timestamps are set to now.
func (b Bank) Apply(ctx context.Context, w Writer) error {
	now := time.Now().UTC()
	for _, q := range b.Questions {
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = q.CreatedAt
		}
		if err := w.PutQuestion(ctx, q); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	for _, t := range b.Templates {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		if err := w.PutTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	log.Printf("[seed] applied %d questions and %d templates", len(b.Questions), len(b.Templates))
	return nil
}
