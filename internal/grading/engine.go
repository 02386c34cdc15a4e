package grading

import (
	"context"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
)

// Q is the view of a frozen question needed for grading.
type Q struct {
	ID              string
	CorrectAnswerID string
	Points          float64 // share of the section points carried by this question
}

// Result is the outcome of grading one response.
type Result struct {
	AutoPoints float64
	MaxPoints  float64
	Answered   bool
	Correct    bool
}

// Grader grades a single response. answered is false when the participant left
// the question blank.
type Grader interface {
	Grade(ctx context.Context, q Q, response string, answered bool) (Result, error)
}

type singleChoice struct{}

// NewSingleChoiceGrader awards the full question share for the correct answer id
// and nothing otherwise.
func NewSingleChoiceGrader() Grader { return singleChoice{} }

func (singleChoice) Grade(_ context.Context, q Q, response string, answered bool) (Result, error) {
	res := Result{MaxPoints: q.Points, Answered: answered}
	if answered && response == q.CorrectAnswerID {
		res.Correct = true
		res.AutoPoints = q.Points
	}
	return res, nil
}

// Score summarizes a graded package.
type Score struct {
	Total    float64
	Max      float64
	Correct  int
	Answered int
}

// ScorePackage adds up every section of pkg. Max is the sum of section points;
// each correct answer earns section points / section question count. A section
// without questions adds nothing to either sum. Answers for unknown questions
// are ignored.
func ScorePackage(ctx context.Context, g Grader, pkg exam.TestContentPackage, answers exam.Answers) (Score, error) {
	var sc Score
	for _, sec := range pkg.Sections {
		if len(sec.Questions) == 0 {
			continue
		}
		sc.Max += sec.Points
		per := sec.PointsPerQuestion()
		for _, q := range sec.Questions {
			resp, ok := answers[q.ID]
			res, err := g.Grade(ctx, Q{ID: q.ID, CorrectAnswerID: q.CorrectAnswerID, Points: per}, resp, ok)
			if err != nil {
				return Score{}, err
			}
			sc.Total += res.AutoPoints
			if res.Answered {
				sc.Answered++
			}
			if res.Correct {
				sc.Correct++
			}
		}
	}
	return sc, nil
}
